package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vpn-shop/internal/models"
)

const transactionColumns = `id, user_id, plan_id, amount, receipt_ref, status, created_at, processed_at, provisional_until`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	t := &models.Transaction{}
	var processedAt, provisionalUntil sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.PlanID, &t.Amount, &t.ReceiptRef,
		&t.Status, &t.CreatedAt, &processedAt, &provisionalUntil); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t.ProcessedAt = &processedAt.Time
	}
	if provisionalUntil.Valid {
		t.ProvisionalUntil = &provisionalUntil.Time
	}
	return t, nil
}

// CreateTransaction сохраняет новую транзакцию в статусе pending.
func (s *Storage) CreateTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error) {
	const op = "storage.CreateTransaction"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO transactions (user_id, plan_id, amount, receipt_ref, status)
			  VALUES ($1, $2, $3, $4, 'pending')
			  RETURNING ` + transactionColumns
	created, err := scanTransaction(s.DB.QueryRowContext(ctx, query,
		tx.UserID, tx.PlanID, tx.Amount, tx.ReceiptRef))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetTransaction возвращает транзакцию по ID.
func (s *Storage) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	const op = "storage.GetTransaction"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	t, err := scanTransaction(s.DB.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err))
	}
	return t, nil
}

// ListTransactions возвращает транзакции с заданным статусом (пустой — все),
// новые первыми.
func (s *Storage) ListTransactions(ctx context.Context, status models.TransactionStatus, limit, offset int) ([]*models.Transaction, error) {
	const op = "storage.ListTransactions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + transactionColumns + `
			  FROM transactions
			  WHERE ($1 = '' OR status = $1)
			  ORDER BY created_at DESC, id DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// finishTransaction переводит транзакцию из pending в status.
// Если транзакция уже обработана, возвращает ErrAlreadyProcessed.
func finishTransaction(ctx context.Context, tx *sql.Tx, id int64, status models.TransactionStatus, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE transactions
			  SET status = $2, processed_at = $3
			  WHERE id = $1 AND status = 'pending'`, id, string(status), at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

// ApproveTransaction атомарно подтверждает транзакцию и записывает
// подписку пользователя.
func (s *Storage) ApproveTransaction(ctx context.Context, id int64, sub models.Subscription, at time.Time) error {
	const op = "storage.ApproveTransaction"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := finishTransaction(ctx, tx, id, models.TransactionApproved, at); err != nil {
			return err
		}
		return upsertSubscription(ctx, tx, sub)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RejectTransaction помечает транзакцию отклонённой.
func (s *Storage) RejectTransaction(ctx context.Context, id int64, at time.Time) error {
	const op = "storage.RejectTransaction"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return finishTransaction(ctx, tx, id, models.TransactionRejected, at)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RecordProvisionalGrant атомарно отмечает на транзакции выданный временный
// доступ и записывает подписку пользователя.
func (s *Storage) RecordProvisionalGrant(ctx context.Context, id int64, sub models.Subscription) error {
	const op = "storage.RecordProvisionalGrant"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE transactions SET provisional_until = $2 WHERE id = $1`, id, sub.ExpireDate)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return upsertSubscription(ctx, tx, sub)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
