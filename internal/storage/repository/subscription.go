package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vpn-shop/internal/models"
)

const subscriptionColumns = `id, user_id, access_link, expire_date, status, updated_at`

// executor — общее для *sql.DB и *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	sub := &models.Subscription{}
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.AccessLink, &sub.ExpireDate,
		&sub.Status, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	return sub, nil
}

// GetSubscription возвращает подписку пользователя.
func (s *Storage) GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sub, err := scanSubscription(s.DB.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err))
	}
	return sub, nil
}

// UpsertSubscription создаёт или перезаписывает единственную подписку пользователя.
func (s *Storage) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.UpsertSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if err := upsertSubscription(ctx, s.DB, sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// upsertSubscription опирается на UNIQUE (user_id): у пользователя всегда
// не больше одной строки. Пустая ссылка не затирает сохранённую.
func upsertSubscription(ctx context.Context, db executor, sub models.Subscription) error {
	status := sub.Status
	if status == "" {
		status = models.SubscriptionActive
	}
	_, err := db.ExecContext(ctx, `INSERT INTO subscriptions (user_id, access_link, expire_date, status, updated_at)
			  VALUES ($1, $2, $3, $4, NOW())
			  ON CONFLICT (user_id) DO UPDATE
			  SET access_link = COALESCE(NULLIF(EXCLUDED.access_link, ''), subscriptions.access_link),
			      expire_date = EXCLUDED.expire_date,
			      status = EXCLUDED.status,
			      updated_at = NOW()`,
		sub.UserID, sub.AccessLink, sub.ExpireDate, string(status))
	return err
}

// ListExpiredActive возвращает активные подписки, срок которых истёк до now.
func (s *Storage) ListExpiredActive(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	const op = "storage.ListExpiredActive"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+subscriptionColumns+`
			  FROM subscriptions
			  WHERE status = 'active' AND expire_date < $1
			  ORDER BY expire_date`, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// ExpireSubscription переводит подписку в expired, только если она всё ещё
// активна и истекла до now. Возвращает false, если строку успели продлить.
func (s *Storage) ExpireSubscription(ctx context.Context, userID int64, now time.Time) (bool, error) {
	const op = "storage.ExpireSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `UPDATE subscriptions
			  SET status = 'expired', updated_at = NOW()
			  WHERE user_id = $1 AND status = 'active' AND expire_date < $2`, userID, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// DeactivateSubscription переводит подписку в expired независимо от срока.
func (s *Storage) DeactivateSubscription(ctx context.Context, userID int64) error {
	const op = "storage.DeactivateSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	_, err := s.DB.ExecContext(ctx, `UPDATE subscriptions
			  SET status = 'expired', updated_at = NOW()
			  WHERE user_id = $1 AND status = 'active'`, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
