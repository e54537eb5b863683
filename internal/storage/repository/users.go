package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/vpn-shop/internal/models"
)

// UpsertUser регистрирует пользователя при первом обращении и обновляет
// ник и имя при повторных. Флаг блокировки не трогает.
func (s *Storage) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	const op = "storage.UpsertUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (telegram_id, username, full_name)
			  VALUES ($1, NULLIF($2, ''), $3)
			  ON CONFLICT (telegram_id) DO UPDATE
			  SET username = EXCLUDED.username, full_name = EXCLUDED.full_name
			  RETURNING telegram_id, username, full_name, is_banned, created_at`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, user.TelegramID, user.Username, user.FullName))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по Telegram ID.
func (s *Storage) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT telegram_id, username, full_name, is_banned, created_at
			  FROM users
			  WHERE telegram_id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err))
	}
	return u, nil
}

// SetBanned блокирует или разблокирует пользователя.
func (s *Storage) SetBanned(ctx context.Context, telegramID int64, banned bool) error {
	const op = "storage.SetBanned"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `UPDATE users SET is_banned = $2 WHERE telegram_id = $1`,
		telegramID, banned)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var username sql.NullString
	if err := row.Scan(&u.TelegramID, &username, &u.FullName, &u.IsBanned, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Username = username.String
	return u, nil
}
