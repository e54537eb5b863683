package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/vpn-shop/internal/models"
)

// ListActivePlans возвращает тарифы, доступные для покупки, по возрастанию цены.
func (s *Storage) ListActivePlans(ctx context.Context) ([]*models.Plan, error) {
	const op = "storage.ListActivePlans"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, price, duration_days, limit_gb, is_active
			  FROM plans
			  WHERE is_active
			  ORDER BY price, id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		p := &models.Plan{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.DurationDays, &p.LimitGB, &p.IsActive); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// GetPlan возвращает тариф по ID, в том числе отключённый.
func (s *Storage) GetPlan(ctx context.Context, id int) (*models.Plan, error) {
	const op = "storage.GetPlan"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	p := &models.Plan{}
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, price, duration_days, limit_gb, is_active
			  FROM plans WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.DurationDays, &p.LimitGB, &p.IsActive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err))
	}
	return p, nil
}
