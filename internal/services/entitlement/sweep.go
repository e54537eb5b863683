package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/metrics"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
	"github.com/magabrotheeeer/vpn-shop/internal/panel"
)

// SweepFailure — подписка, которую не удалось отключить.
type SweepFailure struct {
	UserID int64
	Err    error
}

// SweepReport — итог одной проверки истёкших подписок.
type SweepReport struct {
	RunID    string
	Checked  int
	Expired  int
	Skipped  int
	Failures []SweepFailure
}

// SweepExpiredSubscriptions отключает в панели все активные подписки,
// истёкшие до now, и помечает их expired локально.
// Ошибка по одной подписке не прерывает проверку: подписка остаётся
// активной и будет обработана в следующий раз.
func (s *Service) SweepExpiredSubscriptions(ctx context.Context, now time.Time) (*SweepReport, error) {
	const op = "entitlement.SweepExpiredSubscriptions"
	report := &SweepReport{RunID: uuid.NewString()}
	log := s.log.With(slog.String("op", op), slog.String("run_id", report.RunID))

	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	subs, err := s.ledger.ListExpiredActive(ctx, now)
	if err != nil {
		observe("sweep", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			log.Warn("sweep interrupted", slog.Int("checked", report.Checked))
			return report, fmt.Errorf("%s: %w", op, err)
		}
		report.Checked++

		expired, err := s.expireOne(ctx, sub.UserID, now)
		switch {
		case err != nil:
			report.Failures = append(report.Failures, SweepFailure{UserID: sub.UserID, Err: err})
			metrics.SweepFailures.Inc()
			log.Error("failed to expire subscription", sl.User(sub.UserID), sl.Err(err))
		case expired:
			report.Expired++
			metrics.SweepExpired.Inc()
		default:
			report.Skipped++
		}
	}

	observe("sweep", nil)
	log.Info("sweep finished",
		slog.Int("checked", report.Checked),
		slog.Int("expired", report.Expired),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", len(report.Failures)))
	return report, nil
}

func (s *Service) expireOne(ctx context.Context, userID int64, now time.Time) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	// Пока ждали блокировку, подписку могли продлить
	current, err := s.ledger.GetSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	if current.Status != models.SubscriptionActive || !current.ExpireDate.Before(now) {
		return false, nil
	}

	status := models.EntitlementDisabled
	err = s.panel.Modify(ctx, models.PanelUsername(userID), models.EntitlementPatch{Status: &status})
	if err != nil && !errors.Is(err, panel.ErrNotFound) {
		return false, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	ok, err := s.ledger.ExpireSubscription(ctx, userID, now)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	s.invalidate(ctx, userID)

	expireAt := current.ExpireDate
	s.notify(ctx, models.Notification{
		Kind:     models.KindExpired,
		UserID:   userID,
		ExpireAt: &expireAt,
	})
	return true, nil
}
