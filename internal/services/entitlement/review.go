package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-shop/internal/lib/expiry"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
	"github.com/magabrotheeeer/vpn-shop/internal/panel"
	"github.com/magabrotheeeer/vpn-shop/internal/storage/repository"
)

// ApproveResult — результат одобрения транзакции.
type ApproveResult struct {
	Transaction *models.Transaction
	Plan        *models.Plan
	AccessLink  string
	ExpireAt    time.Time
	// Recreated — пользователя не было в панели, он создан заново.
	Recreated bool
}

// RejectResult — результат отклонения транзакции.
type RejectResult struct {
	Transaction *models.Transaction
	Policy      RejectPolicy
	Disabled    bool
	Banned      bool
	// ExpireAt — срок после отката временного доступа, если у пользователя
	// остался оплаченный период.
	ExpireAt *time.Time
	// RemoteErr — ошибка отключения в панели. Транзакция при этом уже отклонена.
	RemoteErr error
}

// lockPending загружает транзакцию, берёт блокировку её пользователя и
// перечитывает статус уже под блокировкой.
func (s *Service) lockPending(ctx context.Context, txID int64) (*models.Transaction, func(), error) {
	tx, err := s.pendingTransaction(ctx, txID)
	if err != nil {
		return nil, nil, err
	}
	unlock := s.locks.Lock(tx.UserID)
	tx, err = s.pendingTransaction(ctx, txID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return tx, unlock, nil
}

// ApproveTransaction начисляет полный срок и лимит тарифа и помечает
// транзакцию одобренной. Повторный вызов возвращает ErrAlreadyProcessed
// и панель не трогает.
func (s *Service) ApproveTransaction(ctx context.Context, txID int64) (res *ApproveResult, err error) {
	const op = "entitlement.ApproveTransaction"
	log := s.log.With(slog.String("op", op), slog.Int64("tx_id", txID))
	defer func() { observe("approve", err) }()

	tx, unlock, err := s.lockPending(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()
	log = log.With(sl.User(tx.UserID))

	plan, err := s.ledger.GetPlan(ctx, tx.PlanID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	username := models.PanelUsername(tx.UserID)
	current, err := s.panel.Get(ctx, username)
	missing := errors.Is(err, panel.ErrNotFound)
	if err != nil && !missing {
		log.Error("failed to read panel user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
	}

	var remoteExpire *time.Time
	if !missing {
		remoteExpire = expiry.FromEpoch(current.Expire)
	}
	now := s.now()
	expireAt := expiry.NewExpiry(remoteExpire, now, expiry.Days(plan.DurationDays))

	res = &ApproveResult{Plan: plan, ExpireAt: expireAt, Recreated: missing}
	if missing {
		log.Warn("panel user missing, recreating")
		ent, err := s.panel.Upsert(ctx, username, plan.LimitGB, expireAt)
		if err != nil {
			log.Error("failed to recreate panel user", sl.Err(err))
			return nil, fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
		}
		res.AccessLink = ent.SubscriptionURL
	} else {
		epoch := expireAt.Unix()
		limit := panel.GBToBytes(plan.LimitGB)
		status := models.EntitlementActive
		err := s.panel.Modify(ctx, username, models.EntitlementPatch{
			Expire:    &epoch,
			DataLimit: &limit,
			Status:    &status,
		})
		if err != nil {
			log.Error("failed to extend panel user", sl.Err(err))
			return nil, fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
		}
		res.AccessLink = current.SubscriptionURL
	}

	err = s.ledger.ApproveTransaction(ctx, tx.ID, models.Subscription{
		UserID:     tx.UserID,
		AccessLink: res.AccessLink,
		ExpireDate: expireAt,
		Status:     models.SubscriptionActive,
	}, now)
	if errors.Is(err, repository.ErrAlreadyProcessed) {
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadyProcessed)
	}
	if err != nil {
		log.Error("panel extended but approval not saved", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, tx.UserID)

	tx.Status = models.TransactionApproved
	tx.ProcessedAt = &now
	res.Transaction = tx

	s.notify(ctx, models.Notification{
		Kind:          models.KindApproved,
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		PlanName:      plan.Name,
		AccessLink:    res.AccessLink,
		ExpireAt:      &expireAt,
	})
	log.Info("transaction approved", slog.Time("expire_at", expireAt))
	return res, nil
}

// RejectTransaction помечает транзакцию отклонённой и применяет политику
// отклонения к временному доступу.
func (s *Service) RejectTransaction(ctx context.Context, txID int64) (res *RejectResult, err error) {
	const op = "entitlement.RejectTransaction"
	log := s.log.With(slog.String("op", op), slog.Int64("tx_id", txID))
	defer func() { observe("reject", err) }()

	tx, unlock, err := s.lockPending(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()
	log = log.With(sl.User(tx.UserID))

	now := s.now()
	err = s.ledger.RejectTransaction(ctx, tx.ID, now)
	if errors.Is(err, repository.ErrAlreadyProcessed) {
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadyProcessed)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tx.Status = models.TransactionRejected
	tx.ProcessedAt = &now

	res = &RejectResult{Transaction: tx, Policy: s.rejectPolicy}
	switch s.rejectPolicy {
	case RejectDisable:
		res.Disabled, res.ExpireAt, res.RemoteErr = s.revokeProvisional(ctx, tx, now)
	case RejectDisableAndBan:
		res.Disabled, res.RemoteErr = s.disable(ctx, tx.UserID)
	}
	if res.RemoteErr != nil {
		log.Warn("failed to revoke access after rejection", sl.Err(res.RemoteErr))
	}
	if s.rejectPolicy == RejectDisableAndBan {
		if err := s.ledger.SetBanned(ctx, tx.UserID, true); err != nil {
			log.Error("failed to ban user", sl.Err(err))
		} else {
			res.Banned = true
		}
	}

	s.notify(ctx, models.Notification{
		Kind:          models.KindRejected,
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
	})
	log.Info("transaction rejected", slog.String("policy", string(s.rejectPolicy)),
		slog.Bool("disabled", res.Disabled), slog.Bool("banned", res.Banned))
	return res, nil
}

// revokeProvisional снимает только тот временный доступ, который выдала
// отклонённая транзакция. Срок в панели сдвигается назад на временное окно;
// если после сдвига он уже в прошлом, пользователь отключается целиком.
// Время, оплаченное другими одобренными транзакциями, сохраняется.
func (s *Service) revokeProvisional(ctx context.Context, tx *models.Transaction, now time.Time) (bool, *time.Time, error) {
	if tx.ProvisionalUntil == nil {
		return false, nil, nil
	}

	username := models.PanelUsername(tx.UserID)
	current, err := s.panel.Get(ctx, username)
	if errors.Is(err, panel.ErrNotFound) {
		if err := s.ledger.DeactivateSubscription(ctx, tx.UserID); err != nil {
			return true, nil, err
		}
		s.invalidate(ctx, tx.UserID)
		return true, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	remoteExpire := expiry.FromEpoch(current.Expire)
	if remoteExpire == nil {
		// бессрочный пользователь: временное окно на него не влияло
		return false, nil, nil
	}
	rolled := remoteExpire.Add(-s.provisionalWindow)
	if !rolled.After(now) {
		disabled, err := s.disable(ctx, tx.UserID)
		return disabled, nil, err
	}

	epoch := rolled.Unix()
	if err := s.panel.Modify(ctx, username, models.EntitlementPatch{Expire: &epoch}); err != nil {
		return false, nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	err = s.ledger.UpsertSubscription(ctx, models.Subscription{
		UserID:     tx.UserID,
		AccessLink: current.SubscriptionURL,
		ExpireDate: rolled,
		Status:     models.SubscriptionActive,
	})
	if err != nil {
		return false, &rolled, err
	}
	s.invalidate(ctx, tx.UserID)
	return false, &rolled, nil
}

// disable отключает пользователя в панели и только после этого гасит
// локальную подписку, чтобы при сбое панели её подобрала проверка истёкших.
func (s *Service) disable(ctx context.Context, userID int64) (bool, error) {
	status := models.EntitlementDisabled
	err := s.panel.Modify(ctx, models.PanelUsername(userID), models.EntitlementPatch{Status: &status})
	if err != nil && !errors.Is(err, panel.ErrNotFound) {
		return false, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	if err := s.ledger.DeactivateSubscription(ctx, userID); err != nil {
		return true, err
	}
	s.invalidate(ctx, userID)
	return true, nil
}
