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
	"github.com/magabrotheeeer/vpn-shop/internal/storage/repository"
)

// GrantResult — результат выдачи пробного доступа.
type GrantResult struct {
	AccessLink string
	ExpireAt   time.Time
}

// SubmitResult — результат приёма чека. Provisioned показывает, удалось ли
// выдать временный доступ до проверки.
type SubmitResult struct {
	Transaction *models.Transaction
	Plan        *models.Plan
	AccessLink  string
	ExpireAt    time.Time
	Provisioned bool
}

// GrantTrial выдаёт бесплатный пробный доступ по тарифу plan.
// Пробный период доступен только пользователю, у которого ещё не было подписки.
func (s *Service) GrantTrial(ctx context.Context, userID int64, plan models.Plan) (res *GrantResult, err error) {
	const op = "entitlement.GrantTrial"
	log := s.log.With(slog.String("op", op), sl.User(userID))
	defer func() { observe("grant_trial", err) }()

	if err := s.validate.Struct(plan); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrValidation, err)
	}
	if !plan.IsTrial() {
		return nil, fmt.Errorf("%s: %w: plan %d is not free", op, ErrValidation, plan.ID)
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	if err := s.activeUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	_, err = s.ledger.GetSubscription(ctx, userID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s: %w", op, ErrTrialUnavailable)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ent, expireAt, err := s.provision(ctx, userID, expiry.Days(plan.DurationDays), plan.LimitGB)
	if err != nil {
		log.Error("failed to provision trial", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = s.ledger.UpsertSubscription(ctx, models.Subscription{
		UserID:     userID,
		AccessLink: ent.SubscriptionURL,
		ExpireDate: expireAt,
		Status:     models.SubscriptionActive,
	})
	if err != nil {
		log.Error("trial granted remotely but not saved", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, userID)

	log.Info("trial granted", slog.Time("expire_at", expireAt))
	return &GrantResult{AccessLink: ent.SubscriptionURL, ExpireAt: expireAt}, nil
}

// SubmitPaymentProof принимает чек об оплате: создаёт транзакцию pending
// и сразу выдаёт временный доступ на provisionalWindow с безлимитным трафиком.
// Полный срок и лимит тарифа начисляются при одобрении.
//
// Если панель недоступна, транзакция остаётся pending без подписки,
// а ошибка оборачивает ErrRemoteUnavailable. Администратор получает чек
// на проверку в обоих случаях.
func (s *Service) SubmitPaymentProof(ctx context.Context, userID, amount int64, receiptRef string, planID int) (res *SubmitResult, err error) {
	const op = "entitlement.SubmitPaymentProof"
	log := s.log.With(slog.String("op", op), sl.User(userID), slog.Int("plan_id", planID))
	defer func() { observe("submit_payment", err) }()

	if amount <= 0 {
		return nil, fmt.Errorf("%s: %w: amount must be positive", op, ErrValidation)
	}
	if receiptRef == "" {
		return nil, fmt.Errorf("%s: %w: empty receipt", op, ErrValidation)
	}
	plan, err := s.ledger.GetPlan(ctx, planID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	if plan.IsTrial() {
		return nil, fmt.Errorf("%s: %w: trial plan cannot be paid", op, ErrValidation)
	}
	if err := s.activeUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.ledger.CreateTransaction(ctx, models.Transaction{
		UserID:     userID,
		PlanID:     plan.ID,
		Amount:     amount,
		ReceiptRef: receiptRef,
		Status:     models.TransactionPending,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log = log.With(slog.Int64("tx_id", tx.ID))

	res = &SubmitResult{Transaction: tx, Plan: plan}
	res.Provisioned, err = s.grantProvisional(ctx, res)
	if err != nil {
		log.Error("provisional grant failed, transaction left pending", sl.Err(err))
	} else {
		log.Info("payment proof accepted", slog.Time("expire_at", res.ExpireAt))
	}

	n := models.Notification{
		Kind:          models.KindReviewRequested,
		UserID:        userID,
		TransactionID: tx.ID,
		ReceiptRef:    receiptRef,
		Amount:        amount,
		PlanName:      plan.Name,
		Provisioned:   res.Provisioned,
	}
	if res.Provisioned {
		n.ExpireAt = &res.ExpireAt
	}
	s.notify(ctx, n)

	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Service) grantProvisional(ctx context.Context, res *SubmitResult) (bool, error) {
	userID := res.Transaction.UserID
	unlock := s.locks.Lock(userID)
	defer unlock()

	ent, expireAt, err := s.provision(ctx, userID, s.provisionalWindow, 0)
	if err != nil {
		return false, err
	}
	res.AccessLink = ent.SubscriptionURL
	res.ExpireAt = expireAt

	err = s.ledger.RecordProvisionalGrant(ctx, res.Transaction.ID, models.Subscription{
		UserID:     userID,
		AccessLink: ent.SubscriptionURL,
		ExpireDate: expireAt,
		Status:     models.SubscriptionActive,
	})
	if err != nil {
		return true, err
	}
	res.Transaction.ProvisionalUntil = &expireAt
	s.invalidate(ctx, userID)
	return true, nil
}
