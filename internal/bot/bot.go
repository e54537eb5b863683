// Package bot — Telegram-витрина: меню, каталог тарифов, приём чеков,
// профиль и кнопки проверки платежей для администратора.
//
// Каждое обновление обрабатывается в своей горутине. Решения о доступе
// принимает движок подписок, бот только переводит результаты в текст.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/magabrotheeeer/vpn-shop/internal/config"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
	"github.com/magabrotheeeer/vpn-shop/internal/services/storefront"
)

const (
	dateLayout    = "02.01.2006 15:04"
	updateTimeout = time.Minute
	purchaseTTL   = 24 * time.Hour
)

// API — методы Telegram Bot API, которыми пользуется бот.
type API interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Engine — операции движка подписок.
type Engine interface {
	GrantTrial(ctx context.Context, userID int64, plan models.Plan) (*entitlement.GrantResult, error)
	SubmitPaymentProof(ctx context.Context, userID, amount int64, receiptRef string, planID int) (*entitlement.SubmitResult, error)
	ApproveTransaction(ctx context.Context, txID int64) (*entitlement.ApproveResult, error)
	RejectTransaction(ctx context.Context, txID int64) (*entitlement.RejectResult, error)
}

// Storefront — операции витрины, не меняющие доступ.
type Storefront interface {
	EnsureUser(ctx context.Context, user models.User) (*models.User, error)
	ActivePlans(ctx context.Context) ([]*models.Plan, error)
	Plan(ctx context.Context, id int) (*models.Plan, error)
	Profile(ctx context.Context, userID int64) (*storefront.Profile, error)
}

type Bot struct {
	api         API
	engine      Engine
	store       Storefront
	log         *slog.Logger
	adminID     int64
	paymentInfo string
	pollTimeout int
	pending     *purchases
	flood       *floodGuard
	now         func() time.Time
}

func New(api API, engine Engine, store Storefront, cfg config.Telegram, log *slog.Logger) *Bot {
	return &Bot{
		api:         api,
		engine:      engine,
		store:       store,
		log:         log,
		adminID:     cfg.AdminID,
		paymentInfo: cfg.PaymentInfo,
		pollTimeout: cfg.PollTimeout,
		pending:     newPurchases(purchaseTTL),
		flood:       newFloodGuard(floodRate, floodBurst),
		now:         time.Now,
	}
}

// Run читает обновления до отмены ctx и ждёт завершения начатых обработчиков.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	b.log.Info("bot started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Начатая операция доводится до конца даже при остановке.
				uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), updateTimeout)
				defer cancel()
				b.HandleUpdate(uctx, update)
			}()
		}
	}
}

// HandleUpdate обрабатывает одно обновление.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update",
				slog.Int("update_id", update.UpdateID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if from := update.SentFrom(); from != nil && !b.flood.allow(from.ID) {
		b.log.Debug("update dropped by flood guard", sl.User(from.ID))
		return
	}

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) send(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("failed to send message", slog.Int64("chat_id", chatID), sl.Err(err))
	}
}

func (b *Bot) answer(cq *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, text)); err != nil {
		b.log.Warn("failed to answer callback", sl.Err(err))
	}
}

func userFrom(u *tgbotapi.User) models.User {
	fullName := u.FirstName
	if u.LastName != "" {
		fullName = fmt.Sprintf("%s %s", u.FirstName, u.LastName)
	}
	return models.User{
		TelegramID: u.ID,
		Username:   u.UserName,
		FullName:   fullName,
	}
}
