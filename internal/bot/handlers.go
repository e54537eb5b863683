package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
	"github.com/magabrotheeeer/vpn-shop/internal/services/entitlement"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	log := b.log.With(sl.User(msg.From.ID))

	user, err := b.store.EnsureUser(ctx, userFrom(msg.From))
	if err != nil {
		log.Error("failed to register user", sl.Err(err))
		b.send(msg.Chat.ID, describeError(err), nil)
		return
	}
	if user.IsBanned {
		b.send(msg.Chat.ID, describeError(entitlement.ErrBanned), nil)
		return
	}

	if len(msg.Photo) > 0 {
		b.handleReceipt(ctx, log, msg)
		return
	}

	switch ParseCommand(msg.Text) {
	case CommandStart:
		b.send(msg.Chat.ID, "👋 Добро пожаловать в наш сервис!\n\nВыберите действие в меню ниже:", mainMenuKeyboard())
	case CommandShop:
		b.showPlans(ctx, log, msg.Chat.ID)
	case CommandProfile:
		b.showProfile(ctx, log, msg.Chat.ID, msg.From.ID)
	case CommandTrial:
		b.startTrial(ctx, log, msg.Chat.ID, msg.From.ID)
	case CommandHelp:
		b.send(msg.Chat.ID, helpText, nil)
	default:
		if _, ok := b.pending.get(msg.From.ID); ok {
			b.send(msg.Chat.ID, "Пришлите скриншот чека фотографией.", nil)
			return
		}
		b.send(msg.Chat.ID, "Не понял команду. Воспользуйтесь меню ниже.", mainMenuKeyboard())
	}
}

const helpText = "ℹ️ Как это работает:\n" +
	"1. Выберите тариф в разделе «Купить доступ».\n" +
	"2. Оплатите по реквизитам и пришлите скриншот чека.\n" +
	"3. Сразу получите временный доступ, после проверки чека он продлится на весь срок тарифа."

func (b *Bot) showPlans(ctx context.Context, log *slog.Logger, chatID int64) {
	plans, err := b.store.ActivePlans(ctx)
	if err != nil {
		log.Error("failed to list plans", sl.Err(err))
		b.send(chatID, describeError(err), nil)
		return
	}
	if len(plans) == 0 {
		b.send(chatID, "К сожалению, сейчас нет доступных тарифов.", nil)
		return
	}
	b.send(chatID, "Выберите подходящий тариф:", plansKeyboard(plans))
}

func (b *Bot) showProfile(ctx context.Context, log *slog.Logger, chatID, userID int64) {
	profile, err := b.store.Profile(ctx, userID)
	if err != nil {
		log.Error("failed to load profile", sl.Err(err))
		b.send(chatID, describeError(err), nil)
		return
	}
	if !profile.HasSubscription {
		b.send(chatID, "У вас пока нет подписки. Оформите её в разделе «Купить доступ».", nil)
		return
	}

	status := "❌ Истекла"
	if profile.Active(b.now()) {
		status = "✅ Активна"
	}
	var sb strings.Builder
	sb.WriteString("👤 Профиль\n\n")
	fmt.Fprintf(&sb, "Статус: %s\n", status)
	fmt.Fprintf(&sb, "Истекает: %s\n", profile.ExpireDate.Format(dateLayout))
	if profile.AccessLink != "" {
		fmt.Fprintf(&sb, "Ключ:\n%s", profile.AccessLink)
	}
	b.send(chatID, sb.String(), nil)
}

func (b *Bot) startTrial(ctx context.Context, log *slog.Logger, chatID, userID int64) {
	plans, err := b.store.ActivePlans(ctx)
	if err != nil {
		log.Error("failed to list plans", sl.Err(err))
		b.send(chatID, describeError(err), nil)
		return
	}
	for _, plan := range plans {
		if plan.IsTrial() {
			b.grantTrial(ctx, log, chatID, userID, *plan)
			return
		}
	}
	b.send(chatID, "Пробный период сейчас недоступен.", nil)
}

func (b *Bot) grantTrial(ctx context.Context, log *slog.Logger, chatID, userID int64, plan models.Plan) {
	res, err := b.engine.GrantTrial(ctx, userID, plan)
	if err != nil {
		if errors.Is(err, entitlement.ErrTrialUnavailable) {
			log.Info("trial refused")
		} else {
			log.Error("failed to grant trial", sl.Err(err))
		}
		b.send(chatID, describeError(err), nil)
		return
	}

	log.Info("trial granted", slog.Time("expire_at", res.ExpireAt))
	text := fmt.Sprintf("🎁 Пробный доступ активирован до %s.\n\nВаш ключ:\n%s",
		res.ExpireAt.Format(dateLayout), res.AccessLink)
	b.send(chatID, text, nil)
}

func (b *Bot) handleReceipt(ctx context.Context, log *slog.Logger, msg *tgbotapi.Message) {
	userID := msg.From.ID
	purchase, ok := b.pending.get(userID)
	if !ok {
		b.send(msg.Chat.ID, "Сначала выберите тариф в разделе «Купить доступ».", nil)
		return
	}

	// Последний размер — самое большое изображение.
	fileID := msg.Photo[len(msg.Photo)-1].FileID
	b.send(msg.Chat.ID, "⏳ Обрабатываем ваш платёж...", nil)

	res, err := b.engine.SubmitPaymentProof(ctx, userID, purchase.Amount, fileID, purchase.PlanID)
	if res == nil {
		log.Error("failed to submit payment proof", sl.Err(err))
		b.send(msg.Chat.ID, "❌ "+describeError(err), nil)
		return
	}
	b.pending.drop(userID)

	if !res.Provisioned {
		log.Warn("payment recorded without provisional access", slog.Int64("transaction_id", res.Transaction.ID), sl.Err(err))
		b.send(msg.Chat.ID, "✅ Чек получен и передан администратору.\n"+
			"Временный доступ выдать не удалось: сервер VPN недоступен. "+
			"Доступ откроется после проверки чека.", nil)
		return
	}

	log.Info("payment proof submitted", slog.Int64("transaction_id", res.Transaction.ID))
	text := fmt.Sprintf("✅ Платёж получен! Временный доступ открыт до %s.\n"+
		"Администратор проверит чек и продлит подписку на полный срок.\n\nВаш ключ:\n%s",
		res.ExpireAt.Format(dateLayout), res.AccessLink)
	b.send(msg.Chat.ID, text, nil)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil {
		return
	}
	log := b.log.With(sl.User(cq.From.ID))

	action, id, err := ParseCallback(cq.Data)
	if err != nil {
		log.Warn("unknown callback", slog.String("data", cq.Data))
		b.answer(cq, "")
		return
	}

	switch action {
	case ActionBuyPlan:
		b.buyPlan(ctx, log, cq, int(id))
	case ActionApprove, ActionReject:
		if cq.From.ID != b.adminID || b.adminID == 0 {
			log.Warn("review callback from non-admin", slog.Int64("transaction_id", id))
			b.answer(cq, "Недостаточно прав")
			return
		}
		b.review(ctx, log, cq, action, id)
	}
}

func (b *Bot) buyPlan(ctx context.Context, log *slog.Logger, cq *tgbotapi.CallbackQuery, planID int) {
	chatID := cq.Message.Chat.ID
	user, err := b.store.EnsureUser(ctx, userFrom(cq.From))
	if err != nil {
		log.Error("failed to register user", sl.Err(err))
		b.answer(cq, describeError(err))
		return
	}
	if user.IsBanned {
		b.answer(cq, describeError(entitlement.ErrBanned))
		return
	}

	plan, err := b.store.Plan(ctx, planID)
	if err != nil {
		b.answer(cq, describeError(err))
		return
	}
	b.answer(cq, "")

	if plan.IsTrial() {
		b.grantTrial(ctx, log, chatID, cq.From.ID, *plan)
		return
	}

	b.pending.put(cq.From.ID, plan.ID, plan.Price)
	text := fmt.Sprintf("💳 Вы выбрали: %s\n💰 К оплате: %d RUB\n\n%s\n\nПосле оплаты отправьте скриншот чека сюда.",
		plan.Name, plan.Price, b.paymentInfo)
	b.send(chatID, text, nil)
}

func (b *Bot) review(ctx context.Context, log *slog.Logger, cq *tgbotapi.CallbackQuery, action Action, txID int64) {
	log = log.With(slog.Int64("transaction_id", txID))

	var outcome string
	switch action {
	case ActionApprove:
		res, err := b.engine.ApproveTransaction(ctx, txID)
		if err != nil {
			log.Error("failed to approve transaction", sl.Err(err))
			b.answer(cq, describeError(err))
			return
		}
		outcome = fmt.Sprintf("✅ Одобрено! Доступ до %s", res.ExpireAt.Format(dateLayout))
	case ActionReject:
		res, err := b.engine.RejectTransaction(ctx, txID)
		if err != nil {
			log.Error("failed to reject transaction", sl.Err(err))
			b.answer(cq, describeError(err))
			return
		}
		outcome = "❌ Отклонено!"
		if res.RemoteErr != nil {
			outcome += "\n⚠️ Отключить доступ в панели не удалось, он отключится плановой проверкой по истечении срока."
		}
	}

	b.answer(cq, "")
	edit := tgbotapi.NewEditMessageCaption(cq.Message.Chat.ID, cq.Message.MessageID, cq.Message.Caption+"\n\n"+outcome)
	if _, err := b.api.Request(edit); err != nil {
		log.Warn("failed to edit review message", sl.Err(err))
	}
}
