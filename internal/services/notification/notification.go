// Package notification доставляет события движка подписок в Telegram:
// напрямую или через шину RabbitMQ.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/vpn-shop/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-shop/internal/models"
)

const dateLayout = "02.01.2006 15:04"

// Messenger отправляет сообщения в чат.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendReceipt(ctx context.Context, chatID int64, fileID, caption string, txID int64) error
}

// Dispatcher превращает уведомления в сообщения пользователю или администратору.
type Dispatcher struct {
	messenger Messenger
	adminID   int64
	log       *slog.Logger
}

func NewDispatcher(messenger Messenger, adminID int64, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		messenger: messenger,
		adminID:   adminID,
		log:       log,
	}
}

// Notify отправляет сообщение по событию n.
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) error {
	const op = "notification.Dispatcher.Notify"

	var err error
	switch n.Kind {
	case models.KindReviewRequested:
		if d.adminID == 0 {
			d.log.Warn("admin chat is not configured, review request dropped", slog.Int64("transaction_id", n.TransactionID))
			return nil
		}
		err = d.messenger.SendReceipt(ctx, d.adminID, n.ReceiptRef, ReviewCaption(n), n.TransactionID)
	case models.KindApproved, models.KindRejected, models.KindExpired:
		err = d.messenger.SendText(ctx, n.UserID, UserText(n))
	default:
		return fmt.Errorf("%s: unknown notification kind %q", op, n.Kind)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Handle разбирает сообщение из очереди и доставляет его.
func (d *Dispatcher) Handle(body []byte) error {
	const op = "notification.Dispatcher.Handle"

	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		d.log.Error("failed to unmarshal notification", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return d.Notify(context.Background(), n)
}

// ReviewCaption — подпись к чеку для администратора.
func ReviewCaption(n models.Notification) string {
	caption := fmt.Sprintf("💰 Новая оплата #%d\nПользователь: %d\nТариф: %s\nСумма: %d ₽",
		n.TransactionID, n.UserID, n.PlanName, n.Amount)
	if n.Provisioned {
		caption += "\nВременный доступ выдан"
	} else {
		caption += "\n⚠️ Временный доступ не выдан, панель недоступна"
	}
	return caption
}

// UserText — текст уведомления пользователю.
func UserText(n models.Notification) string {
	switch n.Kind {
	case models.KindApproved:
		text := "✅ Оплата подтверждена!"
		if n.PlanName != "" {
			text += "\nТариф: " + n.PlanName
		}
		if n.ExpireAt != nil {
			text += "\nДоступ до: " + n.ExpireAt.Format(dateLayout)
		}
		if n.AccessLink != "" {
			text += "\nВаш ключ:\n" + n.AccessLink
		}
		return text
	case models.KindRejected:
		return "❌ Оплата не подтверждена. Доступ отозван.\nЕсли это ошибка, свяжитесь с администратором."
	case models.KindExpired:
		return "⌛ Срок вашей подписки истёк. Продлите доступ в разделе «Купить доступ»."
	default:
		return ""
	}
}

// Publisher публикует уведомления в RabbitMQ.
type Publisher struct {
	mu sync.Mutex
	ch rabbitmq.Channel
}

func NewPublisher(ch rabbitmq.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// Notify публикует событие с ключом маршрутизации, равным его типу.
// Канал amqp не безопасен для параллельной публикации.
func (p *Publisher) Notify(_ context.Context, n models.Notification) error {
	const op = "notification.Publisher.Notify"

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, string(n.Kind), n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
