package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Messenger отправляет уведомления через Telegram Bot API.
type Messenger struct {
	api Sender
}

// Sender — часть *tgbotapi.BotAPI, нужная для отправки сообщений.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

func NewMessenger(api Sender) *Messenger {
	return &Messenger{api: api}
}

// SendText отправляет текстовое сообщение.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string) error {
	const op = "bot.SendText"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := m.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SendReceipt пересылает администратору скриншот чека с кнопками проверки.
func (m *Messenger) SendReceipt(ctx context.Context, chatID int64, fileID, caption string, txID int64) error {
	const op = "bot.SendReceipt"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	photo.Caption = caption
	photo.ReplyMarkup = reviewKeyboard(txID)
	if _, err := m.api.Send(photo); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
