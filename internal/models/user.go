// Package models содержит доменные структуры витрины: пользователей бота,
// тарифы, транзакции оплаты, локальные подписки и удалённые доступы панели.
package models

import (
	"strconv"
	"time"
)

// User представляет пользователя Telegram, хотя бы раз написавшего боту.
type User struct {
	TelegramID int64     // Идентификатор пользователя в Telegram
	Username   string    // Ник в Telegram, может быть пустым
	FullName   string    // Отображаемое имя
	IsBanned   bool      // Заблокирован администратором
	CreatedAt  time.Time // Дата первого обращения
}

// PanelUsername возвращает имя, под которым пользователь заведён в панели VPN.
// Имя строится только из Telegram ID: ник может смениться, ID — нет.
func PanelUsername(telegramID int64) string {
	return "user_" + strconv.FormatInt(telegramID, 10)
}
