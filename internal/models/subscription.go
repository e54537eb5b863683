package models

import "time"

// SubscriptionStatus — локальный статус доступа пользователя.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Subscription — локальная копия доступа пользователя, по одной строке на пользователя.
// Источником истины для доступа остаётся панель, строка нужна для профиля
// и как точка сравнения при проверке истёкших подписок.
type Subscription struct {
	ID         int64              `json:"id"`
	UserID     int64              `json:"user_id"`
	AccessLink string             `json:"access_link"`
	ExpireDate time.Time          `json:"expire_date"`
	Status     SubscriptionStatus `json:"status"`
	UpdatedAt  time.Time          `json:"updated_at"`
}
