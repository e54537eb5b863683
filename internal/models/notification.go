package models

import "time"

// NotificationKind определяет тип события для уведомления.
type NotificationKind string

const (
	KindReviewRequested NotificationKind = "review"
	KindApproved        NotificationKind = "approved"
	KindRejected        NotificationKind = "rejected"
	KindExpired         NotificationKind = "expired"
)

// Notification — событие движка подписок, которое слой представления
// превращает в сообщение пользователю или администратору.
type Notification struct {
	Kind          NotificationKind `json:"kind"`
	UserID        int64            `json:"user_id"`
	TransactionID int64            `json:"transaction_id,omitempty"`
	ReceiptRef    string           `json:"receipt_ref,omitempty"`
	Amount        int64            `json:"amount,omitempty"`
	PlanName      string           `json:"plan_name,omitempty"`
	AccessLink    string           `json:"access_link,omitempty"`
	ExpireAt      *time.Time       `json:"expire_at,omitempty"`
	Provisioned   bool             `json:"provisioned,omitempty"`
}
