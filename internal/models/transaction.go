package models

import "time"

// TransactionStatus — статус проверки платежа.
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionApproved TransactionStatus = "approved"
	TransactionRejected TransactionStatus = "rejected"
)

// Transaction — одна попытка покупки: скриншот чека и ожидаемая сумма.
// Статус меняется ровно один раз: pending -> approved или pending -> rejected.
// ProvisionalUntil заполняется, если по чеку был выдан временный доступ.
type Transaction struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"user_id"`
	PlanID           int               `json:"plan_id"`
	Amount           int64             `json:"amount"`
	ReceiptRef       string            `json:"receipt_ref"`
	Status           TransactionStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`
	ProvisionalUntil *time.Time        `json:"provisional_until,omitempty"`
}
