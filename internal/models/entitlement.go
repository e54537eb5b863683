package models

// Статусы пользователя в панели Marzban.
const (
	EntitlementActive   = "active"
	EntitlementDisabled = "disabled"
)

// Entitlement — запись пользователя в панели VPN.
type Entitlement struct {
	Username        string `json:"username"`
	Status          string `json:"status"`
	Expire          *int64 `json:"expire"`     // Unix-время окончания, nil — бессрочно
	DataLimit       int64  `json:"data_limit"` // Байты, 0 — без ограничения
	UsedTraffic     int64  `json:"used_traffic"`
	SubscriptionURL string `json:"subscription_url"`
}

// EntitlementPatch — частичное изменение записи в панели.
// Передаются только заданные поля.
type EntitlementPatch struct {
	Expire    *int64  `json:"expire,omitempty"`
	DataLimit *int64  `json:"data_limit,omitempty"`
	Status    *string `json:"status,omitempty"`
}
