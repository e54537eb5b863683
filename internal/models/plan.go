package models

// Plan описывает тариф из каталога. Цена 0 означает пробный период,
// LimitGB 0 — безлимитный трафик.
type Plan struct {
	ID           int    `json:"id"`
	Name         string `json:"name" validate:"required"`
	Price        int64  `json:"price" validate:"min=0"`
	DurationDays int    `json:"duration_days" validate:"required,gt=0"`
	LimitGB      int64  `json:"limit_gb" validate:"min=0"`
	IsActive     bool   `json:"is_active"`
}

// IsTrial сообщает, является ли тариф бесплатным пробным.
func (p Plan) IsTrial() bool {
	return p.Price == 0
}
