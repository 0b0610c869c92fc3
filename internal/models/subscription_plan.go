package models

// SubscriptionPlan is a named offer. Plans with Price 0 are trial plans;
// several plans may share one promo code.
type SubscriptionPlan struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Price        int64  `json:"price" db:"price"`
	DurationDays int    `json:"durationDays" db:"duration_days"`
	PromoCode    string `json:"promoCode,omitempty" db:"promo_code"`
	IsActive     bool   `json:"isActive" db:"is_active"`
}

// IsTrial reports whether the plan can be activated for free.
func (p *SubscriptionPlan) IsTrial() bool {
	return p.Price == 0 && p.DurationDays > 0
}
