package models

import "time"

// Payment records a settled purchase that extended a user's premium
type Payment struct {
	ChargeID  string    `json:"chargeId" db:"charge_id"`
	UserID    int64     `json:"userId" db:"user_id"`
	PlanID    int64     `json:"planId" db:"plan_id"`
	Amount    int64     `json:"amount" db:"amount"`
	Currency  string    `json:"currency" db:"currency"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
