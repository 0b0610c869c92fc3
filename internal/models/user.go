// Package models provides data models for the nutrition bot core.
package models

import (
	"time"

	"github.com/nutrition-bot/internal/types"
)

// User represents a bot user and the entitlement and streak state owned by the core
type User struct {
	ID               int64      `json:"id" db:"user_id"`
	Username         string     `json:"username,omitempty" db:"username"`
	LanguageCode     string     `json:"languageCode,omitempty" db:"language_code"`
	IsPremiumFlag    bool       `json:"isPremium" db:"is_premium"`
	PremiumExpiresAt *time.Time `json:"premiumExpiresAt,omitempty" db:"premium_expires_at"`
	TrialUsed        bool       `json:"trialUsed" db:"trial_used"`
	UsedPromoCodes   []string   `json:"usedPromoCodes" db:"used_promo_codes"`
	ActivePromoCode  string     `json:"activePromoCode,omitempty" db:"active_promo_code"`
	CurrentStreak    int        `json:"currentStreak" db:"current_streak"`
	LongestStreak    int        `json:"longestStreak" db:"longest_streak"`
	StreakUpdatedOn  *time.Time `json:"streakUpdatedOn,omitempty" db:"streak_updated_on"`
	LastActivityAt   *time.Time `json:"lastActivityAt,omitempty" db:"last_activity_at"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsPremiumAt reports whether the user holds premium at now: either the
// explicit flag is set or the expiry lies strictly in the future.
func (u *User) IsPremiumAt(now time.Time) bool {
	if u.IsPremiumFlag {
		return true
	}
	return u.PremiumExpiresAt != nil && u.PremiumExpiresAt.After(now)
}

// HasUsedPromoCode reports whether code has already been consumed.
func (u *User) HasUsedPromoCode(code string) bool {
	for _, used := range u.UsedPromoCodes {
		if used == code {
			return true
		}
	}
	return false
}

// Streaks returns the user's streak counters.
func (u *User) Streaks() types.StreakStats {
	return types.StreakStats{
		CurrentStreak: u.CurrentStreak,
		LongestStreak: u.LongestStreak,
	}
}

// UserProfileInput is the platform-supplied identity used to upsert a user
type UserProfileInput struct {
	ID           int64
	Username     string
	LanguageCode string
}
