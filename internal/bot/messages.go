package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/nutrition-bot/internal/service"
	"github.com/nutrition-bot/internal/types"
)

const (
	msgWelcome        = "Welcome! Send a photo of your meal or describe it in a message."
	msgPromoUsage     = "Usage: /promo CODE"
	msgPromoRejected  = "This promo code is not valid or has already been used."
	msgUnavailable    = "Something went wrong. Please try again later."
	msgBusy           = "Your previous meal is still being analyzed. Please wait a moment."
	msgFailed         = "Could not analyze this meal. It was not counted, please try again."
	msgImageNeedsPlan = "Photo analysis is available with premium. Describe the meal in text or use /promo CODE."
	msgUnsupported    = "Send a photo or a text description of your meal."
)

func formatPremiumUntil(expires *time.Time) string {
	if expires == nil {
		return "Premium activated."
	}
	return fmt.Sprintf("Premium activated until %s (UTC).", expires.UTC().Format("2006-01-02 15:04"))
}

func formatLimits(l types.UserLimits, dailyLimit int) string {
	if l.IsPremium {
		return "Premium: unlimited text and photo analyses."
	}
	return fmt.Sprintf("Text analyses left today: %d of %d. Photo analysis requires premium.",
		l.TextAnalysesRemainingToday, dailyLimit)
}

func formatStreak(s types.StreakStats) string {
	return fmt.Sprintf("Current streak: %d %s. Longest: %d %s.",
		s.CurrentStreak, days(s.CurrentStreak), s.LongestStreak, days(s.LongestStreak))
}

func days(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

func formatLimitReached(dailyLimit int) string {
	return fmt.Sprintf("You have used all %d free analyses for today. The counter resets at 00:00 UTC, or unlock unlimited analyses with /promo CODE.", dailyLimit)
}

func formatOutcome(out *service.AnalysisOutcome, dailyLimit int) string {
	r := out.Result
	var b strings.Builder
	if out.TrialActivated {
		b.WriteString("Your free trial has been activated.\n\n")
	}
	if r.Description != "" {
		b.WriteString(r.Description)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Calories: %.0f kcal\nProtein: %.1f g\nFats: %.1f g\nCarbs: %.1f g\nFiber: %.1f g\n",
		r.Calories, r.Protein, r.Fats, r.Carbs, r.Fiber)
	if r.NutritionScore > 0 {
		fmt.Fprintf(&b, "Score: %.0f/10\n", r.NutritionScore)
	}
	if r.Recommendation != "" {
		b.WriteString("\n")
		b.WriteString(r.Recommendation)
		b.WriteString("\n")
	}
	if out.Streak.CurrentStreak > 1 {
		fmt.Fprintf(&b, "\nStreak: %d days in a row", out.Streak.CurrentStreak)
	}
	if !out.Limits.IsPremium {
		fmt.Fprintf(&b, "\nFree analyses left today: %d of %d", out.Limits.TextAnalysesRemainingToday, dailyLimit)
	}
	return strings.TrimRight(b.String(), "\n")
}
