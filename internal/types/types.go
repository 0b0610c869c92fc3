// Package types provides common type definitions for the nutrition bot core.
package types

// UnlimitedAnalyses is the remaining-count sentinel reported for premium users.
const UnlimitedAnalyses = -1

// DefaultDailyTextLimit is the number of free text analyses per UTC day.
const DefaultDailyTextLimit = 5

// Platform identifies the messaging platform an event originated from
type Platform string

const (
	// PlatformTelegram is the Telegram bot platform
	PlatformTelegram Platform = "telegram"
	// PlatformAdmin marks events triggered through the admin surface
	PlatformAdmin Platform = "admin"
)

// EventType identifies an analytics event
type EventType string

const (
	EventUserStarted       EventType = "user_started"
	EventAnalysisRequested EventType = "analysis_requested"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventAnalysisFailed    EventType = "analysis_failed"
	EventLimitReached      EventType = "limit_reached"
	EventTrialActivated    EventType = "trial_activated"
	EventPromoRejected     EventType = "promo_rejected"
	EventPaymentRecorded   EventType = "payment_recorded"
	EventStreakUpdated     EventType = "streak_updated"
	EventDuplicateDelivery EventType = "duplicate_delivery"
)

// UserLimits is the result of a limit evaluation.
// TextAnalysesRemainingToday is UnlimitedAnalyses for premium users.
type UserLimits struct {
	CanAnalyzeText             bool `json:"canAnalyzeText"`
	CanAnalyzeImage            bool `json:"canAnalyzeImage"`
	TextAnalysesRemainingToday int  `json:"textAnalysesRemainingToday"`
	IsPremium                  bool `json:"isPremium"`
}

// DeniedLimits is the fail-closed evaluation result.
func DeniedLimits() UserLimits {
	return UserLimits{}
}

// UnlimitedLimits is the evaluation result for premium users.
func UnlimitedLimits() UserLimits {
	return UserLimits{
		CanAnalyzeText:             true,
		CanAnalyzeImage:            true,
		TextAnalysesRemainingToday: UnlimitedAnalyses,
		IsPremium:                  true,
	}
}

// Allows reports whether the limits permit an analysis of the given kind.
func (l UserLimits) Allows(hasImage bool) bool {
	if hasImage {
		return l.CanAnalyzeImage
	}
	return l.CanAnalyzeText
}

// StreakStats reports a user's consecutive-day usage counters
type StreakStats struct {
	CurrentStreak int `json:"currentStreak"`
	LongestStreak int `json:"longestStreak"`
}

// UserProfile carries optional body data forwarded to the analyzer
type UserProfile struct {
	Gender   string  `json:"gender,omitempty"`
	Age      int     `json:"age,omitempty"`
	HeightCm int     `json:"heightCm,omitempty"`
	WeightKg float64 `json:"weightKg,omitempty"`
	Goal     string  `json:"goal,omitempty"`
}

// AnalysisRequest is the input to the external food analyzer.
// ImageRef is an opaque platform handle (a Telegram file id).
type AnalysisRequest struct {
	ImageRef string       `json:"imageRef,omitempty"`
	Text     string       `json:"text,omitempty"`
	Locale   string       `json:"locale,omitempty"`
	Profile  *UserProfile `json:"profile,omitempty"`
}

// HasImage reports whether the request carries an image.
func (r AnalysisRequest) HasImage() bool {
	return r.ImageRef != ""
}

// AnalysisResult is the nutrition breakdown returned by the analyzer
type AnalysisResult struct {
	Description    string  `json:"description"`
	Mass           float64 `json:"mass"`
	Calories       float64 `json:"calories"`
	Protein        float64 `json:"protein"`
	Carbs          float64 `json:"carbs"`
	Sugar          float64 `json:"sugar"`
	Fats           float64 `json:"fats"`
	SaturatedFats  float64 `json:"saturatedFats"`
	Fiber          float64 `json:"fiber"`
	NutritionScore float64 `json:"nutritionScore"`
	Recommendation string  `json:"recommendation"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
