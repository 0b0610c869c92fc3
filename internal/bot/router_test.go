package bot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nutrition-bot/internal/analytics"
	"github.com/nutrition-bot/internal/clock"
	"github.com/nutrition-bot/internal/guard"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/service"
	"github.com/nutrition-bot/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

// Mock services for testing

type mockUsers struct {
	ensureErr error
	ensured   []*models.UserProfileInput
	user      *models.User
	streak    types.StreakStats
	selected  string
}

func (m *mockUsers) EnsureUser(ctx context.Context, in *models.UserProfileInput) (*models.User, error) {
	if m.ensureErr != nil {
		return nil, m.ensureErr
	}
	m.ensured = append(m.ensured, in)
	return &models.User{ID: in.ID}, nil
}

func (m *mockUsers) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	if m.user == nil {
		return nil, errors.New("not found")
	}
	return m.user, nil
}

func (m *mockUsers) GetStreak(ctx context.Context, userID int64) types.StreakStats {
	return m.streak
}

func (m *mockUsers) SetActivePromoCode(ctx context.Context, userID int64, code string) bool {
	m.selected = code
	return true
}

type mockLimits struct {
	limits types.UserLimits
}

func (m *mockLimits) EvaluateLimits(ctx context.Context, userID int64, now time.Time) types.UserLimits {
	return m.limits
}

func (m *mockLimits) DailyLimit() int { return types.DefaultDailyTextLimit }

type mockTrial struct {
	accept bool
	codes  []string
}

func (m *mockTrial) ActivateByPromoCode(ctx context.Context, userID int64, code string) bool {
	m.codes = append(m.codes, code)
	return m.accept
}

type mockAnalysis struct {
	outcome  *service.AnalysisOutcome
	requests []*types.AnalysisRequest
	platform types.Platform
}

func (m *mockAnalysis) Analyze(ctx context.Context, userID int64, req *types.AnalysisRequest) *service.AnalysisOutcome {
	m.requests = append(m.requests, req)
	m.platform = analytics.PlatformFrom(ctx)
	return m.outcome
}

type mockPayments struct {
	inputs []*service.RecordPaymentInput
	accept bool
}

func (m *mockPayments) RecordPayment(ctx context.Context, in *service.RecordPaymentInput) bool {
	m.inputs = append(m.inputs, in)
	return m.accept
}

type routerFixture struct {
	users    *mockUsers
	limits   *mockLimits
	trial    *mockTrial
	analysis *mockAnalysis
	payments *mockPayments
	tracker  *analytics.Recorder
	router   *Router
}

func newRouterFixture(t *testing.T, deduper Deduper) *routerFixture {
	t.Helper()
	f := &routerFixture{
		users:    &mockUsers{},
		limits:   &mockLimits{},
		trial:    &mockTrial{},
		analysis: &mockAnalysis{outcome: &service.AnalysisOutcome{Status: service.StatusFailed}},
		payments: &mockPayments{accept: true},
		tracker:  analytics.NewRecorder(),
	}
	f.router = NewRouter(RouterConfig{
		BotID:    "main",
		Users:    f.users,
		Limits:   f.limits,
		Trial:    f.trial,
		Analysis: f.analysis,
		Payments: f.payments,
		Deduper:  deduper,
		Clock:    clock.NewFixed(now),
		Tracker:  f.tracker,
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Logger:   logging.Discard(),
	})
	return f
}

func textUpdate(id int64, text string) *Update {
	return &Update{
		UpdateID: id,
		Message: &Message{
			MessageID: id,
			From:      &User{ID: 42, FirstName: "Sam", Username: "sam", LanguageCode: "en"},
			Chat:      Chat{ID: 42, Type: "private"},
			Text:      text,
		},
	}
}

func TestHandle_Start(t *testing.T) {
	f := newRouterFixture(t, nil)

	reply := f.router.Handle(context.Background(), textUpdate(1, "/start"))

	require.NotNil(t, reply)
	assert.Equal(t, "sendMessage", reply.Method)
	assert.Equal(t, int64(42), reply.ChatID)
	assert.Equal(t, msgWelcome, reply.Text)
	require.Len(t, f.users.ensured, 1)
	assert.Equal(t, "sam", f.users.ensured[0].Username)
	assert.Equal(t, []types.EventType{types.EventUserStarted}, f.tracker.Types())
	assert.Empty(t, f.trial.codes)
}

func TestHandle_StartWithCode(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.trial.accept = true
	expires := now.AddDate(0, 0, 7)
	f.users.user = &models.User{ID: 42, PremiumExpiresAt: &expires}

	reply := f.router.Handle(context.Background(), textUpdate(1, "/start SUMMER"))

	assert.Equal(t, []string{"SUMMER"}, f.trial.codes)
	assert.Contains(t, reply.Text, "Premium activated until 2025-06-22 14:30")
}

func TestHandle_Promo(t *testing.T) {
	t.Run("usage", func(t *testing.T) {
		f := newRouterFixture(t, nil)
		reply := f.router.Handle(context.Background(), textUpdate(1, "/promo"))
		assert.Equal(t, msgPromoUsage, reply.Text)
	})

	t.Run("rejected", func(t *testing.T) {
		f := newRouterFixture(t, nil)
		reply := f.router.Handle(context.Background(), textUpdate(1, "/promo@nutrition_bot spring"))
		assert.Equal(t, msgPromoRejected, reply.Text)
		assert.Equal(t, "spring", f.users.selected)
		assert.Equal(t, []string{"spring"}, f.trial.codes)
	})
}

func TestHandle_Limits(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.limits.limits = types.UserLimits{CanAnalyzeText: true, TextAnalysesRemainingToday: 3}

	reply := f.router.Handle(context.Background(), textUpdate(1, "/limits"))
	assert.Equal(t, "Text analyses left today: 3 of 5. Photo analysis requires premium.", reply.Text)

	f.limits.limits = types.UnlimitedLimits()
	reply = f.router.Handle(context.Background(), textUpdate(2, "/limits"))
	assert.Contains(t, reply.Text, "unlimited")
}

func TestHandle_Streak(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.users.streak = types.StreakStats{CurrentStreak: 1, LongestStreak: 4}

	reply := f.router.Handle(context.Background(), textUpdate(1, "/streak"))
	assert.Equal(t, "Current streak: 1 day. Longest: 4 days.", reply.Text)
}

func TestHandle_TextAnalysis(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.analysis.outcome = &service.AnalysisOutcome{
		Status: service.StatusCompleted,
		Result: &types.AnalysisResult{Description: "Oatmeal with banana", Calories: 320, Protein: 9},
		Limits: types.UserLimits{CanAnalyzeText: true, TextAnalysesRemainingToday: 4},
		Streak: types.StreakStats{CurrentStreak: 3, LongestStreak: 3},
	}

	reply := f.router.Handle(context.Background(), textUpdate(1, "  oatmeal with banana "))

	require.Len(t, f.analysis.requests, 1)
	req := f.analysis.requests[0]
	assert.Equal(t, "oatmeal with banana", req.Text)
	assert.Empty(t, req.ImageRef)
	assert.Equal(t, "en", req.Locale)
	assert.Equal(t, types.PlatformTelegram, f.analysis.platform)

	assert.Contains(t, reply.Text, "Oatmeal with banana")
	assert.Contains(t, reply.Text, "Calories: 320 kcal")
	assert.Contains(t, reply.Text, "Streak: 3 days in a row")
	assert.Contains(t, reply.Text, "Free analyses left today: 4 of 5")
}

func TestHandle_PhotoUsesLargestSize(t *testing.T) {
	f := newRouterFixture(t, nil)
	u := textUpdate(1, "")
	u.Message.Caption = "lunch"
	u.Message.Photo = []PhotoSize{
		{FileID: "small", Width: 90, Height: 90},
		{FileID: "large", Width: 1280, Height: 960},
		{FileID: "medium", Width: 320, Height: 240},
	}

	f.router.Handle(context.Background(), u)

	require.Len(t, f.analysis.requests, 1)
	assert.Equal(t, "large", f.analysis.requests[0].ImageRef)
	assert.Equal(t, "lunch", f.analysis.requests[0].Text)
}

func TestHandle_AnalysisStatuses(t *testing.T) {
	tests := []struct {
		status service.AnalysisStatus
		want   string
	}{
		{service.StatusImageNotAllowed, msgImageNeedsPlan},
		{service.StatusBusy, msgBusy},
		{service.StatusFailed, msgFailed},
		{service.StatusLimitReached, formatLimitReached(types.DefaultDailyTextLimit)},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newRouterFixture(t, nil)
			f.analysis.outcome = &service.AnalysisOutcome{Status: tt.status}
			reply := f.router.Handle(context.Background(), textUpdate(1, "soup"))
			assert.Equal(t, tt.want, reply.Text)
		})
	}
}

func TestHandle_UserStoreDown(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.users.ensureErr = errors.New("connection refused")

	reply := f.router.Handle(context.Background(), textUpdate(1, "soup"))

	assert.Equal(t, msgUnavailable, reply.Text)
	assert.Empty(t, f.analysis.requests)
}

func TestHandle_IgnoresBotsAndEmptyUpdates(t *testing.T) {
	f := newRouterFixture(t, nil)
	u := textUpdate(1, "hi")
	u.Message.From.IsBot = true

	assert.Nil(t, f.router.Handle(context.Background(), u))
	assert.Nil(t, f.router.Handle(context.Background(), &Update{UpdateID: 2}))
	assert.Empty(t, f.users.ensured)
}

func TestHandle_DuplicateDeliveryDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newRouterFixture(t, guard.NewDeliveryDeduper(client, time.Hour))
	f.analysis.outcome = &service.AnalysisOutcome{Status: service.StatusFailed}

	require.NotNil(t, f.router.Handle(context.Background(), textUpdate(7, "soup")))
	assert.Nil(t, f.router.Handle(context.Background(), textUpdate(7, "soup")))
	assert.Len(t, f.analysis.requests, 1)

	require.NotNil(t, f.router.Handle(context.Background(), textUpdate(8, "soup")))
	assert.Len(t, f.analysis.requests, 2)
}

func TestHandle_DeduperDownProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	f := newRouterFixture(t, guard.NewDeliveryDeduper(client, time.Hour))
	require.NotNil(t, f.router.Handle(context.Background(), textUpdate(7, "soup")))
	assert.Len(t, f.analysis.requests, 1)
}

func TestHandle_SuccessfulPayment(t *testing.T) {
	f := newRouterFixture(t, nil)
	expires := now.AddDate(0, 0, 30)
	f.users.user = &models.User{ID: 42, PremiumExpiresAt: &expires}
	u := textUpdate(1, "")
	u.Message.SuccessfulPayment = &SuccessfulPayment{
		Currency:                "XTR",
		TotalAmount:             250,
		InvoicePayload:          "plan:10",
		TelegramPaymentChargeID: "stxAbc",
	}

	reply := f.router.Handle(context.Background(), u)

	require.Len(t, f.payments.inputs, 1)
	assert.Equal(t, &service.RecordPaymentInput{UserID: 42, PlanID: 10, ChargeID: "stxAbc", Amount: 250, Currency: "XTR"}, f.payments.inputs[0])
	assert.Contains(t, reply.Text, "2025-07-15")
	assert.Empty(t, f.analysis.requests)
}

func TestHandle_PreCheckout(t *testing.T) {
	f := newRouterFixture(t, nil)

	reply := f.router.Handle(context.Background(), &Update{UpdateID: 1, PreCheckoutQuery: &PreCheckoutQuery{ID: "q1", InvoicePayload: "plan:3"}})
	require.NotNil(t, reply.OK)
	assert.True(t, *reply.OK)
	assert.Equal(t, "answerPreCheckoutQuery", reply.Method)

	reply = f.router.Handle(context.Background(), &Update{UpdateID: 2, PreCheckoutQuery: &PreCheckoutQuery{ID: "q2", InvoicePayload: "gift"}})
	assert.False(t, *reply.OK)
	assert.NotEmpty(t, reply.ErrorMessage)
}

func TestUpdate_DecodesTelegramJSON(t *testing.T) {
	raw := `{"update_id":900,"message":{"message_id":5,"from":{"id":42,"is_bot":false,"first_name":"Sam","language_code":"ru"},
		"chat":{"id":42,"type":"private"},"date":1718461800,"caption":"ужин",
		"photo":[{"file_id":"a","width":90,"height":67},{"file_id":"b","width":1280,"height":960}]}}`

	var u Update
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	assert.Equal(t, int64(900), u.UpdateID)
	assert.Equal(t, int64(42), u.ChatID())
	assert.Equal(t, "b", LargestPhoto(u.Message.Photo))
}

func TestLargestPhoto(t *testing.T) {
	assert.Equal(t, "", LargestPhoto(nil))
	assert.Equal(t, "first", LargestPhoto([]PhotoSize{
		{FileID: "first", Width: 100, Height: 50},
		{FileID: "second", Width: 50, Height: 100},
	}))
	assert.Equal(t, "wide", LargestPhoto([]PhotoSize{
		{FileID: "tall", Width: 10, Height: 1000},
		{FileID: "wide", Width: 2000, Height: 10},
	}))
}

func TestReplyJSON(t *testing.T) {
	b, err := json.Marshal(sendMessage(42, "hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"sendMessage","chat_id":42,"text":"hi"}`, string(b))
}
