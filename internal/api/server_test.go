package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nutrition-bot/internal/bot"
	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/service"
	"github.com/nutrition-bot/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "s3cret-admin"

var fixedNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

// Mock services for testing

type mockUpdateHandler struct {
	updates []*bot.Update
	reply   *bot.Reply
	panics  bool
}

func (m *mockUpdateHandler) Handle(ctx context.Context, u *bot.Update) *bot.Reply {
	if m.panics {
		panic("router exploded")
	}
	m.updates = append(m.updates, u)
	return m.reply
}

type mockLimitService struct {
	limits types.UserLimits
	calls  []time.Time
}

func (m *mockLimitService) EvaluateLimits(ctx context.Context, userID int64, now time.Time) types.UserLimits {
	m.calls = append(m.calls, now)
	return m.limits
}

type mockUserService struct {
	users  map[int64]*models.User
	streak types.StreakStats
}

func (m *mockUserService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return nil, apperrors.NewUserNotFoundError(userID)
}

func (m *mockUserService) GetStreak(ctx context.Context, userID int64) types.StreakStats {
	return m.streak
}

type mockTrialService struct {
	accept bool
	codes  []string
}

func (m *mockTrialService) ActivateByPromoCode(ctx context.Context, userID int64, code string) bool {
	m.codes = append(m.codes, code)
	return m.accept
}

type mockPaymentService struct {
	accept bool
	inputs []*service.RecordPaymentInput
}

func (m *mockPaymentService) RecordPayment(ctx context.Context, in *service.RecordPaymentInput) bool {
	m.inputs = append(m.inputs, in)
	return m.accept
}

type mockPlanLister struct {
	plans []*models.SubscriptionPlan
	err   error
	promo string
}

func (m *mockPlanLister) List(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	return m.plans, m.err
}

func (m *mockPlanLister) ListByPromoCode(ctx context.Context, code string) ([]*models.SubscriptionPlan, error) {
	m.promo = code
	var out []*models.SubscriptionPlan
	for _, p := range m.plans {
		if p.PromoCode == code {
			out = append(out, p)
		}
	}
	return out, m.err
}

type testServer struct {
	server   *Server
	hook     *mockUpdateHandler
	limits   *mockLimitService
	users    *mockUserService
	trial    *mockTrialService
	payments *mockPaymentService
	plans    *mockPlanLister
	registry *prometheus.Registry
}

func setupTestServer(t *testing.T, mutate func(*ServerConfig, *Dependencies)) *testServer {
	t.Helper()
	ts := &testServer{
		hook:     &mockUpdateHandler{},
		limits:   &mockLimitService{},
		users:    &mockUserService{users: map[int64]*models.User{}},
		trial:    &mockTrialService{},
		payments: &mockPaymentService{accept: true},
		plans:    &mockPlanLister{},
		registry: prometheus.NewRegistry(),
	}
	cfg := &ServerConfig{
		Host:           "127.0.0.1",
		Port:           "0",
		RequestTimeout: time.Minute,
		AdminToken:     adminToken,
	}
	deps := Dependencies{
		Webhooks: map[string]Webhook{"main": {Secret: "hook-secret", Handler: ts.hook}},
		Limits:   ts.limits,
		Users:    ts.users,
		Trial:    ts.trial,
		Payments: ts.payments,
		Plans:    ts.plans,
		Gatherer: ts.registry,
		Logger:   logging.Discard(),
		Now:      func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}
	ts.server = NewServer(cfg, deps)
	return ts
}

func (ts *testServer) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, req)
	return rr
}

func adminHeader() http.Header {
	return http.Header{"Authorization": {"Bearer " + adminToken}}
}

func hookHeader() http.Header {
	return http.Header{SecretTokenHeader: {"hook-secret"}}
}

const updateJSON = `{"update_id":1,"message":{"message_id":1,"from":{"id":42,"is_bot":false,"first_name":"Sam"},"chat":{"id":42,"type":"private"},"text":"/limits"}}`

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		ts := setupTestServer(t, func(_ *ServerConfig, d *Dependencies) {
			d.Health = map[string]HealthCheck{"postgres": func(context.Context) error { return nil }}
		})
		rr := ts.do("GET", "/health", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"postgres":"ok"`)
	})

	t.Run("degraded", func(t *testing.T) {
		ts := setupTestServer(t, func(_ *ServerConfig, d *Dependencies) {
			d.Health = map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("dial tcp: refused") }}
		})
		rr := ts.do("GET", "/health", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "degraded")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, nil)
	m := metrics.New(ts.registry)
	m.LimitDecision("allowed")

	rr := ts.do("GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "limits_decisions_total")
}

func TestWebhook(t *testing.T) {
	t.Run("replies in the response body", func(t *testing.T) {
		ts := setupTestServer(t, nil)
		ts.hook.reply = &bot.Reply{Method: "sendMessage", ChatID: 42, Text: "hi"}

		rr := ts.do("POST", "/webhook/main", updateJSON, hookHeader())

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"method":"sendMessage","chat_id":42,"text":"hi"}`, rr.Body.String())
		require.Len(t, ts.hook.updates, 1)
		assert.Equal(t, int64(42), ts.hook.updates[0].Message.From.ID)
	})

	t.Run("no reply", func(t *testing.T) {
		ts := setupTestServer(t, nil)
		rr := ts.do("POST", "/webhook/main", updateJSON, hookHeader())
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Body.String())
	})

	t.Run("unknown bot", func(t *testing.T) {
		ts := setupTestServer(t, nil)
		rr := ts.do("POST", "/webhook/other", updateJSON, hookHeader())
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		ts := setupTestServer(t, nil)
		rr := ts.do("POST", "/webhook/main", updateJSON, http.Header{SecretTokenHeader: {"nope"}})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, ts.hook.updates)
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := setupTestServer(t, nil)
		rr := ts.do("POST", "/webhook/main", "{", hookHeader())
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("per chat rate limit", func(t *testing.T) {
		ts := setupTestServer(t, func(c *ServerConfig, _ *Dependencies) {
			c.PerChatRPS = 0.001
			c.PerChatBurst = 2
		})
		for i := 0; i < 2; i++ {
			require.Equal(t, http.StatusOK, ts.do("POST", "/webhook/main", updateJSON, hookHeader()).Code)
		}
		rr := ts.do("POST", "/webhook/main", updateJSON, hookHeader())

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), msgSlowDown)
		assert.Len(t, ts.hook.updates, 2)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		ts := setupTestServer(t, nil)
		ts.hook.panics = true
		rr := ts.do("POST", "/webhook/main", updateJSON, hookHeader())
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestAdminAuth(t *testing.T) {
	ts := setupTestServer(t, nil)
	assert.Equal(t, http.StatusUnauthorized, ts.do("GET", "/api/users/1/limits", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do("GET", "/api/users/1/limits", "", http.Header{"Authorization": {"Bearer wrong"}}).Code)

	disabled := setupTestServer(t, func(c *ServerConfig, _ *Dependencies) { c.AdminToken = "" })
	assert.Equal(t, http.StatusForbidden, disabled.do("GET", "/api/users/1/limits", "", adminHeader()).Code)
}

func TestGetLimits(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.limits.limits = types.UserLimits{CanAnalyzeText: true, TextAnalysesRemainingToday: 2}

	rr := ts.do("GET", "/api/users/7/limits", "", adminHeader())

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"canAnalyzeText":true,"canAnalyzeImage":false,"textAnalysesRemainingToday":2,"isPremium":false}`, rr.Body.String())
	assert.Equal(t, []time.Time{fixedNow}, ts.limits.calls)

	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/users/abc/limits", "", adminHeader()).Code)
}

func TestGetUserAndStreak(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.users.users[7] = &models.User{ID: 7, Username: "sam", UsedPromoCodes: []string{"TRIAL"}}
	ts.users.streak = types.StreakStats{CurrentStreak: 3, LongestStreak: 5}

	rr := ts.do("GET", "/api/users/7", "", adminHeader())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"username":"sam"`)

	rr = ts.do("GET", "/api/users/8", "", adminHeader())
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do("GET", "/api/users/7/streak", "", adminHeader())
	assert.JSONEq(t, `{"currentStreak":3,"longestStreak":5}`, rr.Body.String())
}

func TestActivatePromo(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.trial.accept = true
	ts.limits.limits = types.UnlimitedLimits()

	rr := ts.do("POST", "/api/users/7/promo", `{"code":"summer"}`, adminHeader())

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Activated bool             `json:"activated"`
		Limits    types.UserLimits `json:"limits"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&body))
	assert.True(t, body.Activated)
	assert.True(t, body.Limits.IsPremium)
	assert.Equal(t, []string{"summer"}, ts.trial.codes)

	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/api/users/7/promo", `{"code":"  "}`, adminHeader()).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/api/users/7/promo", `{"coupon":"x"}`, adminHeader()).Code)
}

func TestRecordPayment(t *testing.T) {
	ts := setupTestServer(t, nil)

	rr := ts.do("POST", "/api/payments", `{"userId":7,"planId":2,"chargeId":"ch_1","amount":250}`, adminHeader())
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, ts.payments.inputs, 1)
	assert.Equal(t, "ch_1", ts.payments.inputs[0].ChargeID)

	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/api/payments", `{"userId":7,"planId":2}`, adminHeader()).Code)

	ts.payments.accept = false
	assert.Equal(t, http.StatusUnprocessableEntity, ts.do("POST", "/api/payments", `{"userId":7,"planId":2,"chargeId":"ch_2"}`, adminHeader()).Code)
}

func TestListPlans(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.plans.plans = []*models.SubscriptionPlan{
		{ID: 1, Name: "Trial", DurationDays: 7, PromoCode: "TRIAL", IsActive: true},
		{ID: 2, Name: "Month", Price: 250, DurationDays: 30, IsActive: true},
	}

	rr := ts.do("GET", "/api/plans", "", adminHeader())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":2`)

	rr = ts.do("GET", "/api/plans?promo=trial", "", adminHeader())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":1`)
	assert.Equal(t, "TRIAL", ts.plans.promo)

	ts.plans.err = apperrors.NewDatabaseError("list plans", errors.New("connection refused"))
	assert.Equal(t, http.StatusServiceUnavailable, ts.do("GET", "/api/plans", "", adminHeader()).Code)
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.NewUserNotFoundError(1), http.StatusNotFound, ErrCodeNotFound},
		{apperrors.NewPromoAlreadyUsedError(1, "TRIAL"), http.StatusConflict, ErrCodeConflict},
		{apperrors.NewValidationError("code", "empty"), http.StatusBadRequest, ErrCodeInvalidInput},
		{apperrors.NewDatabaseError("get", errors.New("down")), http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		status, code, _ := mapServiceError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	assert.True(t, rl.AllowChat("main", 1))
	assert.False(t, rl.AllowChat("main", 1))
	assert.True(t, rl.AllowChat("main", 2))
	assert.True(t, rl.AllowChat("other", 1))

	unlimited := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.AllowChat("main", 1))
	}
}
