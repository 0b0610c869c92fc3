package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nutrition-bot/internal/clock"
	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/guard"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/types"
)

var errStoreDown = errors.New("connection refused")

// memStore implements every store interface in memory with the same
// conditional semantics as the Postgres repositories.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*models.User
	plans    []*models.SubscriptionPlan
	events   []*models.AnalysisEvent
	payments map[string]*models.Payment

	failUsers  bool
	failEvents bool
	failPlans  bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]*models.User),
		payments: make(map[string]*models.Payment),
	}
}

func (m *memStore) addUser(u *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.UsedPromoCodes == nil {
		u.UsedPromoCodes = []string{}
	}
	m.users[u.ID] = u
	return u
}

func (m *memStore) addPlan(p *models.SubscriptionPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = int64(len(m.plans) + 1)
	}
	m.plans = append(m.plans, p)
}

func (m *memStore) addEvent(userID int64, at time.Time, hasImage bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, &models.AnalysisEvent{UserID: userID, OccurredAt: at.UTC(), HasImage: hasImage})
}

func (m *memStore) user(id int64) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *m.users[id]
	return u
}

func (m *memStore) eventCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

// UserStore

func (m *memStore) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsers {
		return nil, apperrors.NewDatabaseError("get user", errStoreDown)
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, apperrors.NewUserNotFoundError(userID)
	}
	cp := *u
	cp.UsedPromoCodes = append([]string(nil), u.UsedPromoCodes...)
	return &cp, nil
}

func (m *memStore) Upsert(ctx context.Context, in *models.UserProfileInput, now time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsers {
		return nil, apperrors.NewDatabaseError("upsert user", errStoreDown)
	}
	u, ok := m.users[in.ID]
	if !ok {
		u = &models.User{ID: in.ID, UsedPromoCodes: []string{}, CreatedAt: now}
		m.users[in.ID] = u
	}
	if in.Username != "" {
		u.Username = in.Username
	}
	if in.LanguageCode != "" {
		u.LanguageCode = in.LanguageCode
	}
	last := now
	u.LastActivityAt = &last
	u.UpdatedAt = now
	cp := *u
	return &cp, nil
}

func (m *memStore) ConsumePromoCode(ctx context.Context, userID int64, code string, durationDays int, now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsers {
		return time.Time{}, apperrors.NewDatabaseError("consume promo code", errStoreDown)
	}
	u, ok := m.users[userID]
	if !ok {
		return time.Time{}, apperrors.NewUserNotFoundError(userID)
	}
	if u.HasUsedPromoCode(code) {
		return time.Time{}, apperrors.NewPromoAlreadyUsedError(userID, code)
	}

	base := now
	if u.PremiumExpiresAt != nil && u.PremiumExpiresAt.After(now) {
		base = *u.PremiumExpiresAt
	}
	expires := base.AddDate(0, 0, durationDays)
	u.PremiumExpiresAt = &expires
	u.UsedPromoCodes = append(u.UsedPromoCodes, code)
	u.TrialUsed = true
	return expires, nil
}

func (m *memStore) ApplyStreak(ctx context.Context, userID int64, current, longest int, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsers {
		return apperrors.NewDatabaseError("apply streak", errStoreDown)
	}
	u, ok := m.users[userID]
	if !ok {
		return apperrors.NewUserNotFoundError(userID)
	}
	d := clock.StartOfUTCDay(day)
	if u.StreakUpdatedOn != nil && !u.StreakUpdatedOn.Before(d) {
		return apperrors.ErrStaleDay
	}
	u.CurrentStreak = current
	if longest < current {
		longest = current
	}
	if longest > u.LongestStreak {
		u.LongestStreak = longest
	}
	u.StreakUpdatedOn = &d
	return nil
}

func (m *memStore) SetActivePromoCode(ctx context.Context, userID int64, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apperrors.NewUserNotFoundError(userID)
	}
	u.ActivePromoCode = code
	return nil
}

func (m *memStore) SetPremiumFlag(ctx context.Context, userID int64, premium bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apperrors.NewUserNotFoundError(userID)
	}
	u.IsPremiumFlag = premium
	return nil
}

// PlanStore

type planStore struct{ *memStore }

func (p planStore) ListByPromoCode(ctx context.Context, code string) ([]*models.SubscriptionPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPlans {
		return nil, apperrors.NewDatabaseError("list plans", errStoreDown)
	}
	var out []*models.SubscriptionPlan
	for _, plan := range p.plans {
		if plan.PromoCode == code && plan.IsActive {
			out = append(out, plan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p planStore) GetByID(ctx context.Context, planID int64) (*models.SubscriptionPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, plan := range p.plans {
		if plan.ID == planID {
			return plan, nil
		}
	}
	return nil, apperrors.NewPlanNotFoundError(planID)
}

func (p planStore) List(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.SubscriptionPlan(nil), p.plans...), nil
}

// EventStore

func (m *memStore) Insert(ctx context.Context, event *models.AnalysisEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEvents {
		return apperrors.NewDatabaseError("insert event", errStoreDown)
	}
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

func (m *memStore) CountInRange(ctx context.Context, userID int64, from, to time.Time, withImage *bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEvents {
		return 0, apperrors.NewDatabaseError("count events", errStoreDown)
	}
	w := clock.Window{From: from, To: to}
	n := 0
	for _, e := range m.events {
		if e.UserID != userID || !w.Contains(e.OccurredAt) {
			continue
		}
		if withImage != nil && e.HasImage != *withImage {
			continue
		}
		n++
	}
	return n, nil
}

// PaymentStore

func (m *memStore) RecordAndExtend(ctx context.Context, payment *models.Payment, durationDays int, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsers {
		return false, apperrors.NewDatabaseError("record payment", errStoreDown)
	}
	u, ok := m.users[payment.UserID]
	if !ok {
		return false, apperrors.NewUserNotFoundError(payment.UserID)
	}
	if _, dup := m.payments[payment.ChargeID]; dup {
		return false, nil
	}
	base := now
	if u.PremiumExpiresAt != nil && u.PremiumExpiresAt.After(now) {
		base = *u.PremiumExpiresAt
	}
	expires := base.AddDate(0, 0, durationDays)
	u.PremiumExpiresAt = &expires
	cp := *payment
	m.payments[payment.ChargeID] = &cp
	return true, nil
}

// fakeAnalyzer returns a fixed result or error
type fakeAnalyzer struct {
	mu     sync.Mutex
	result *types.AnalysisResult
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// heldLocker reports every lock as held
type heldLocker struct{}

func (heldLocker) Acquire(context.Context, int64) (Lease, error) { return nil, guard.ErrLockHeld }

// brokenLocker simulates Redis being unreachable
type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, int64) (Lease, error) { return nil, errStoreDown }

func ptrTime(t time.Time) *time.Time { return &t }
