package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nutrition-bot/internal/analytics"
	"github.com/nutrition-bot/internal/clock"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/service"
	"github.com/nutrition-bot/internal/types"
)

// Service interfaces for dependency injection and testing

// UserService bootstraps users and reads their settings
type UserService interface {
	EnsureUser(ctx context.Context, in *models.UserProfileInput) (*models.User, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetStreak(ctx context.Context, userID int64) types.StreakStats
	SetActivePromoCode(ctx context.Context, userID int64, code string) bool
}

// LimitService evaluates what a user may analyze
type LimitService interface {
	EvaluateLimits(ctx context.Context, userID int64, now time.Time) types.UserLimits
	DailyLimit() int
}

// TrialService activates promo codes
type TrialService interface {
	ActivateByPromoCode(ctx context.Context, userID int64, code string) bool
}

// AnalysisService runs the gated analysis pipeline
type AnalysisService interface {
	Analyze(ctx context.Context, userID int64, req *types.AnalysisRequest) *service.AnalysisOutcome
}

// PaymentService records settled charges
type PaymentService interface {
	RecordPayment(ctx context.Context, in *service.RecordPaymentInput) bool
}

// Deduper reports whether an update id is seen for the first time
type Deduper interface {
	FirstDelivery(ctx context.Context, botID string, updateID int64) (bool, error)
}

// RouterConfig holds the router dependencies. Deduper, Payments, Tracker
// and Metrics are optional.
type RouterConfig struct {
	BotID    string
	Users    UserService
	Limits   LimitService
	Trial    TrialService
	Analysis AnalysisService
	Payments PaymentService
	Deduper  Deduper
	Clock    clock.Clock
	Tracker  analytics.Tracker
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// Router answers the updates of one bot
type Router struct {
	botID    string
	users    UserService
	limits   LimitService
	trial    TrialService
	analysis AnalysisService
	payments PaymentService
	deduper  Deduper
	clock    clock.Clock
	tracker  analytics.Tracker
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewRouter creates a router for one bot
func NewRouter(cfg RouterConfig) *Router {
	c := cfg.Clock
	if c == nil {
		c = clock.System()
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Router{
		botID:    cfg.BotID,
		users:    cfg.Users,
		limits:   cfg.Limits,
		trial:    cfg.Trial,
		analysis: cfg.Analysis,
		payments: cfg.Payments,
		deduper:  cfg.Deduper,
		clock:    c,
		tracker:  tracker,
		metrics:  cfg.Metrics,
		logger:   logger.WithComponent("bot").WithField("bot", cfg.BotID),
	}
}

// BotID returns the bot this router serves
func (r *Router) BotID() string {
	return r.botID
}

// Handle processes one update and returns the reply to send, or nil when
// there is nothing to say.
func (r *Router) Handle(ctx context.Context, u *Update) *Reply {
	ctx = analytics.WithPlatform(ctx, types.PlatformTelegram)
	logger := r.logger.WithField("updateId", u.UpdateID)

	if r.deduper != nil {
		first, err := r.deduper.FirstDelivery(ctx, r.botID, u.UpdateID)
		if err != nil {
			logger.WithError(err).Warn("Delivery dedup unavailable")
		}
		if !first {
			r.metrics.DuplicateUpdate()
			logger.Debug("Dropped duplicate delivery")
			return nil
		}
	}

	switch {
	case u.PreCheckoutQuery != nil:
		return r.handlePreCheckout(u.PreCheckoutQuery)
	case u.Message != nil && u.Message.From != nil && !u.Message.From.IsBot:
		return r.handleMessage(ctx, u.Message)
	}
	return nil
}

func (r *Router) handleMessage(ctx context.Context, m *Message) *Reply {
	from := m.From
	logger := r.logger.WithUser(from.ID)

	if _, err := r.users.EnsureUser(ctx, &models.UserProfileInput{
		ID:           from.ID,
		Username:     from.Username,
		LanguageCode: from.LanguageCode,
	}); err != nil {
		logger.WithError(err).Error("Failed to register user")
		return sendMessage(m.Chat.ID, msgUnavailable)
	}

	if m.SuccessfulPayment != nil {
		return r.handlePayment(ctx, m)
	}

	if cmd, arg, ok := parseCommand(m.Text); ok {
		return r.handleCommand(ctx, m, cmd, arg)
	}

	req := &types.AnalysisRequest{
		ImageRef: LargestPhoto(m.Photo),
		Text:     strings.TrimSpace(m.Text),
		Locale:   from.LanguageCode,
	}
	if req.ImageRef != "" {
		req.Text = strings.TrimSpace(m.Caption)
	}
	if req.ImageRef == "" && req.Text == "" {
		return sendMessage(m.Chat.ID, msgUnsupported)
	}
	return r.handleAnalysis(ctx, m.Chat.ID, from.ID, req)
}

func (r *Router) handleCommand(ctx context.Context, m *Message, cmd, arg string) *Reply {
	userID := m.From.ID
	chatID := m.Chat.ID

	switch cmd {
	case "start":
		r.tracker.Track(ctx, analytics.NewEvent(userID, analytics.PlatformFrom(ctx), types.EventUserStarted, r.clock.Now(), map[string]any{
			"bot":     r.botID,
			"payload": arg,
		}))
		if arg == "" {
			return sendMessage(chatID, msgWelcome)
		}
		return sendMessage(chatID, msgWelcome+"\n\n"+r.activate(ctx, userID, arg))
	case "promo":
		if arg == "" {
			return sendMessage(chatID, msgPromoUsage)
		}
		r.users.SetActivePromoCode(ctx, userID, arg)
		return sendMessage(chatID, r.activate(ctx, userID, arg))
	case "limits":
		limits := r.limits.EvaluateLimits(ctx, userID, r.clock.Now())
		return sendMessage(chatID, formatLimits(limits, r.limits.DailyLimit()))
	case "streak":
		return sendMessage(chatID, formatStreak(r.users.GetStreak(ctx, userID)))
	}
	return sendMessage(chatID, msgUnsupported)
}

func (r *Router) activate(ctx context.Context, userID int64, code string) string {
	if !r.trial.ActivateByPromoCode(ctx, userID, code) {
		return msgPromoRejected
	}
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return formatPremiumUntil(nil)
	}
	return formatPremiumUntil(user.PremiumExpiresAt)
}

func (r *Router) handleAnalysis(ctx context.Context, chatID, userID int64, req *types.AnalysisRequest) *Reply {
	out := r.analysis.Analyze(ctx, userID, req)
	switch out.Status {
	case service.StatusCompleted:
		return sendMessage(chatID, formatOutcome(out, r.limits.DailyLimit()))
	case service.StatusImageNotAllowed:
		return sendMessage(chatID, msgImageNeedsPlan)
	case service.StatusLimitReached:
		return sendMessage(chatID, formatLimitReached(r.limits.DailyLimit()))
	case service.StatusBusy:
		return sendMessage(chatID, msgBusy)
	}
	return sendMessage(chatID, msgFailed)
}

func (r *Router) handlePayment(ctx context.Context, m *Message) *Reply {
	p := m.SuccessfulPayment
	planID, ok := parsePlanPayload(p.InvoicePayload)
	if !ok {
		r.logger.WithUser(m.From.ID).WithField("payload", p.InvoicePayload).Error("Payment with unknown payload")
		return sendMessage(m.Chat.ID, msgUnavailable)
	}
	if r.payments == nil || !r.payments.RecordPayment(ctx, &service.RecordPaymentInput{
		UserID:   m.From.ID,
		PlanID:   planID,
		ChargeID: p.TelegramPaymentChargeID,
		Amount:   p.TotalAmount,
		Currency: p.Currency,
	}) {
		return sendMessage(m.Chat.ID, msgUnavailable)
	}

	user, err := r.users.GetUser(ctx, m.From.ID)
	if err != nil {
		return sendMessage(m.Chat.ID, formatPremiumUntil(nil))
	}
	return sendMessage(m.Chat.ID, formatPremiumUntil(user.PremiumExpiresAt))
}

func (r *Router) handlePreCheckout(q *PreCheckoutQuery) *Reply {
	ok := true
	reply := &Reply{Method: "answerPreCheckoutQuery", PreCheckoutQueryID: q.ID, OK: &ok}
	if _, valid := parsePlanPayload(q.InvoicePayload); !valid {
		ok = false
		reply.ErrorMessage = "Unknown plan."
	}
	return reply
}

func sendMessage(chatID int64, text string) *Reply {
	return &Reply{Method: "sendMessage", ChatID: chatID, Text: text}
}

// parseCommand splits "/cmd@bot arg" into its parts
func parseCommand(text string) (cmd, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", "", false
	}
	cmd = strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if len(fields) > 1 {
		arg = fields[1]
	}
	return cmd, arg, true
}

func parsePlanPayload(payload string) (int64, bool) {
	rest, ok := strings.CutPrefix(payload, "plan:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
