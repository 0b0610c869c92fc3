// Package api provides the HTTP surface: Telegram webhooks, health, metrics
// and the bearer-protected admin routes.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nutrition-bot/internal/bot"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/service"
	"github.com/nutrition-bot/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service interfaces for dependency injection and testing

// UpdateHandler answers one Telegram update
type UpdateHandler interface {
	Handle(ctx context.Context, u *bot.Update) *bot.Reply
}

// LimitServiceInterface defines the limit evaluation operations
type LimitServiceInterface interface {
	EvaluateLimits(ctx context.Context, userID int64, now time.Time) types.UserLimits
}

// UserServiceInterface defines the user operations used by admin routes
type UserServiceInterface interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetStreak(ctx context.Context, userID int64) types.StreakStats
}

// TrialServiceInterface defines promo activation
type TrialServiceInterface interface {
	ActivateByPromoCode(ctx context.Context, userID int64, code string) bool
}

// PaymentServiceInterface defines payment recording
type PaymentServiceInterface interface {
	RecordPayment(ctx context.Context, in *service.RecordPaymentInput) bool
}

// PlanLister defines plan lookups
type PlanLister interface {
	List(ctx context.Context) ([]*models.SubscriptionPlan, error)
	ListByPromoCode(ctx context.Context, code string) ([]*models.SubscriptionPlan, error)
}

// HealthCheck reports the state of one dependency
type HealthCheck func(ctx context.Context) error

// Webhook binds a bot id to its router and secret token
type Webhook struct {
	Secret  string
	Handler UpdateHandler
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration // upper bound for one webhook update
	AdminToken      string        // admin routes are disabled when empty
	PerChatRPS      float64
	PerChatBurst    int
}

// Dependencies groups what the routes call into. Gatherer defaults to the
// Prometheus default registry.
type Dependencies struct {
	Webhooks map[string]Webhook
	Limits   LimitServiceInterface
	Users    UserServiceInterface
	Trial    TrialServiceInterface
	Payments PaymentServiceInterface
	Plans    PlanLister
	Health   map[string]HealthCheck
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
	Now      func() time.Time
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	deps        Dependencies
	rateLimiter *RateLimiter
	config      *ServerConfig
	logger      *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.GetGlobalLogger()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}

	s := &Server{
		router:      mux.NewRouter(),
		deps:        deps,
		rateLimiter: NewRateLimiter(config.PerChatRPS, config.PerChatBurst),
		config:      config,
		logger:      deps.Logger.WithComponent("api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Telegram webhooks, one path per bot
	s.router.HandleFunc("/webhook/{botID}", s.handleWebhook).Methods("POST")

	// Admin routes
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(AdminAuthMiddleware(s.config.AdminToken))

	api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")
	api.HandleFunc("/users/{id}/limits", s.handleGetLimits).Methods("GET")
	api.HandleFunc("/users/{id}/streak", s.handleGetStreak).Methods("GET")
	api.HandleFunc("/users/{id}/promo", s.handleActivatePromo).Methods("POST")
	api.HandleFunc("/payments", s.handleRecordPayment).Methods("POST")
	api.HandleFunc("/plans", s.handleListPlans).Methods("GET")
}

// Handler returns the routed handler, used by the Lambda entry point.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Health))
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":  state,
		"service": "nutrition-bot",
		"checks":  checks,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
