// Package app wires configuration, storage and services into the HTTP
// server shared by the long-running and Lambda entry points.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nutrition-bot/internal/adapter"
	"github.com/nutrition-bot/internal/analytics"
	"github.com/nutrition-bot/internal/api"
	"github.com/nutrition-bot/internal/bot"
	"github.com/nutrition-bot/internal/circuitbreaker"
	"github.com/nutrition-bot/internal/clock"
	"github.com/nutrition-bot/internal/config"
	"github.com/nutrition-bot/internal/guard"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/service"
	"github.com/nutrition-bot/internal/storage"
	"github.com/nutrition-bot/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App holds every long-lived component of one process
type App struct {
	Config     *config.Config
	Postgres   *storage.PostgresDB
	Redis      *storage.RedisCache
	ClickHouse *storage.ClickHouseDB
	Analytics  *worker.AnalyticsWorker
	Registry   *prometheus.Registry
	Server     *api.Server
	logger     *logging.Logger
}

// New connects to the stores and builds the server. Redis and ClickHouse
// are optional: without Redis there is no per-user lock or delivery dedup,
// without ClickHouse analytics events are only logged.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.GetGlobalLogger()
	a := &App{Config: cfg, logger: logger}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	a.Postgres = postgres

	if redisCache, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without locks and dedup")
	} else {
		a.Redis = redisCache
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry)

	var tracker analytics.Tracker = analytics.NewLogTracker(logger)
	if cfg.Analytics.ClickHouse.Enabled() {
		ch, err := storage.NewClickHouseDB(&cfg.Analytics.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, analytics will only be logged")
		} else {
			a.ClickHouse = ch
			if err := storage.RunClickHouseMigrations(ctx, ch); err != nil {
				logger.WithError(err).Warn("ClickHouse migrations failed")
			}
			a.Analytics, err = worker.NewAnalyticsWorker(&worker.AnalyticsWorkerConfig{
				Writer:        ch,
				BatchSize:     cfg.Analytics.BatchSize,
				FlushInterval: cfg.Analytics.FlushInterval,
				BufferSize:    cfg.Analytics.BufferSize,
				Metrics:       m,
				Logger:        logger,
			})
			if err != nil {
				a.Close(ctx)
				return nil, err
			}
			if err := a.Analytics.Start(ctx); err != nil {
				a.Close(ctx)
				return nil, err
			}
			tracker = a.Analytics
		}
	}

	a.Server = a.buildServer(cfg, m, tracker)
	return a, nil
}

func (a *App) buildServer(cfg *config.Config, m *metrics.Metrics, tracker analytics.Tracker) *api.Server {
	c := clock.System()
	users := storage.NewUserRepository(a.Postgres)
	plans := storage.NewPlanRepository(a.Postgres)
	events := storage.NewAnalysisEventRepository(a.Postgres)
	payments := storage.NewPaymentRepository(a.Postgres)

	userService := service.NewUserService(users, c, a.logger)
	limits := service.NewLimitEvaluator(users, events, cfg.Limits.DailyTextLimit, m, a.logger)
	trial := service.NewTrialService(service.TrialServiceConfig{
		Users:            users,
		Plans:            plans,
		Clock:            c,
		DefaultPromoCode: cfg.Limits.DefaultPromoCode,
		Tracker:          tracker,
		Metrics:          m,
		Logger:           a.logger,
	})
	paymentService := service.NewPaymentService(plans, payments, c, tracker, a.logger)

	analyzer := adapter.NewFoodAnalyzerClient(adapter.FoodAnalyzerConfig{
		Endpoint: cfg.AI.Endpoint,
		APIKey:   cfg.AI.APIKey,
		Timeout:  cfg.AI.Timeout,
		Breaker:  circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("food-analyzer")),
	})

	var locker service.UserLocker
	var deduper bot.Deduper
	health := map[string]api.HealthCheck{"postgres": a.Postgres.Ping}
	if a.Redis != nil {
		locker = service.NewRedisLocker(guard.NewUserLock(a.Redis.Client(), cfg.Limits.AnalysisLockTTL))
		deduper = guard.NewDeliveryDeduper(a.Redis.Client(), cfg.Limits.DeliveryDedupTTL)
		health["redis"] = a.Redis.Ping
	}
	if a.ClickHouse != nil {
		health["clickhouse"] = a.ClickHouse.Ping
	}

	analysis := service.NewAnalysisService(service.AnalysisServiceConfig{
		Limits:   limits,
		Trial:    trial,
		Ledger:   service.NewUsageLedger(events, m, a.logger),
		Streaks:  service.NewStreakService(users, events, tracker, m, a.logger),
		Analyzer: analyzer,
		Locker:   locker,
		Clock:    c,
		Tracker:  tracker,
		Metrics:  m,
		Logger:   a.logger,
	})

	webhooks := make(map[string]api.Webhook, len(cfg.Bots.Bots))
	for _, id := range cfg.Bots.IDs() {
		b, _ := cfg.Bots.Lookup(id)
		botTrial := trial.WithDefaultPromoCode(b.DefaultPromoCode)
		webhooks[id] = api.Webhook{
			Secret: b.WebhookSecret,
			Handler: bot.NewRouter(bot.RouterConfig{
				BotID:    id,
				Users:    userService,
				Limits:   limits,
				Trial:    botTrial,
				Analysis: analysis.WithTrial(botTrial),
				Payments: paymentService,
				Deduper:  deduper,
				Clock:    c,
				Tracker:  tracker,
				Metrics:  m,
				Logger:   a.logger,
			}),
		}
		a.logger.WithFields(map[string]interface{}{
			"bot":          id,
			"defaultPromo": b.DefaultPromoCode,
		}).Info("Bot registered")
	}

	return api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RequestTimeout:  cfg.Server.RequestTimeout,
		AdminToken:      cfg.Admin.Token,
		PerChatRPS:      cfg.RateLimit.PerChatRPS,
		PerChatBurst:    cfg.RateLimit.Burst,
	}, api.Dependencies{
		Webhooks: webhooks,
		Limits:   limits,
		Users:    userService,
		Trial:    trial,
		Payments: paymentService,
		Plans:    plans,
		Health:   health,
		Gatherer: a.Registry,
		Logger:   a.logger,
		Now:      c.Now,
	})
}

// Close flushes analytics and closes every connection
func (a *App) Close(ctx context.Context) {
	if a.Analytics != nil {
		if err := a.Analytics.Stop(ctx); err != nil {
			a.logger.WithError(err).Warn("Analytics worker did not stop cleanly")
		}
	}
	if a.ClickHouse != nil {
		_ = a.ClickHouse.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
