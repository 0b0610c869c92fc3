// Package worker runs background loops that live beside the webhook handlers.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/retry"
)

// EventWriter persists a batch of analytics events
type EventWriter interface {
	InsertAnalyticsEvents(ctx context.Context, events []*models.AnalyticsEvent) error
}

// AnalyticsWorkerConfig holds configuration for the analytics worker
type AnalyticsWorkerConfig struct {
	Writer        EventWriter
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
	Retry         *retry.Config
	Metrics       *metrics.Metrics
	Logger        *logging.Logger
}

// AnalyticsWorker buffers events in memory and writes them in batches.
// Track never blocks; events are dropped when the buffer is full.
type AnalyticsWorker struct {
	writer        EventWriter
	batchSize     int
	flushInterval time.Duration
	retry         *retry.Config
	metrics       *metrics.Metrics
	logger        *logging.Logger

	events  chan *models.AnalyticsEvent
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewAnalyticsWorker creates a new analytics worker
func NewAnalyticsWorker(cfg *AnalyticsWorkerConfig) (*AnalyticsWorker, error) {
	if cfg.Writer == nil {
		return nil, fmt.Errorf("event writer cannot be nil")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	bufferSize := cfg.BufferSize
	if bufferSize < batchSize {
		bufferSize = batchSize * 10
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &AnalyticsWorker{
		writer:        cfg.Writer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retry:         retryCfg,
		metrics:       cfg.Metrics,
		logger:        logger.WithComponent("analytics-worker"),
		events:        make(chan *models.AnalyticsEvent, bufferSize),
	}, nil
}

// Track enqueues the event
func (w *AnalyticsWorker) Track(_ context.Context, event *models.AnalyticsEvent) {
	if event == nil {
		return
	}
	select {
	case w.events <- event:
	default:
		w.metrics.AnalyticsDropped()
		w.logger.WithField("eventType", event.EventType).Warn("Analytics buffer full, dropping event")
	}
}

// Start launches the flush loop
func (w *AnalyticsWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("analytics worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.loop(ctx)
	w.logger.WithFields(map[string]interface{}{
		"batchSize":     w.batchSize,
		"flushInterval": w.flushInterval,
	}).Info("Analytics worker started")
	return nil
}

// Stop signals the loop to flush what is buffered and waits for it
func (w *AnalyticsWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("analytics worker is not running")
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	select {
	case <-doneCh:
		w.logger.Info("Analytics worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Analytics worker stop timed out")
		return ctx.Err()
	}
}

func (w *AnalyticsWorker) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]*models.AnalyticsEvent, 0, w.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.write(context.WithoutCancel(ctx), batch)
		batch = make([]*models.AnalyticsEvent, 0, w.batchSize)
	}

	for {
		select {
		case event := <-w.events:
			batch = append(batch, event)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.stopCh:
			w.drain(&batch, flush)
			return
		case <-ctx.Done():
			w.drain(&batch, flush)
			return
		}
	}
}

// drain moves whatever is still queued into batches and writes them.
func (w *AnalyticsWorker) drain(batch *[]*models.AnalyticsEvent, flush func()) {
	for {
		select {
		case event := <-w.events:
			*batch = append(*batch, event)
			if len(*batch) >= w.batchSize {
				flush()
			}
		default:
			flush()
			return
		}
	}
}

func (w *AnalyticsWorker) write(ctx context.Context, batch []*models.AnalyticsEvent) {
	result := retry.Do(ctx, w.retry, func(ctx context.Context, _ int) error {
		return w.writer.InsertAnalyticsEvents(ctx, batch)
	})
	if !result.Success {
		for range batch {
			w.metrics.AnalyticsDropped()
		}
		w.logger.WithError(result.LastError).WithField("events", len(batch)).Error("Failed to write analytics batch")
	}
}
