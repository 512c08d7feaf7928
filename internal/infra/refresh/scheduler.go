// Package refresh drives periodic catalog source refreshes with rate
// limiting.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/catalog"
	"github.com/tsoernes/mcp-registry/internal/infra/telemetry"
)

var ErrUnknownSource = errors.New("unknown source")

// ErrTooRecent reports a refresh skipped by the minimum-interval gate.
var ErrTooRecent = errors.New("refreshed too recently")

// Options configures the scheduler.
type Options struct {
	// WakeInterval is how often the background task checks sources.
	WakeInterval time.Duration
	// MinInterval is the minimum age of a source's last success before it
	// refreshes again.
	MinInterval time.Duration
	Logger      *zap.Logger
	Metrics     *telemetry.Metrics
}

// Scheduler wakes at a fixed interval and refreshes each stale source,
// sequentially. A gate serializes refreshes triggered from the background
// task and from ForceRefresh.
type Scheduler struct {
	catalog *catalog.Catalog
	sources []catalog.Source

	wake        time.Duration
	minInterval time.Duration
	logger      *zap.Logger
	metrics     *telemetry.Metrics

	gate chan struct{}
}

func NewScheduler(cat *catalog.Catalog, sources []catalog.Source, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	wake := opts.WakeInterval
	if wake <= 0 {
		wake = domain.DefaultWakeInterval
	}
	minInterval := opts.MinInterval
	if minInterval <= 0 {
		minInterval = domain.DefaultMinRefresh
	}
	return &Scheduler{
		catalog:     cat,
		sources:     sources,
		wake:        wake,
		minInterval: minInterval,
		logger:      logger.Named("refresh"),
		metrics:     metrics,
		gate:        make(chan struct{}, 1),
	}
}

// Run blocks until the context is done, refreshing stale sources on each
// wake. The first sweep runs immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("refresh scheduler started",
		zap.Duration("wakeInterval", s.wake),
		zap.Duration("minInterval", s.minInterval),
	)
	s.sweep(ctx)

	ticker := time.NewTicker(s.wake)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	for _, src := range s.sources {
		if ctx.Err() != nil {
			return
		}
		if !s.due(src.Type()) {
			s.logger.Debug("source not due", telemetry.SourceField(string(src.Type())))
			continue
		}
		if err := s.refresh(ctx, src); err != nil {
			s.logger.Warn("source refresh failed",
				telemetry.SourceField(string(src.Type())),
				zap.Error(err),
			)
		}
	}
}

// ForceRefresh refreshes one source on demand. The minimum-interval gate
// still applies unless override is set.
func (s *Scheduler) ForceRefresh(ctx context.Context, source domain.SourceType, override bool) error {
	for _, src := range s.sources {
		if src.Type() != source {
			continue
		}
		if !override && !s.due(source) {
			return fmt.Errorf("%w: %s", ErrTooRecent, source)
		}
		return s.refresh(ctx, src)
	}
	return fmt.Errorf("%w: %s", ErrUnknownSource, source)
}

func (s *Scheduler) due(source domain.SourceType) bool {
	status, ok := s.catalog.Status(source)
	if !ok || status.LastSuccess.IsZero() {
		return true
	}
	return time.Since(status.LastSuccess) >= s.minInterval
}

func (s *Scheduler) refresh(ctx context.Context, src catalog.Source) error {
	select {
	case s.gate <- struct{}{}:
		defer func() { <-s.gate }()
	case <-ctx.Done():
		return ctx.Err()
	}

	sourceType := src.Type()
	started := time.Now()
	status := domain.SourceStatus{
		Source:      sourceType,
		LastAttempt: started.UTC(),
		Status:      "refreshing",
	}
	if prev, ok := s.catalog.Status(sourceType); ok {
		status.LastSuccess = prev.LastSuccess
		status.EntryCount = prev.EntryCount
	}
	s.catalog.SetStatus(status)

	entries, err := src.Fetch(ctx)
	if err != nil {
		status.Status = "error"
		status.LastError = err.Error()
		s.catalog.SetStatus(status)
		s.metrics.Refreshes.WithLabelValues(string(sourceType), "error").Inc()
		return err
	}

	count, err := s.catalog.UpsertAll(entries)
	if err != nil {
		status.Status = "error"
		status.LastError = err.Error()
		s.catalog.SetStatus(status)
		s.metrics.Refreshes.WithLabelValues(string(sourceType), "error").Inc()
		return err
	}

	status.Status = "ok"
	status.LastError = ""
	status.LastSuccess = time.Now().UTC()
	status.EntryCount = count
	s.catalog.SetStatus(status)
	s.metrics.Refreshes.WithLabelValues(string(sourceType), "ok").Inc()
	s.logger.Info("source refreshed",
		telemetry.SourceField(string(sourceType)),
		zap.Int("entries", count),
		telemetry.DurationField(time.Since(started)),
	)
	return nil
}
