package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// =============================================================================
// Enrichment Scheduler
// =============================================================================

// Scheduler triggers enrichment passes on a fixed cadence: every hour,
// or daily at a configured HH:MM. Overlapping passes are prevented; a
// tick that arrives while a pass is still running is skipped.
type Scheduler struct {
	service   *Service
	frequency string
	at        string
	logger    *zap.SugaredLogger

	cron    *cron.Cron
	running sync.Mutex
	mu      sync.Mutex
	started bool
}

// NewScheduler creates a scheduler for the given service. Frequency must
// be "hourly" or "daily"; at is the daily HH:MM trigger time and is
// ignored for hourly frequency.
func NewScheduler(service *Service, frequency, at string, logger *zap.SugaredLogger) (*Scheduler, error) {
	switch frequency {
	case "hourly", "daily":
	default:
		return nil, fmt.Errorf("unknown schedule frequency %q", frequency)
	}

	if frequency == "daily" {
		if _, err := time.Parse("15:04", at); err != nil {
			return nil, fmt.Errorf("invalid schedule time %q: %w", at, err)
		}
	}

	return &Scheduler{
		service:   service,
		frequency: frequency,
		at:        at,
		logger:    logger,
		cron:      cron.New(),
	}, nil
}

// cronSpec maps the configured cadence onto a cron expression.
func (s *Scheduler) cronSpec() string {
	if s.frequency == "hourly" {
		return "0 * * * *"
	}
	at, _ := time.Parse("15:04", s.at)
	return fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour())
}

// Start registers the enrichment job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	spec := s.cronSpec()
	_, err := s.cron.AddFunc(spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule enrichment job: %w", err)
	}

	s.cron.Start()
	s.started = true
	s.logger.Infow("Enrichment scheduler started", "frequency", s.frequency, "spec", spec)
	return nil
}

// runOnce executes a single scheduled pass, skipping if one is already
// in flight.
func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warnw("Skipping scheduled pass, previous pass still running")
		return
	}
	defer s.running.Unlock()

	summary, err := s.service.Run(ctx)
	if err != nil {
		s.logger.Errorw("Scheduled enrichment pass failed", "error", err)
		return
	}
	s.logger.Infow("Scheduled enrichment pass finished",
		"run_id", summary.RunID, "status", summary.Status,
		"added_to_kb", summary.EntriesAddedToKB)
}

// Stop stops the cron loop and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.started = false
	s.logger.Infow("Enrichment scheduler stopped")
}
