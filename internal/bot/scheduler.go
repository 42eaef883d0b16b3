package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/nkoval/relaybot/internal/relay"
)

// Scheduler runs the periodic expired-ban sweep using gocron. The sweep
// is an optimization: expiry is still enforced lazily on every read, the
// job only keeps the table from accumulating dead rows.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	ledger    *relay.Ledger
	interval  time.Duration
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler that sweeps expired bans every interval.
func NewScheduler(logger *slog.Logger, ledger *relay.Ledger, interval time.Duration) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    logger.With("component", "scheduler"),
		ledger:    ledger,
		interval:  interval,
	}, nil
}

// Start registers the ban-sweep job and starts the scheduler ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func(ctx context.Context) {
			start := time.Now()
			count, err := s.ledger.SweepExpired(ctx)
			if err != nil {
				s.logger.Error("Ban sweep failed", "error", err)
				return
			}
			s.logger.Debug("Ban sweep finished", "removed", count, "duration", time.Since(start))
		}, context.Background()),
		gocron.WithName("ban_sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule ban sweep: %w", err)
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "ban_sweep_interval", s.interval)
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.running = false
	return err
}
