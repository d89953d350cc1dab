package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/domain"
	"github.com/contest-leaderboard/internal/metrics"
	"github.com/contest-leaderboard/internal/service"
)

const tracerName = "github.com/contest-leaderboard/internal/worker"

// Scheduler periodically reconciles, rescores and republishes every live contest
type Scheduler struct {
	ledger    service.Ledger
	refresher *service.Refresher
	config    *config.SchedulerConfig
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a new leaderboard scheduler
func NewScheduler(
	ledger service.Ledger,
	refresher *service.Refresher,
	cfg *config.SchedulerConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		ledger:    ledger,
		refresher: refresher,
		config:    cfg,
		metrics:   m,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
	}
}

// Start begins the background refresh loop. The first tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	s.stopCh, s.doneCh = stopCh, doneCh
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.config.Interval, "workers", s.config.Workers)

	go s.run(ctx, stopCh, doneCh)
	return nil
}

// Stop stops the refresh loop and waits for the current tick to finish.
// The scheduler can be started again afterwards.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)
	<-doneCh

	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning returns whether the loop is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// RunOnce runs a single tick
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.Tick(ctx)
}

// Tick refreshes every running contest that has a live leaderboard.
// Contests are refreshed in parallel; a failing contest is logged and skipped.
func (s *Scheduler) Tick(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	started := time.Now()
	s.metrics.Ticks.Inc()
	defer func() { s.metrics.TickDuration.Observe(time.Since(started).Seconds()) }()

	contests, err := s.ledger.ListLiveContests(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing live contests")
		s.logger.Error("failed to list live contests", "error", err)
		return
	}
	span.SetAttributes(attribute.Int("contests", len(contests)))

	var (
		mu       sync.Mutex
		failures int
	)
	g := new(errgroup.Group)
	g.SetLimit(s.workers())
	for _, contest := range contests {
		g.Go(func() error {
			if err := s.Refresh(ctx, contest); err != nil {
				s.metrics.ContestFailures.Inc()
				s.logger.Error("failed to refresh contest",
					"contest_id", contest.ID,
					"error", err,
				)
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			s.metrics.ContestsRefreshed.Inc()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("scheduler tick completed",
		"duration", time.Since(started),
		"contests", len(contests),
		"errors", failures,
	)
}

// Refresh runs the reconcile, rescore and publish pipeline for one contest, in that order
func (s *Scheduler) Refresh(ctx context.Context, contest domain.Contest) (err error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.refresh_contest",
		trace.WithAttributes(attribute.Int64("contest_id", contest.ID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return s.refresher.Refresh(ctx, contest)
}

func (s *Scheduler) workers() int {
	if s.config.Workers <= 0 {
		return 1
	}
	return s.config.Workers
}
