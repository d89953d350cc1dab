package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/contest-leaderboard/internal/domain"
)

// Registry owns the contest lifecycle: creation, joins and timed transitions.
// Every check-and-set runs inside the ledger's per-contest unit of work.
type Registry struct {
	ledger     Ledger
	selector   *Selector
	aggregator *Aggregator
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistry creates a new contest registry
func NewRegistry(ledger Ledger, selector *Selector, aggregator *Aggregator, logger *slog.Logger) *Registry {
	return &Registry{
		ledger:     ledger,
		selector:   selector,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for timestamps
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Registry) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// Create validates the request, snapshots a problem set and stores an active contest
func (r *Registry) Create(ctx context.Context, req domain.CreateContestRequest) (int64, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return 0, fmt.Errorf("%w: contest name is required", domain.ErrValidation)
	}
	if _, err := domain.ParseDuration(req.Duration); err != nil {
		return 0, err
	}

	problems, err := r.selector.Select(ctx, req.Count, req.MinRating, req.MaxRating)
	if err != nil {
		return 0, err
	}
	if len(problems) < req.Count {
		r.logger.Warn("rating range has fewer problems than requested",
			"requested", req.Count,
			"available", len(problems),
			"min_rating", req.MinRating,
			"max_rating", req.MaxRating,
		)
	}

	snapshot := make([]domain.ContestProblem, len(problems))
	for i, p := range problems {
		snapshot[i] = p.Snapshot(0)
	}

	contest := domain.Contest{
		Name:      name,
		Duration:  strings.TrimSpace(req.Duration),
		CreatedBy: req.CreatedBy,
		CreatedAt: r.timestamp(),
		Status:    domain.StatusActive,
	}
	id, err := r.ledger.CreateContest(ctx, contest, snapshot)
	if err != nil {
		return 0, fmt.Errorf("storing contest: %w", err)
	}

	r.logger.Info("contest created",
		"contest_id", id,
		"name", name,
		"problems", len(snapshot),
		"created_by", req.CreatedBy,
	)
	return id, nil
}

// Join registers a user in an active contest
func (r *Registry) Join(ctx context.Context, contestID int64, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return r.ledger.WithContest(ctx, contestID, func(tx domain.ContestTx) error {
		if status := tx.Contest().Status; status != domain.StatusActive {
			return fmt.Errorf("%w: contest is %s, joins are closed", domain.ErrInvalidState, status)
		}
		return tx.AddParticipant(ctx, userID)
	})
}

// Leave removes a user from a contest that has not started yet
func (r *Registry) Leave(ctx context.Context, contestID int64, userID string) error {
	return r.ledger.WithContest(ctx, contestID, func(tx domain.ContestTx) error {
		if status := tx.Contest().Status; status != domain.StatusActive {
			return fmt.Errorf("%w: contest is %s, participants can no longer leave", domain.ErrInvalidState, status)
		}
		return tx.RemoveParticipant(ctx, userID)
	})
}

// Start opens the contest window: start is now and end is start plus the contest duration
func (r *Registry) Start(ctx context.Context, contestID int64) (*domain.Contest, error) {
	var started domain.Contest
	err := r.ledger.WithContest(ctx, contestID, func(tx domain.ContestTx) error {
		contest := tx.Contest()
		if err := domain.TransitionStart.Check(contest.Status); err != nil {
			return err
		}
		duration, err := domain.ParseDuration(contest.Duration)
		if err != nil {
			return err
		}

		start := r.timestamp()
		end := start.Add(duration)
		if err := tx.UpdateStatus(ctx, domain.TransitionStart.To(), &start, &end); err != nil {
			return fmt.Errorf("updating status: %w", err)
		}

		contest.Status = domain.TransitionStart.To()
		contest.StartTime = &start
		contest.EndTime = &end
		started = contest
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("contest started",
		"contest_id", contestID,
		"start_time", started.StartTime,
		"end_time", started.EndTime,
	)
	return &started, nil
}

// End runs a final score pass, freezes the contest and clears its leaderboard reference.
// It returns the final standings.
func (r *Registry) End(ctx context.Context, contestID int64) ([]domain.Standing, error) {
	var standings []domain.Standing
	err := r.ledger.WithContest(ctx, contestID, func(tx domain.ContestTx) error {
		contest := tx.Contest()
		if err := domain.TransitionEnd.Check(contest.Status); err != nil {
			return err
		}

		if _, err := r.aggregator.Recompute(ctx, tx); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, domain.TransitionEnd.To(), contest.StartTime, contest.EndTime); err != nil {
			return fmt.Errorf("updating status: %w", err)
		}
		if err := tx.SetLeaderboard(ctx, nil); err != nil {
			return fmt.Errorf("clearing leaderboard: %w", err)
		}

		participants, err := tx.Participants(ctx)
		if err != nil {
			return fmt.Errorf("listing participants: %w", err)
		}
		standings = domain.RankParticipants(participants)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("contest ended", "contest_id", contestID, "participants", len(standings))
	return standings, nil
}
