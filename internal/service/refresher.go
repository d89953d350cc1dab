package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contest-leaderboard/internal/domain"
)

// Refresher runs one reconcile, rescore and publish pass over a live contest
type Refresher struct {
	ledger     Ledger
	reconciler *Reconciler
	aggregator *Aggregator
	publisher  *Publisher
	logger     *slog.Logger
}

// NewRefresher creates a new contest refresher
func NewRefresher(ledger Ledger, reconciler *Reconciler, aggregator *Aggregator, publisher *Publisher, logger *slog.Logger) *Refresher {
	return &Refresher{
		ledger:     ledger,
		reconciler: reconciler,
		aggregator: aggregator,
		publisher:  publisher,
		logger:     logger,
	}
}

// Refresh fetches the contest's new submissions outside the contest lock, then records
// and rescores them under it, then republishes the leaderboard. A contest that stopped
// running or lost its leaderboard in the meantime is left untouched.
func (r *Refresher) Refresh(ctx context.Context, contest domain.Contest) error {
	problems, err := r.ledger.ListProblems(ctx, contest.ID)
	if err != nil {
		return fmt.Errorf("listing problems: %w", err)
	}
	participants, err := r.ledger.ListParticipants(ctx, contest.ID)
	if err != nil {
		return fmt.Errorf("listing participants: %w", err)
	}

	records := r.reconciler.Collect(ctx, contest, problems, participants)

	live := false
	err = r.ledger.WithContest(ctx, contest.ID, func(tx domain.ContestTx) error {
		current := tx.Contest()
		if current.Status != domain.StatusRunning || current.Leaderboard == nil {
			return nil
		}
		live = true
		if _, err := r.reconciler.Record(ctx, tx, records); err != nil {
			return err
		}
		if _, err := r.aggregator.Recompute(ctx, tx); err != nil {
			return fmt.Errorf("recomputing scores: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !live {
		r.logger.Debug("contest no longer live, skipping", "contest_id", contest.ID)
		return nil
	}

	current, err := r.ledger.GetContest(ctx, contest.ID)
	if err != nil {
		return fmt.Errorf("reloading contest: %w", err)
	}
	if current.Status != domain.StatusRunning {
		return nil
	}
	return r.publisher.Publish(ctx, *current)
}
