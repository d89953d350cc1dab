package service

import (
	"context"
	"fmt"

	"github.com/contest-leaderboard/internal/domain"
)

// Aggregator recomputes participant scores from the ledger
type Aggregator struct{}

// NewAggregator creates a new score aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Score sums rating div 100 over distinct problems; unrated problems add nothing.
func Score(solved []domain.ContestProblem) int {
	seen := make(map[string]struct{}, len(solved))
	score := 0
	for _, p := range solved {
		if _, ok := seen[p.ProblemID]; ok {
			continue
		}
		seen[p.ProblemID] = struct{}{}
		score += p.Points()
	}
	return score
}

// Recompute rescans the contest's accepted records and rewrites every participant's score.
// Running it again on an unchanged ledger writes the same scores.
func (a *Aggregator) Recompute(ctx context.Context, tx domain.ContestTx) (map[string]int, error) {
	participants, err := tx.Participants(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	solved, err := tx.SolvedProblems(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing solved problems: %w", err)
	}

	scores := make(map[string]int, len(participants))
	for _, p := range participants {
		scores[p.UserID] = Score(solved[p.UserID])
	}

	if err := tx.SetScores(ctx, scores); err != nil {
		return nil, fmt.Errorf("storing scores: %w", err)
	}
	return scores, nil
}
