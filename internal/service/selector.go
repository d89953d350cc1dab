package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/contest-leaderboard/internal/domain"
)

// Selector draws a contest's problem set from the judge catalog
type Selector struct {
	catalog Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a new problem selector. A nil rng uses a randomly seeded source.
func NewSelector(catalog Catalog, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{
		catalog: catalog,
		rng:     rng,
	}
}

// Select returns up to count rated problems with minRating <= rating <= maxRating,
// sampled uniformly without replacement. Fewer are returned when the pool is smaller.
func (s *Selector) Select(ctx context.Context, count, minRating, maxRating int) ([]domain.Problem, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: problem count must be positive", domain.ErrValidation)
	}
	if minRating > maxRating {
		return nil, fmt.Errorf("%w: rating range %d-%d is inverted", domain.ErrValidation, minRating, maxRating)
	}

	problems, err := s.catalog.FetchCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching problem catalog: %w", err)
	}

	pool := make([]domain.Problem, 0, len(problems))
	for _, p := range problems {
		if p.ID == "" || p.Rating == nil {
			continue
		}
		if *p.Rating >= minRating && *p.Rating <= maxRating {
			pool = append(pool, p)
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: rating %d-%d", domain.ErrInsufficientProblems, minRating, maxRating)
	}
	if count > len(pool) {
		count = len(pool)
	}

	s.mu.Lock()
	perm := s.rng.Perm(len(pool))
	s.mu.Unlock()

	selected := make([]domain.Problem, count)
	for i := range selected {
		selected[i] = pool[perm[i]]
	}
	return selected, nil
}
