package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/contest-leaderboard/internal/domain"
)

// ContestService is the entry point used by the command surfaces
type ContestService struct {
	registry  *Registry
	publisher *Publisher
	ledger    Ledger
	verifier  HandleVerifier
	logger    *slog.Logger
}

// NewContestService creates a new contest service. verifier may be nil.
func NewContestService(
	registry *Registry,
	publisher *Publisher,
	ledger Ledger,
	verifier HandleVerifier,
	logger *slog.Logger,
) *ContestService {
	return &ContestService{
		registry:  registry,
		publisher: publisher,
		ledger:    ledger,
		verifier:  verifier,
		logger:    logger,
	}
}

// CreateContest creates a contest with a freshly selected problem set
func (s *ContestService) CreateContest(ctx context.Context, req domain.CreateContestRequest) (int64, error) {
	return s.registry.Create(ctx, req)
}

// JoinContest adds a user to an active contest
func (s *ContestService) JoinContest(ctx context.Context, contestID int64, userID string) error {
	return s.registry.Join(ctx, contestID, userID)
}

// LeaveContest removes a user from an active contest
func (s *ContestService) LeaveContest(ctx context.Context, contestID int64, userID string) error {
	return s.registry.Leave(ctx, contestID, userID)
}

// StartContest opens the timed window of an active contest
func (s *ContestService) StartContest(ctx context.Context, contestID int64) (*domain.Contest, error) {
	return s.registry.Start(ctx, contestID)
}

// EndContest closes a running contest and returns its final standings
func (s *ContestService) EndContest(ctx context.Context, contestID int64) ([]domain.Standing, error) {
	return s.registry.End(ctx, contestID)
}

// GetStatus returns the contest with its current standings
func (s *ContestService) GetStatus(ctx context.Context, contestID int64) (*domain.StatusView, error) {
	return s.publisher.Status(ctx, contestID)
}

// ListContests returns the contests that are active or running, newest first
func (s *ContestService) ListContests(ctx context.Context) ([]domain.ContestSummary, error) {
	return s.ledger.ListContests(ctx, domain.StatusActive, domain.StatusRunning)
}

// ContestProblems returns the contest's problem snapshot
func (s *ContestService) ContestProblems(ctx context.Context, contestID int64) ([]domain.ContestProblem, error) {
	if _, err := s.ledger.GetContest(ctx, contestID); err != nil {
		return nil, err
	}
	return s.ledger.ListProblems(ctx, contestID)
}

// ProblemStatus reports which contest problems a participant has solved
func (s *ContestService) ProblemStatus(ctx context.Context, contestID int64, userID string) ([]domain.ProblemState, error) {
	problems, err := s.ContestProblems(ctx, contestID)
	if err != nil {
		return nil, err
	}
	solved, err := s.ledger.ListSolved(ctx, contestID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing solved problems: %w", err)
	}

	done := make(map[string]bool, len(solved))
	for _, id := range solved {
		done[id] = true
	}
	states := make([]domain.ProblemState, len(problems))
	for i, p := range problems {
		states[i] = domain.ProblemState{ContestProblem: p, Solved: done[p.ProblemID]}
	}
	return states, nil
}

// ActivateLeaderboard starts a live leaderboard for a running contest on a channel
func (s *ContestService) ActivateLeaderboard(ctx context.Context, contestID int64, channelID string) (domain.SurfaceRef, error) {
	return s.publisher.Activate(ctx, contestID, channelID)
}

// LinkHandle associates a user with a judge handle
func (s *ContestService) LinkHandle(ctx context.Context, userID, handle string) error {
	handle = strings.TrimSpace(handle)
	if userID == "" || handle == "" {
		return fmt.Errorf("%w: user id and handle are required", domain.ErrValidation)
	}
	if s.verifier != nil {
		if err := s.verifier.VerifyHandle(ctx, handle); err != nil {
			return fmt.Errorf("verifying handle %s: %w", handle, err)
		}
	}
	if err := s.ledger.LinkHandle(ctx, userID, handle); err != nil {
		return fmt.Errorf("linking handle: %w", err)
	}
	s.logger.Info("judge handle linked", "user_id", userID, "handle", handle)
	return nil
}
