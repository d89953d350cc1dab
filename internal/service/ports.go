package service

import (
	"context"

	"github.com/contest-leaderboard/internal/domain"
)

// Catalog returns the judge's full problem set
type Catalog interface {
	FetchCatalog(ctx context.Context) ([]domain.Problem, error)
}

// Feed returns a bounded window of a handle's most recent submissions
type Feed interface {
	FetchSubmissions(ctx context.Context, handle string) ([]domain.Submission, error)
}

// HandleVerifier checks that a judge handle exists
type HandleVerifier interface {
	VerifyHandle(ctx context.Context, handle string) error
}

// Surface is where live leaderboards are rendered.
// Edit and Delete return domain.ErrSurfaceNotFound when the message is gone;
// Edit returns domain.ErrPublishDenied when the publisher may not change it.
type Surface interface {
	Post(ctx context.Context, channelID string, content domain.Rendering) (domain.SurfaceRef, error)
	Edit(ctx context.Context, ref domain.SurfaceRef, content domain.Rendering) error
	Delete(ctx context.Context, ref domain.SurfaceRef) error
}

// Ledger is the durable store of contests, problems, participants and submission records
type Ledger interface {
	// CreateContest stores the contest and its problem snapshot atomically and returns the new id.
	CreateContest(ctx context.Context, contest domain.Contest, problems []domain.ContestProblem) (int64, error)
	GetContest(ctx context.Context, contestID int64) (*domain.Contest, error)
	ListContests(ctx context.Context, statuses ...domain.ContestStatus) ([]domain.ContestSummary, error)
	// ListLiveContests returns running contests that have a leaderboard surface.
	ListLiveContests(ctx context.Context) ([]domain.Contest, error)
	ListProblems(ctx context.Context, contestID int64) ([]domain.ContestProblem, error)
	ListParticipants(ctx context.Context, contestID int64) ([]domain.Participant, error)
	ListSolved(ctx context.Context, contestID int64, userID string) ([]string, error)
	LinkHandle(ctx context.Context, userID, handle string) error
	// WithContest runs fn with exclusive access to one contest.
	// It returns domain.ErrContestNotFound when the contest does not exist.
	WithContest(ctx context.Context, contestID int64, fn func(tx domain.ContestTx) error) error
}
