package domain

import (
	"context"
	"time"
)

// ContestTx is a unit of work holding exclusive access to one contest.
// Every write made through it commits or rolls back together.
type ContestTx interface {
	// Contest returns the contest row as locked at the start of the unit of work.
	Contest() Contest
	UpdateStatus(ctx context.Context, status ContestStatus, start, end *time.Time) error
	SetLeaderboard(ctx context.Context, ref *SurfaceRef) error
	AddParticipant(ctx context.Context, userID string) error
	RemoveParticipant(ctx context.Context, userID string) error
	// Participants lists participants in join order.
	Participants(ctx context.Context) ([]Participant, error)
	// InsertSubmissions stores records that are not stored yet and returns how many were new.
	InsertSubmissions(ctx context.Context, records []SubmissionRecord) (int, error)
	// SolvedProblems maps each user to the distinct contest problems they have an accepted record for.
	SolvedProblems(ctx context.Context) (map[string][]ContestProblem, error)
	SetScores(ctx context.Context, scores map[string]int) error
}
