package domain

import (
	"time"
)

// ContestStatus is the lifecycle state of a contest
type ContestStatus string

const (
	StatusActive  ContestStatus = "active"
	StatusRunning ContestStatus = "running"
	StatusEnded   ContestStatus = "ended"
)

// Valid reports whether s is one of the known statuses
func (s ContestStatus) Valid() bool {
	switch s {
	case StatusActive, StatusRunning, StatusEnded:
		return true
	}
	return false
}

// SurfaceRef identifies where a live leaderboard is rendered
type SurfaceRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Contest represents a timed problem-solving contest
type Contest struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Duration    string        `json:"duration"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	Status      ContestStatus `json:"status"`
	StartTime   *time.Time    `json:"start_time,omitempty"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Leaderboard *SurfaceRef   `json:"leaderboard,omitempty"`
}

// InWindow reports whether t falls inside the contest's timed window, bounds included.
// A contest that has not started has no window.
func (c *Contest) InWindow(t time.Time) bool {
	if c.StartTime == nil || c.EndTime == nil {
		return false
	}
	return !t.Before(*c.StartTime) && !t.After(*c.EndTime)
}

// ContestProblem is a problem snapshotted into a contest at creation time
type ContestProblem struct {
	ContestID int64    `json:"contest_id"`
	ProblemID string   `json:"problem_id"`
	Name      string   `json:"name"`
	Rating    *int     `json:"rating,omitempty"`
	Tags      []string `json:"tags"`
}

// Points returns the score weight of the problem: rating div 100, or 0 when unrated.
func (p ContestProblem) Points() int {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating / 100
}

// Participant is a user registered in a contest
type Participant struct {
	ContestID int64     `json:"contest_id"`
	UserID    string    `json:"user_id"`
	Handle    string    `json:"handle,omitempty"`
	Score     int       `json:"score"`
	JoinedAt  time.Time `json:"joined_at"`
}

// DisplayName returns the judge handle, falling back to the user id
func (p Participant) DisplayName() string {
	if p.Handle != "" {
		return p.Handle
	}
	return p.UserID
}

// SubmissionRecord is an accepted in-window submission stored in the ledger
type SubmissionRecord struct {
	ContestID    int64     `json:"contest_id"`
	UserID       string    `json:"user_id"`
	ProblemID    string    `json:"problem_id"`
	SubmissionID int64     `json:"submission_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Verdict      string    `json:"verdict"`
}

// CreateContestRequest represents a request to create a new contest
type CreateContestRequest struct {
	Name      string `json:"name"`
	Duration  string `json:"duration"`
	CreatedBy string `json:"created_by"`
	Count     int    `json:"count"`
	MinRating int    `json:"min_rating"`
	MaxRating int    `json:"max_rating"`
}

// ContestSummary is a contest together with its participant count
type ContestSummary struct {
	Contest
	Participants int `json:"participants"`
}

// ProblemState reports whether a participant solved a contest problem
type ProblemState struct {
	ContestProblem
	Solved bool `json:"solved"`
}

// StatusView is the read model returned by status queries and rendered on leaderboards
type StatusView struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Status    ContestStatus `json:"status"`
	Duration  string        `json:"duration"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	StartTime *time.Time    `json:"start_time,omitempty"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Standings []Standing    `json:"participants"`
}
