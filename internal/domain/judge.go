package domain

import (
	"strconv"
	"time"
)

// VerdictAccepted is the judge verdict of a fully accepted submission
const VerdictAccepted = "OK"

// Problem is a catalog entry of the external judge
type Problem struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Rating *int     `json:"rating,omitempty"`
	Tags   []string `json:"tags"`
}

// ProblemID builds the opaque problem key from a judge contest id and problem index
func ProblemID(contestID int, index string) string {
	if contestID == 0 || index == "" {
		return ""
	}
	return strconv.Itoa(contestID) + index
}

// Snapshot copies a catalog problem into a contest
func (p Problem) Snapshot(contestID int64) ContestProblem {
	var rating *int
	if p.Rating != nil {
		r := *p.Rating
		rating = &r
	}
	tags := make([]string, len(p.Tags))
	copy(tags, p.Tags)
	return ContestProblem{
		ContestID: contestID,
		ProblemID: p.ID,
		Name:      p.Name,
		Rating:    rating,
		Tags:      tags,
	}
}

// Submission is one entry of a handle's submission history on the judge
type Submission struct {
	ID          int64     `json:"id"`
	ProblemID   string    `json:"problem_id"`
	Verdict     string    `json:"verdict"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Accepted reports whether the judge accepted the submission
func (s Submission) Accepted() bool {
	return s.Verdict == VerdictAccepted
}
