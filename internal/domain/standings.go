package domain

import "sort"

// Standing is one ranked row of a contest leaderboard
type Standing struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
	Score  int    `json:"score"`
}

// RankParticipants orders participants by score, highest first.
// Participants must be given in join order; ties keep that order.
func RankParticipants(participants []Participant) []Standing {
	ordered := make([]Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	standings := make([]Standing, len(ordered))
	for i, p := range ordered {
		standings[i] = Standing{
			Rank:   i + 1,
			UserID: p.UserID,
			Handle: p.DisplayName(),
			Score:  p.Score,
		}
	}
	return standings
}
