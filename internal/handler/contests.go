package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contest-leaderboard/internal/domain"
)

type userRequest struct {
	UserID string `json:"user_id"`
}

type activateRequest struct {
	ChannelID string `json:"channel_id"`
}

type handleRequest struct {
	Handle string `json:"handle"`
}

// CreateContest handles contest creation
func (h *Handler) CreateContest(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateContestRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.engine.CreateContest(r.Context(), req)
	if err != nil {
		h.fail(w, "create contest", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    map[string]int64{"contest_id": id},
	})
}

// ListContests returns active and running contests
func (h *Handler) ListContests(w http.ResponseWriter, r *http.Request) {
	contests, err := h.engine.ListContests(r.Context())
	if err != nil {
		h.fail(w, "list contests", err)
		return
	}
	if contests == nil {
		contests = []domain.ContestSummary{}
	}
	h.writeSuccess(w, contests)
}

// GetStatus returns a contest with its standings
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contestID(w, r)
	if !ok {
		return
	}
	view, err := h.engine.GetStatus(r.Context(), id)
	if err != nil {
		h.fail(w, "get status", err)
		return
	}
	h.writeSuccess(w, view)
}

// ContestProblems returns a contest's problem set
func (h *Handler) ContestProblems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contestID(w, r)
	if !ok {
		return
	}
	problems, err := h.engine.ContestProblems(r.Context(), id)
	if err != nil {
		h.fail(w, "contest problems", err)
		return
	}
	h.writeSuccess(w, problems)
}

// ProblemStatus returns a participant's solved flags
func (h *Handler) ProblemStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contestID(w, r)
	if !ok {
		return
	}
	states, err := h.engine.ProblemStatus(r.Context(), id, chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, "problem status", err)
		return
	}
	h.writeSuccess(w, states)
}

// JoinContest registers a user in an active contest
func (h *Handler) JoinContest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contestID(w, r)
	if !ok {
		return
	}
	var req userRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.JoinContest(r.Context(), id, req.UserID); err != nil {
		h.fail(w, "join contest", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "joined"})
}

// LeaveContest removes a user from an active contest
func (h *Handler) LeaveContest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contestID(w, r)
	if !ok {
		return
	}
	var req userRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.LeaveContest(r.Context(), id, req.UserID); err != nil {
		h.fail(w, "leave contest", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "left"})
}

// StartContest opens a contest's timed window
func (h *Handler) StartContest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contestID(w, r)
	if !ok {
		return
	}
	contest, err := h.engine.StartContest(r.Context(), id)
	if err != nil {
		h.fail(w, "start contest", err)
		return
	}
	h.writeSuccess(w, contest)
}

// EndContest closes a running contest and returns its final standings
func (h *Handler) EndContest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contestID(w, r)
	if !ok {
		return
	}
	standings, err := h.engine.EndContest(r.Context(), id)
	if err != nil {
		h.fail(w, "end contest", err)
		return
	}
	if standings == nil {
		standings = []domain.Standing{}
	}
	h.writeSuccess(w, standings)
}

// ActivateLeaderboard starts a live leaderboard on a channel
func (h *Handler) ActivateLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contestID(w, r)
	if !ok {
		return
	}
	var req activateRequest
	if !h.decode(w, r, &req) {
		return
	}
	ref, err := h.engine.ActivateLeaderboard(r.Context(), id, req.ChannelID)
	if err != nil {
		h.fail(w, "activate leaderboard", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: ref})
}

// LinkHandle stores a user's judge handle
func (h *Handler) LinkHandle(w http.ResponseWriter, r *http.Request) {
	var req handleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.LinkHandle(r.Context(), chi.URLParam(r, "userID"), req.Handle); err != nil {
		h.fail(w, "link handle", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "linked"})
}
