package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contest-leaderboard/internal/domain"
)

type permissionsRequest struct {
	ReadOnly bool `json:"read_only"`
}

func messageRef(r *http.Request) domain.SurfaceRef {
	return domain.SurfaceRef{
		ChannelID: chi.URLParam(r, "channelID"),
		MessageID: chi.URLParam(r, "messageID"),
	}
}

// ListMessages returns the messages of a channel
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.surface.List(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		h.fail(w, "list messages", err)
		return
	}
	if messages == nil {
		messages = []domain.SurfaceMessage{}
	}
	h.writeSuccess(w, messages)
}

// GetMessage returns one message
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.surface.Get(r.Context(), messageRef(r))
	if err != nil {
		h.fail(w, "get message", err)
		return
	}
	h.writeSuccess(w, msg)
}

// DeleteMessage removes a message
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.surface.Delete(r.Context(), messageRef(r)); err != nil {
		h.fail(w, "delete message", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// SetPermissions toggles whether the engine may write on a channel
func (h *Handler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.surface.SetReadOnly(r.Context(), chi.URLParam(r, "channelID"), req.ReadOnly); err != nil {
		h.fail(w, "set permissions", err)
		return
	}
	h.writeSuccess(w, map[string]bool{"read_only": req.ReadOnly})
}
