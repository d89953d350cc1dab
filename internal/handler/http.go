package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/contest-leaderboard/internal/domain"
	"github.com/contest-leaderboard/internal/websocket"
)

// Engine is the contest engine exposed over HTTP
type Engine interface {
	CreateContest(ctx context.Context, req domain.CreateContestRequest) (int64, error)
	JoinContest(ctx context.Context, contestID int64, userID string) error
	LeaveContest(ctx context.Context, contestID int64, userID string) error
	StartContest(ctx context.Context, contestID int64) (*domain.Contest, error)
	EndContest(ctx context.Context, contestID int64) ([]domain.Standing, error)
	GetStatus(ctx context.Context, contestID int64) (*domain.StatusView, error)
	ListContests(ctx context.Context) ([]domain.ContestSummary, error)
	ContestProblems(ctx context.Context, contestID int64) ([]domain.ContestProblem, error)
	ProblemStatus(ctx context.Context, contestID int64, userID string) ([]domain.ProblemState, error)
	ActivateLeaderboard(ctx context.Context, contestID int64, channelID string) (domain.SurfaceRef, error)
	LinkHandle(ctx context.Context, userID, handle string) error
}

// Surface is the leaderboard surface browsed over HTTP
type Surface interface {
	Get(ctx context.Context, ref domain.SurfaceRef) (*domain.SurfaceMessage, error)
	List(ctx context.Context, channelID string) ([]domain.SurfaceMessage, error)
	Delete(ctx context.Context, ref domain.SurfaceRef) error
	SetReadOnly(ctx context.Context, channelID string, readOnly bool) error
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the contest API
type Handler struct {
	engine  Engine
	surface Surface
	hub     *websocket.Hub
	metrics http.Handler
	checks  map[string]Pinger
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. metrics may be nil.
func NewHandler(engine Engine, surface Surface, hub *websocket.Hub, metrics http.Handler, checks map[string]Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		surface: surface,
		hub:     hub,
		metrics: metrics,
		checks:  checks,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/contests", func(r chi.Router) {
			r.Post("/", h.CreateContest)
			r.Get("/", h.ListContests)

			r.Route("/{contestID}", func(r chi.Router) {
				r.Get("/", h.GetStatus)
				r.Get("/problems", h.ContestProblems)
				r.Get("/problems/{userID}", h.ProblemStatus)
				r.Post("/join", h.JoinContest)
				r.Post("/leave", h.LeaveContest)
				r.Post("/start", h.StartContest)
				r.Post("/end", h.EndContest)
				r.Post("/leaderboard", h.ActivateLeaderboard)
			})
		})

		r.Put("/users/{userID}/handle", h.LinkHandle)

		r.Route("/channels/{channelID}", func(r chi.Router) {
			r.Get("/messages", h.ListMessages)
			r.Get("/messages/{messageID}", h.GetMessage)
			r.Delete("/messages/{messageID}", h.DeleteMessage)
			r.Put("/permissions", h.SetPermissions)
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// statusFor maps a domain error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientProblems):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyJoined):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPublishDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrExternalUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the response for an engine error; unexpected errors are logged and hidden
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "operation", op, "error", err)
		h.writeError(w, status, domain.ErrInternalError)
		return
	}
	h.writeError(w, status, err)
}

func (h *Handler) contestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "contestID"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return false
	}
	return true
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]int{"total_connections": h.hub.ConnectionCount()}
	if channelID := r.URL.Query().Get("channel_id"); channelID != "" {
		stats["channel_viewers"] = h.hub.ViewerCount(channelID)
	}
	h.writeSuccess(w, stats)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every backing store
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	for name, check := range h.checks {
		if err := check.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
				Success: false,
				Error:   name + " unavailable",
			})
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
