package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/domain"
	"github.com/contest-leaderboard/internal/metrics"
)

const (
	timeLayout    = "2006-01-02 15:04:05 UTC"
	initialFooter = "This leaderboard will update automatically."
)

// Publisher renders contest standings and keeps live leaderboards up to date
type Publisher struct {
	ledger  Ledger
	surface Surface
	config  *config.LeaderboardConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewPublisher creates a new leaderboard publisher
func NewPublisher(ledger Ledger, surface Surface, cfg *config.LeaderboardConfig, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{
		ledger:  ledger,
		surface: surface,
		config:  cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source used for footers
func (p *Publisher) SetClock(now func() time.Time) {
	p.now = now
}

// Status reads the contest and its ranked participants from the ledger
func (p *Publisher) Status(ctx context.Context, contestID int64) (*domain.StatusView, error) {
	contest, err := p.ledger.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	participants, err := p.ledger.ListParticipants(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}

	return &domain.StatusView{
		ID:        contest.ID,
		Name:      contest.Name,
		Status:    contest.Status,
		Duration:  contest.Duration,
		CreatedBy: contest.CreatedBy,
		CreatedAt: contest.CreatedAt,
		StartTime: contest.StartTime,
		EndTime:   contest.EndTime,
		Standings: domain.RankParticipants(participants),
	}, nil
}

// Render builds the leaderboard rendering of a status view.
// At most maxRows ranking lines are listed when maxRows is positive.
func Render(view domain.StatusView, maxRows int, footer string) domain.Rendering {
	r := domain.Rendering{
		Title:  "Live Leaderboard: " + view.Name,
		Footer: footer,
	}
	r.Fields = append(r.Fields, domain.Field{Name: "Status", Value: string(view.Status), Inline: true})
	if view.StartTime != nil {
		r.Fields = append(r.Fields, domain.Field{Name: "Start Time", Value: view.StartTime.UTC().Format(timeLayout), Inline: true})
	}
	if view.EndTime != nil {
		r.Fields = append(r.Fields, domain.Field{Name: "End Time", Value: view.EndTime.UTC().Format(timeLayout), Inline: true})
	}
	r.Fields = append(r.Fields, domain.Field{Name: "Participants", Value: strconv.Itoa(len(view.Standings)), Inline: true})

	if len(view.Standings) > 0 {
		rows := view.Standings
		if maxRows > 0 && len(rows) > maxRows {
			rows = rows[:maxRows]
		}
		lines := make([]string, 0, len(rows)+1)
		for _, s := range rows {
			lines = append(lines, fmt.Sprintf("%d. %s: %d points", s.Rank, s.Handle, s.Score))
		}
		if hidden := len(view.Standings) - len(rows); hidden > 0 {
			lines = append(lines, fmt.Sprintf("... and %d more", hidden))
		}
		r.Fields = append(r.Fields, domain.Field{Name: "Current Rankings", Value: strings.Join(lines, "\n")})
	}
	return r
}

// Activate posts the first rendering of a running contest's leaderboard on a channel
// and records the returned reference so the scheduler keeps it updated.
func (p *Publisher) Activate(ctx context.Context, contestID int64, channelID string) (domain.SurfaceRef, error) {
	if strings.TrimSpace(channelID) == "" {
		return domain.SurfaceRef{}, fmt.Errorf("%w: channel id is required", domain.ErrValidation)
	}

	view, err := p.Status(ctx, contestID)
	if err != nil {
		return domain.SurfaceRef{}, err
	}
	if view.Status != domain.StatusRunning {
		return domain.SurfaceRef{}, fmt.Errorf("%w: live leaderboard requires a running contest", domain.ErrInvalidState)
	}

	ref, err := p.surface.Post(ctx, channelID, Render(*view, p.config.MaxRows, initialFooter))
	if err != nil {
		return domain.SurfaceRef{}, fmt.Errorf("posting leaderboard: %w", err)
	}

	err = p.ledger.WithContest(ctx, contestID, func(tx domain.ContestTx) error {
		if tx.Contest().Status != domain.StatusRunning {
			return fmt.Errorf("%w: contest stopped running", domain.ErrInvalidState)
		}
		return tx.SetLeaderboard(ctx, &ref)
	})
	if err != nil {
		p.discard(ctx, contestID, ref)
		return domain.SurfaceRef{}, err
	}

	p.logger.Info("live leaderboard activated",
		"contest_id", contestID,
		"channel_id", ref.ChannelID,
		"message_id", ref.MessageID,
	)
	return ref, nil
}

// discard removes a posted leaderboard that no contest refers to
func (p *Publisher) discard(ctx context.Context, contestID int64, ref domain.SurfaceRef) {
	if err := p.surface.Delete(context.WithoutCancel(ctx), ref); err != nil && !errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("failed to remove orphaned leaderboard",
			"contest_id", contestID,
			"channel_id", ref.ChannelID,
			"message_id", ref.MessageID,
			"error", err,
		)
	}
}

// Publish re-renders a contest's standings onto its stored surface reference.
// A missing surface or a denied update is logged and skipped; the reference is kept.
func (p *Publisher) Publish(ctx context.Context, contest domain.Contest) error {
	ref := contest.Leaderboard
	if ref == nil {
		return nil
	}

	view, err := p.Status(ctx, contest.ID)
	if err != nil {
		return fmt.Errorf("reading standings: %w", err)
	}
	footer := "Last updated: " + p.now().UTC().Format(timeLayout)

	err = p.surface.Edit(ctx, *ref, Render(*view, p.config.MaxRows, footer))
	switch {
	case err == nil:
		p.metrics.Publishes.WithLabelValues(metrics.PublishUpdated).Inc()
		return nil
	case errors.Is(err, domain.ErrNotFound):
		p.metrics.Publishes.WithLabelValues(metrics.PublishMissing).Inc()
		p.logger.Warn("leaderboard surface not found, skipping update",
			"contest_id", contest.ID,
			"channel_id", ref.ChannelID,
			"message_id", ref.MessageID,
		)
		return nil
	case errors.Is(err, domain.ErrPublishDenied):
		p.metrics.Publishes.WithLabelValues(metrics.PublishDenied).Inc()
		p.logger.Warn("not permitted to update leaderboard surface, skipping update",
			"contest_id", contest.ID,
			"channel_id", ref.ChannelID,
			"message_id", ref.MessageID,
		)
		return nil
	default:
		p.metrics.Publishes.WithLabelValues(metrics.PublishFailed).Inc()
		return fmt.Errorf("updating leaderboard: %w", err)
	}
}
