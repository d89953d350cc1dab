package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/domain"
	"github.com/contest-leaderboard/internal/metrics"
)

// Reconciler turns judge submissions into ledger records
type Reconciler struct {
	feed    Feed
	config  *config.SchedulerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReconciler creates a new submission reconciler
func NewReconciler(feed Feed, cfg *config.SchedulerConfig, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		feed:    feed,
		config:  cfg,
		metrics: m,
		logger:  logger,
	}
}

// Eligible keeps the submissions that count for a contest: accepted, inside the
// contest window and targeting one of its problems.
func Eligible(contest domain.Contest, problems []domain.ContestProblem, userID string, submissions []domain.Submission) []domain.SubmissionRecord {
	inContest := make(map[string]struct{}, len(problems))
	for _, p := range problems {
		inContest[p.ProblemID] = struct{}{}
	}

	var records []domain.SubmissionRecord
	for _, sub := range submissions {
		if !sub.Accepted() || !contest.InWindow(sub.SubmittedAt) {
			continue
		}
		if _, ok := inContest[sub.ProblemID]; !ok {
			continue
		}
		records = append(records, domain.SubmissionRecord{
			ContestID:    contest.ID,
			UserID:       userID,
			ProblemID:    sub.ProblemID,
			SubmissionID: sub.ID,
			SubmittedAt:  sub.SubmittedAt,
			Verdict:      sub.Verdict,
		})
	}
	return records
}

// Collect fetches the recent submissions of every participant with a known handle
// and returns the eligible records. Fetches run on a bounded number of workers,
// each under its own timeout; a failed fetch is logged and skips that participant.
func (r *Reconciler) Collect(ctx context.Context, contest domain.Contest, problems []domain.ContestProblem, participants []domain.Participant) []domain.SubmissionRecord {
	perUser := make([][]domain.SubmissionRecord, len(participants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())

	for i, p := range participants {
		if p.Handle == "" {
			r.logger.Debug("participant has no judge handle, skipping",
				"contest_id", contest.ID,
				"user_id", p.UserID,
			)
			continue
		}

		g.Go(func() error {
			subs, err := r.fetch(gctx, p.Handle)
			if err != nil {
				r.metrics.FeedFailures.Inc()
				r.logger.Warn("failed to fetch submissions",
					"contest_id", contest.ID,
					"user_id", p.UserID,
					"handle", p.Handle,
					"error", err,
				)
				return nil
			}
			perUser[i] = Eligible(contest, problems, p.UserID, subs)
			return nil
		})
	}
	_ = g.Wait()

	var records []domain.SubmissionRecord
	for _, recs := range perUser {
		records = append(records, recs...)
	}
	return records
}

func (r *Reconciler) fetch(ctx context.Context, handle string) ([]domain.Submission, error) {
	if r.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.CallTimeout)
		defer cancel()
	}
	subs, err := r.feed.FetchSubmissions(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("fetching submissions for %s: %w", handle, err)
	}
	return subs, nil
}

func (r *Reconciler) workers() int {
	if r.config.Workers <= 0 {
		return 1
	}
	return r.config.Workers
}

// Record stores records in the ledger. Records seen in earlier cycles are ignored.
func (r *Reconciler) Record(ctx context.Context, tx domain.ContestTx, records []domain.SubmissionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	inserted, err := tx.InsertSubmissions(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("recording submissions: %w", err)
	}
	r.metrics.SubmissionsRecorded.Add(float64(inserted))
	if inserted > 0 {
		r.logger.Info("recorded new submissions",
			"contest_id", tx.Contest().ID,
			"count", inserted,
			"observed", len(records),
		)
	}
	return inserted, nil
}
