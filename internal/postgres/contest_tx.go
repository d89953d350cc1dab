package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/contest-leaderboard/internal/domain"
)

// contestTx is a transaction holding the row lock of one contest
type contestTx struct {
	tx      pgx.Tx
	contest domain.Contest
}

// submissionKey identifies a submission within a contest; re-inserting a known
// submission is a no-op.
const submissionKey = "contest_id, user_id, problem_id, submission_id"

const insertSubmissionSQL = `
	INSERT INTO contest_submissions (contest_id, user_id, problem_id, submission_id, submitted_at, verdict)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (` + submissionKey + `) DO NOTHING`

// solvedProblemsSQL yields each accepted problem once per user, however many
// accepted submissions the user has for it.
const solvedProblemsSQL = `
	SELECT DISTINCT ON (s.user_id, p.problem_id)
		s.user_id, p.contest_id, p.problem_id, p.name, p.rating, p.tags
	FROM contest_submissions s
	JOIN contest_problems p ON p.contest_id = s.contest_id AND p.problem_id = s.problem_id
	WHERE s.contest_id = $1 AND s.verdict = $2
	ORDER BY s.user_id, p.problem_id`

func (t *contestTx) Contest() domain.Contest {
	return t.contest
}

func (t *contestTx) UpdateStatus(ctx context.Context, status domain.ContestStatus, start, end *time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE contests SET status = $2, start_time = $3, end_time = $4 WHERE id = $1
	`, t.contest.ID, string(status), start, end)
	if err != nil {
		return fmt.Errorf("updating contest status: %w", err)
	}
	return nil
}

func (t *contestTx) SetLeaderboard(ctx context.Context, ref *domain.SurfaceRef) error {
	var channelID, messageID *string
	if ref != nil {
		channelID, messageID = &ref.ChannelID, &ref.MessageID
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE contests SET channel_id = $2, leaderboard_message_id = $3 WHERE id = $1
	`, t.contest.ID, channelID, messageID)
	if err != nil {
		return fmt.Errorf("setting leaderboard reference: %w", err)
	}
	return nil
}

func (t *contestTx) AddParticipant(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO contest_participants (contest_id, user_id, score, joined_at)
		VALUES ($1, $2, 0, $3)
	`, t.contest.ID, userID, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyJoined
		}
		return fmt.Errorf("adding participant: %w", err)
	}
	return nil
}

func (t *contestTx) RemoveParticipant(ctx context.Context, userID string) error {
	result, err := t.tx.Exec(ctx, `
		DELETE FROM contest_participants WHERE contest_id = $1 AND user_id = $2
	`, t.contest.ID, userID)
	if err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (t *contestTx) Participants(ctx context.Context) ([]domain.Participant, error) {
	return listParticipants(ctx, t.tx, t.contest.ID)
}

func (t *contestTx) InsertSubmissions(ctx context.Context, records []domain.SubmissionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertSubmissionSQL, t.contest.ID, r.UserID, r.ProblemID, r.SubmissionID, r.SubmittedAt, r.Verdict)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range records {
		tag, err := br.Exec()
		if err != nil {
			return 0, fmt.Errorf("inserting submission: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (t *contestTx) SolvedProblems(ctx context.Context) (map[string][]domain.ContestProblem, error) {
	rows, err := t.tx.Query(ctx, solvedProblemsSQL, t.contest.ID, domain.VerdictAccepted)
	if err != nil {
		return nil, fmt.Errorf("listing solved problems: %w", err)
	}
	defer rows.Close()

	solved := make(map[string][]domain.ContestProblem)
	for rows.Next() {
		var userID string
		p, err := scanProblem(rows, &userID)
		if err != nil {
			return nil, err
		}
		solved[userID] = append(solved[userID], p)
	}
	return solved, rows.Err()
}

func (t *contestTx) SetScores(ctx context.Context, scores map[string]int) error {
	if len(scores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for userID, score := range scores {
		batch.Queue(`
			UPDATE contest_participants SET score = $3 WHERE contest_id = $1 AND user_id = $2
		`, t.contest.ID, userID, score)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for range scores {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("updating score: %w", err)
		}
	}
	return nil
}
