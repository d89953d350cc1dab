package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/domain"
)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger is the PostgreSQL store of contests, problems, participants and submission records
type Ledger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLedger connects to PostgreSQL
func NewLedger(cfg *config.PostgresConfig, logger *slog.Logger) (*Ledger, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Ledger{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (l *Ledger) Close() {
	l.pool.Close()
}

// Ping checks database connectivity
func (l *Ledger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// schema is applied in order by RunMigrations
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id VARCHAR(64) PRIMARY KEY,
		handle VARCHAR(64) NOT NULL,
		linked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS contests (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		duration VARCHAR(16) NOT NULL,
		created_by VARCHAR(64) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		status VARCHAR(16) NOT NULL,
		start_time TIMESTAMPTZ,
		end_time TIMESTAMPTZ,
		channel_id VARCHAR(64),
		leaderboard_message_id VARCHAR(64)
	)`,
	`CREATE TABLE IF NOT EXISTS contest_problems (
		contest_id BIGINT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
		problem_id VARCHAR(32) NOT NULL,
		name VARCHAR(255) NOT NULL,
		rating INT,
		tags TEXT[] NOT NULL DEFAULT '{}',
		PRIMARY KEY (contest_id, problem_id)
	)`,
	`CREATE TABLE IF NOT EXISTS contest_participants (
		id BIGSERIAL PRIMARY KEY,
		contest_id BIGINT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
		user_id VARCHAR(64) NOT NULL,
		score INT NOT NULL DEFAULT 0,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(contest_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS contest_submissions (
		contest_id BIGINT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
		user_id VARCHAR(64) NOT NULL,
		problem_id VARCHAR(32) NOT NULL,
		submission_id BIGINT NOT NULL,
		submitted_at TIMESTAMPTZ NOT NULL,
		verdict VARCHAR(32) NOT NULL,
		PRIMARY KEY (` + submissionKey + `)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contests_status ON contests(status)`,
	`CREATE INDEX IF NOT EXISTS idx_contest_submissions_user ON contest_submissions(contest_id, user_id)`,
}

// RunMigrations creates the schema if it does not exist
func (l *Ledger) RunMigrations(ctx context.Context) error {
	for _, migration := range schema {
		_, err := l.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	l.logger.Info("database migrations completed")
	return nil
}

const contestColumns = `id, name, duration, created_by, created_at, status, start_time, end_time, channel_id, leaderboard_message_id`

func scanContest(row pgx.Row, extra ...any) (*domain.Contest, error) {
	var (
		c         domain.Contest
		channelID *string
		messageID *string
	)
	dest := []any{
		&c.ID,
		&c.Name,
		&c.Duration,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.Status,
		&c.StartTime,
		&c.EndTime,
		&channelID,
		&messageID,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if channelID != nil && messageID != nil {
		c.Leaderboard = &domain.SurfaceRef{ChannelID: *channelID, MessageID: *messageID}
	}
	return &c, nil
}

// CreateContest stores the contest and its problem snapshot in one transaction
func (l *Ledger) CreateContest(ctx context.Context, contest domain.Contest, problems []domain.ContestProblem) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO contests (name, duration, created_by, created_at, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, contest.Name, contest.Duration, contest.CreatedBy, contest.CreatedAt, string(contest.Status)).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting contest: %w", err)
		}

		batch := &pgx.Batch{}
		for _, p := range problems {
			batch.Queue(`
				INSERT INTO contest_problems (contest_id, problem_id, name, rating, tags)
				VALUES ($1, $2, $3, $4, $5)
			`, id, p.ProblemID, p.Name, p.Rating, nonNilTags(p.Tags))
		}
		br := tx.SendBatch(ctx, batch)
		for range problems {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("inserting contest problem: %w", err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("creating contest: %w", err)
	}
	return id, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// GetContest retrieves a contest by ID
func (l *Ledger) GetContest(ctx context.Context, contestID int64) (*domain.Contest, error) {
	c, err := scanContest(l.pool.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, contestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContestNotFound
		}
		return nil, fmt.Errorf("getting contest: %w", err)
	}
	return c, nil
}

// ListContests returns contests in the given statuses with their participant counts, newest first
func (l *Ledger) ListContests(ctx context.Context, statuses ...domain.ContestStatus) ([]domain.ContestSummary, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT `+contestColumns+`,
			(SELECT COUNT(*) FROM contest_participants cp WHERE cp.contest_id = contests.id)
		FROM contests
		WHERE status = ANY($1)
		ORDER BY created_at DESC, id DESC
	`, names)
	if err != nil {
		return nil, fmt.Errorf("listing contests: %w", err)
	}
	defer rows.Close()

	var summaries []domain.ContestSummary
	for rows.Next() {
		var count int
		c, err := scanContest(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("scanning contest: %w", err)
		}
		summaries = append(summaries, domain.ContestSummary{Contest: *c, Participants: count})
	}
	return summaries, rows.Err()
}

// ListLiveContests returns running contests that have a leaderboard surface
func (l *Ledger) ListLiveContests(ctx context.Context) ([]domain.Contest, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT `+contestColumns+`
		FROM contests
		WHERE status = $1 AND channel_id IS NOT NULL AND leaderboard_message_id IS NOT NULL
		ORDER BY id
	`, string(domain.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("listing live contests: %w", err)
	}
	defer rows.Close()

	var contests []domain.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contest: %w", err)
		}
		contests = append(contests, *c)
	}
	return contests, rows.Err()
}

// ListProblems returns the contest's problem snapshot ordered by rating
func (l *Ledger) ListProblems(ctx context.Context, contestID int64) ([]domain.ContestProblem, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT contest_id, problem_id, name, rating, tags
		FROM contest_problems
		WHERE contest_id = $1
		ORDER BY rating NULLS LAST, problem_id
	`, contestID)
	if err != nil {
		return nil, fmt.Errorf("listing problems: %w", err)
	}
	defer rows.Close()

	var problems []domain.ContestProblem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

func scanProblem(row pgx.Row, prefix ...any) (domain.ContestProblem, error) {
	var (
		p      domain.ContestProblem
		rating *int32
	)
	dest := append(prefix, &p.ContestID, &p.ProblemID, &p.Name, &rating, &p.Tags)
	if err := row.Scan(dest...); err != nil {
		return p, fmt.Errorf("scanning problem: %w", err)
	}
	if rating != nil {
		r := int(*rating)
		p.Rating = &r
	}
	return p, nil
}

// ListParticipants returns the contest's participants in join order
func (l *Ledger) ListParticipants(ctx context.Context, contestID int64) ([]domain.Participant, error) {
	return listParticipants(ctx, l.pool, contestID)
}

func listParticipants(ctx context.Context, q querier, contestID int64) ([]domain.Participant, error) {
	rows, err := q.Query(ctx, `
		SELECT cp.contest_id, cp.user_id, COALESCE(u.handle, ''), cp.score, cp.joined_at
		FROM contest_participants cp
		LEFT JOIN users u ON u.user_id = cp.user_id
		WHERE cp.contest_id = $1
		ORDER BY cp.id
	`, contestID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ContestID, &p.UserID, &p.Handle, &p.Score, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// ListSolved returns the distinct contest problems a user has an accepted record for
func (l *Ledger) ListSolved(ctx context.Context, contestID int64, userID string) ([]string, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT DISTINCT problem_id
		FROM contest_submissions
		WHERE contest_id = $1 AND user_id = $2 AND verdict = $3
		ORDER BY problem_id
	`, contestID, userID, domain.VerdictAccepted)
	if err != nil {
		return nil, fmt.Errorf("listing solved problems: %w", err)
	}
	defer rows.Close()

	var solved []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning problem id: %w", err)
		}
		solved = append(solved, id)
	}
	return solved, rows.Err()
}

// LinkHandle stores or replaces a user's judge handle
func (l *Ledger) LinkHandle(ctx context.Context, userID, handle string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO users (user_id, handle, linked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET handle = EXCLUDED.handle, linked_at = EXCLUDED.linked_at
	`, userID, handle, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("linking handle: %w", err)
	}
	return nil
}

// WithContest locks the contest row and runs fn inside one transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (l *Ledger) WithContest(ctx context.Context, contestID int64, fn func(tx domain.ContestTx) error) error {
	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		c, err := scanContest(tx.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1 FOR UPDATE`, contestID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrContestNotFound
			}
			return fmt.Errorf("locking contest: %w", err)
		}
		return fn(&contestTx{tx: tx, contest: *c})
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
