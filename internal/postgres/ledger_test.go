package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/domain"
)

// newTestLedger connects to the database named by POSTGRES_TEST_HOST and friends.
// Tests are skipped when it is not set.
func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	host := os.Getenv("POSTGRES_TEST_HOST")
	if host == "" {
		t.Skip("POSTGRES_TEST_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("POSTGRES_TEST_PORT"))
	if port == 0 {
		port = 5432
	}
	cfg := &config.PostgresConfig{
		Host:           host,
		Port:           port,
		User:           os.Getenv("POSTGRES_TEST_USER"),
		Password:       os.Getenv("POSTGRES_TEST_PASSWORD"),
		Database:       os.Getenv("POSTGRES_TEST_DB"),
		MaxConnections: 4,
		MinConnections: 1,
	}

	l, err := NewLedger(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(l.Close)
	require.NoError(t, l.RunMigrations(context.Background()))
	return l
}

func createTestContest(t *testing.T, l *Ledger) int64 {
	t.Helper()
	r1300, r1200 := 1300, 1200
	id, err := l.CreateContest(context.Background(), domain.Contest{
		Name:      "ledger test",
		Duration:  "1h",
		CreatedBy: "admin",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		Status:    domain.StatusActive,
	}, []domain.ContestProblem{
		{ProblemID: "1A", Name: "Alpha", Rating: &r1300, Tags: []string{"math"}},
		{ProblemID: "1B", Name: "Beta", Rating: &r1200},
		{ProblemID: "1C", Name: "Unrated"},
	})
	require.NoError(t, err)
	return id
}

func TestLedger_ContestLifecycle(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id := createTestContest(t, l)

	problems, err := l.ListProblems(ctx, id)
	require.NoError(t, err)
	require.Len(t, problems, 3)
	assert.Equal(t, "1B", problems[0].ProblemID)
	assert.Equal(t, 12, problems[0].Points())
	assert.Nil(t, problems[2].Rating)

	require.NoError(t, l.LinkHandle(ctx, "u1", "tourist"))
	err = l.WithContest(ctx, id, func(tx domain.ContestTx) error {
		require.NoError(t, tx.AddParticipant(ctx, "u1"))
		return tx.AddParticipant(ctx, "u2")
	})
	require.NoError(t, err)

	err = l.WithContest(ctx, id, func(tx domain.ContestTx) error {
		return tx.AddParticipant(ctx, "u1")
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)

	participants, err := l.ListParticipants(ctx, id)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "tourist", participants[0].Handle)
	assert.Equal(t, "", participants[1].Handle)

	start := time.Now().UTC().Truncate(time.Microsecond)
	end := start.Add(time.Hour)
	ref := domain.SurfaceRef{ChannelID: "c1", MessageID: "m1"}
	err = l.WithContest(ctx, id, func(tx domain.ContestTx) error {
		if err := tx.UpdateStatus(ctx, domain.StatusRunning, &start, &end); err != nil {
			return err
		}
		return tx.SetLeaderboard(ctx, &ref)
	})
	require.NoError(t, err)

	live, err := l.ListLiveContests(ctx)
	require.NoError(t, err)
	found := false
	for _, c := range live {
		if c.ID == id {
			found = true
			assert.Equal(t, &ref, c.Leaderboard)
		}
	}
	assert.True(t, found)

	records := []domain.SubmissionRecord{
		{ContestID: id, UserID: "u1", ProblemID: "1A", SubmissionID: 1, SubmittedAt: start, Verdict: domain.VerdictAccepted},
		{ContestID: id, UserID: "u1", ProblemID: "1A", SubmissionID: 2, SubmittedAt: start, Verdict: domain.VerdictAccepted},
		{ContestID: id, UserID: "u1", ProblemID: "1B", SubmissionID: 3, SubmittedAt: start, Verdict: domain.VerdictAccepted},
	}
	for i, want := range []int{3, 0} {
		err = l.WithContest(ctx, id, func(tx domain.ContestTx) error {
			n, err := tx.InsertSubmissions(ctx, records)
			assert.Equal(t, want, n, "pass %d", i)
			return err
		})
		require.NoError(t, err)
	}

	err = l.WithContest(ctx, id, func(tx domain.ContestTx) error {
		solved, err := tx.SolvedProblems(ctx)
		if err != nil {
			return err
		}
		assert.Len(t, solved["u1"], 2)
		return tx.SetScores(ctx, map[string]int{"u1": 25, "u2": 0})
	})
	require.NoError(t, err)

	solved, err := l.ListSolved(ctx, id, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1A", "1B"}, solved)

	participants, err = l.ListParticipants(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 25, participants[0].Score)
}

func TestLedger_RollbackOnError(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id := createTestContest(t, l)

	err := l.WithContest(ctx, id, func(tx domain.ContestTx) error {
		require.NoError(t, tx.AddParticipant(ctx, "u1"))
		return domain.ErrInvalidState
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	participants, err := l.ListParticipants(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, participants)
}

func TestLedger_NotFound(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.GetContest(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrContestNotFound)
	err = l.WithContest(ctx, -1, func(domain.ContestTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrContestNotFound)
}
