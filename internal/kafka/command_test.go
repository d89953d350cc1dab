package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/domain"
	"github.com/contest-leaderboard/internal/metrics"
)

type recordingEngine struct {
	calls []string
	err   error
	// errs, when set, is consumed one error per call before err applies
	errs []error
}

func (e *recordingEngine) next() error {
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		return err
	}
	return e.err
}

func (e *recordingEngine) CreateContest(_ context.Context, req domain.CreateContestRequest) (int64, error) {
	e.calls = append(e.calls, "create:"+req.Name)
	return 7, e.next()
}

func (e *recordingEngine) JoinContest(_ context.Context, id int64, userID string) error {
	e.calls = append(e.calls, "join:"+userID)
	return e.next()
}

func (e *recordingEngine) LeaveContest(_ context.Context, id int64, userID string) error {
	e.calls = append(e.calls, "leave:"+userID)
	return e.next()
}

func (e *recordingEngine) StartContest(_ context.Context, id int64) (*domain.Contest, error) {
	e.calls = append(e.calls, "start")
	return &domain.Contest{ID: id, Status: domain.StatusRunning}, e.next()
}

func (e *recordingEngine) EndContest(_ context.Context, id int64) ([]domain.Standing, error) {
	e.calls = append(e.calls, "end")
	return nil, e.next()
}

func (e *recordingEngine) ActivateLeaderboard(_ context.Context, id int64, channelID string) (domain.SurfaceRef, error) {
	e.calls = append(e.calls, "activate:"+channelID)
	return domain.SurfaceRef{ChannelID: channelID, MessageID: "m1"}, e.next()
}

func (e *recordingEngine) LinkHandle(_ context.Context, userID, handle string) error {
	e.calls = append(e.calls, "link:"+handle)
	return e.next()
}

func TestEncodeDecode(t *testing.T) {
	commands := []Command{
		CreateContest{domain.CreateContestRequest{Name: "Weekly", Duration: "2h", CreatedBy: "admin", Count: 3, MinRating: 1200, MaxRating: 1400}},
		JoinContest{ContestID: 1, UserID: "u1"},
		LeaveContest{ContestID: 1, UserID: "u1"},
		StartContest{ContestID: 1},
		EndContest{ContestID: 1},
		ActivateLeaderboard{ContestID: 1, ChannelID: "c1"},
		LinkHandle{UserID: "u1", Handle: "tourist"},
	}

	for _, cmd := range commands {
		t.Run(string(cmd.Type()), func(t *testing.T) {
			data, err := Encode("req-1", cmd)
			require.NoError(t, err)

			requestID, decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, "req-1", requestID)
			assert.Equal(t, cmd, decoded)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"unknown type", `{"type":"drop_tables","payload":{}}`},
		{"missing payload", `{"type":"start_contest"}`},
		{"wrong payload", `{"type":"start_contest","payload":{"contest_id":"one"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

func TestKeysGroupContestCommands(t *testing.T) {
	assert.Equal(t, JoinContest{ContestID: 4}.Key(), EndContest{ContestID: 4}.Key())
	assert.NotEqual(t, StartContest{ContestID: 4}.Key(), StartContest{ContestID: 5}.Key())
}

func TestDispatch(t *testing.T) {
	e := &recordingEngine{}
	ctx := context.Background()

	result, err := Dispatch(ctx, e, CreateContest{domain.CreateContestRequest{Name: "Weekly"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"contest_id": 7}, result)

	result, err = Dispatch(ctx, e, ActivateLeaderboard{ContestID: 7, ChannelID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, domain.SurfaceRef{ChannelID: "c1", MessageID: "m1"}, result)

	_, err = Dispatch(ctx, e, JoinContest{ContestID: 7, UserID: "u1"})
	require.NoError(t, err)
	_, err = Dispatch(ctx, e, LinkHandle{UserID: "u1", Handle: "tourist"})
	require.NoError(t, err)

	assert.Equal(t, []string{"create:Weekly", "activate:c1", "join:u1", "link:tourist"}, e.calls)
}

func newTestConsumer(e Engine, retries int) *Consumer {
	return &Consumer{
		config:  &config.KafkaConfig{CommandTimeout: time.Second, MaxRetries: retries, RetryDelay: time.Millisecond},
		engine:  e,
		metrics: metrics.Discard(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestConsumerHandle(t *testing.T) {
	e := &recordingEngine{}
	c := newTestConsumer(e, 2)

	data, err := Encode("r1", StartContest{ContestID: 3})
	require.NoError(t, err)
	c.Handle(context.Background(), data)
	c.Handle(context.Background(), []byte(`garbage`))

	e.err = domain.ErrInvalidState
	c.Handle(context.Background(), data)

	assert.Equal(t, []string{"start", "start"}, e.calls)
	assert.True(t, isRejection(e.err))
	assert.False(t, isRejection(domain.ErrExternalUnavailable))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Commands.WithLabelValues("start_contest", metrics.CommandApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Commands.WithLabelValues("start_contest", metrics.CommandRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Commands.WithLabelValues("unknown", metrics.CommandMalformed)))
}

func TestConsumerHandle_RetriesUnavailableJudge(t *testing.T) {
	e := &recordingEngine{errs: []error{domain.ErrExternalUnavailable, domain.ErrExternalUnavailable}}
	c := newTestConsumer(e, 3)

	data, err := Encode("r1", CreateContest{domain.CreateContestRequest{Name: "Weekly"}})
	require.NoError(t, err)
	c.Handle(context.Background(), data)

	assert.Equal(t, []string{"create:Weekly", "create:Weekly", "create:Weekly"}, e.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Commands.WithLabelValues("create_contest", metrics.CommandApplied)))
}

func TestConsumerHandle_GivesUp(t *testing.T) {
	e := &recordingEngine{err: domain.ErrExternalUnavailable}
	c := newTestConsumer(e, 1)

	data, err := Encode("r1", JoinContest{ContestID: 1, UserID: "u1"})
	require.NoError(t, err)
	c.Handle(context.Background(), data)

	assert.Len(t, e.calls, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Commands.WithLabelValues("join_contest", metrics.CommandFailed)))
}

func TestConsumerHandle_RejectionIsNotRetried(t *testing.T) {
	e := &recordingEngine{err: domain.ErrAlreadyJoined}
	c := newTestConsumer(e, 3)

	data, err := Encode("r1", JoinContest{ContestID: 1, UserID: "u1"})
	require.NoError(t, err)
	c.Handle(context.Background(), data)

	assert.Len(t, e.calls, 1)
}
