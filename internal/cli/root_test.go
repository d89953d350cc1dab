package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contest-leaderboard/internal/kafka"
)

func run(t *testing.T, producer sarama.SyncProducer, args ...string) (string, []string, error) {
	t.Helper()
	var brokers []string
	root := NewRootCommand(func(b []string) (sarama.SyncProducer, error) {
		brokers = b
		return producer, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), brokers, err
}

func expectCommand(t *testing.T, producer *mocks.SyncProducer, want kafka.Command) {
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, want.Key(), string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		requestID, got, err := kafka.Decode(value)
		require.NoError(t, err)
		assert.NotEmpty(t, requestID)
		assert.Equal(t, want, got)
		return nil
	})
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want kafka.Command
	}{
		{
			name: "join",
			args: []string{"join", "7", "alice"},
			want: kafka.JoinContest{ContestID: 7, UserID: "alice"},
		},
		{
			name: "leave",
			args: []string{"leave", "7", "alice"},
			want: kafka.LeaveContest{ContestID: 7, UserID: "alice"},
		},
		{
			name: "start",
			args: []string{"start", "7"},
			want: kafka.StartContest{ContestID: 7},
		},
		{
			name: "end",
			args: []string{"end", "7"},
			want: kafka.EndContest{ContestID: 7},
		},
		{
			name: "activate",
			args: []string{"activate", "7", "general"},
			want: kafka.ActivateLeaderboard{ContestID: 7, ChannelID: "general"},
		},
		{
			name: "link",
			args: []string{"link", "alice", "tourist"},
			want: kafka.LinkHandle{UserID: "alice", Handle: "tourist"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := mocks.NewSyncProducer(t, nil)
			expectCommand(t, producer, tt.want)

			out, brokers, err := run(t, producer, append(tt.args, "--brokers", "k1:9092, k2:9092")...)
			require.NoError(t, err)
			assert.Equal(t, []string{"k1:9092", "k2:9092"}, brokers)
			assert.Contains(t, out, "queued "+string(tt.want.Type()))
		})
	}
}

func TestCreateCommand(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	want := kafka.CreateContest{}
	want.Name = "Friday Round"
	want.Duration = "2h"
	want.CreatedBy = "alice"
	want.Count = 3
	want.MinRating = 1200
	want.MaxRating = 1800
	expectCommand(t, producer, want)

	_, _, err := run(t, producer, "create", "Friday Round",
		"--duration", "2h", "--by", "alice", "--count", "3", "--min", "1200", "--max", "1800")
	require.NoError(t, err)
}

func TestCreateCommandRequiresCreator(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)

	_, _, err := run(t, producer, "create", "Friday Round")
	assert.Error(t, err)
}

func TestInvalidContestID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-3"} {
		producer := mocks.NewSyncProducer(t, nil)
		_, _, err := run(t, producer, "start", id)
		assert.ErrorContains(t, err, "invalid contest id")
	}
}

func TestSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	_, _, err := run(t, producer, "end", "7")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
}

func TestProducerFactoryFailure(t *testing.T) {
	root := NewRootCommand(func([]string) (sarama.SyncProducer, error) {
		return nil, sarama.ErrOutOfBrokers
	})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"start", "7"})

	assert.ErrorIs(t, root.Execute(), sarama.ErrOutOfBrokers)
}
