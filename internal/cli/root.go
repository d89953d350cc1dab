package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/contest-leaderboard/internal/kafka"
)

// ProducerFactory opens a producer against the given brokers
type ProducerFactory func(brokers []string) (sarama.SyncProducer, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Brokers string
	Topic   string

	newProducer ProducerFactory
}

// NewSaramaProducer opens a synchronous producer that waits for the leader to acknowledge
func NewSaramaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Retry.Max = 3
	return sarama.NewSyncProducer(brokers, config)
}

// NewRootCommand creates the root command for contestctl.
func NewRootCommand(newProducer ProducerFactory) *cobra.Command {
	opts := &RootOptions{newProducer: newProducer}

	cmd := &cobra.Command{
		Use:   "contestctl",
		Short: "Queue contest commands on the command topic",
		Long: `contestctl publishes contest commands to Kafka.

The contest engine consumes the topic and applies each command in order.
Commands on the same contest share a partition.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Brokers, "brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	cmd.PersistentFlags().StringVar(&opts.Topic, "topic", "contest-commands", "Kafka topic")

	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newJoinCommand(opts))
	cmd.AddCommand(newLeaveCommand(opts))
	cmd.AddCommand(newContestCommand(opts, "start", "Start a pending contest", func(id int64) kafka.Command {
		return kafka.StartContest{ContestID: id}
	}))
	cmd.AddCommand(newContestCommand(opts, "end", "End a running contest", func(id int64) kafka.Command {
		return kafka.EndContest{ContestID: id}
	}))
	cmd.AddCommand(newActivateCommand(opts))
	cmd.AddCommand(newLinkCommand(opts))

	return cmd
}

// send publishes one command and reports where it landed
func send(opts *RootOptions, cmd *cobra.Command, c kafka.Command) error {
	brokers := splitBrokers(opts.Brokers)
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers given")
	}

	requestID := uuid.NewString()
	value, err := kafka.Encode(requestID, c)
	if err != nil {
		return err
	}

	producer, err := opts.newProducer(brokers)
	if err != nil {
		return fmt.Errorf("creating producer: %w", err)
	}
	defer producer.Close()

	partition, offset, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: opts.Topic,
		Key:   sarama.StringEncoder(c.Key()),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("sending %s: %w", c.Type(), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "queued %s request %s (partition %d, offset %d)\n", c.Type(), requestID, partition, offset)
	return nil
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func parseContestID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid contest id %q", s)
	}
	return id, nil
}
