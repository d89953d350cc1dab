package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"

	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/domain"
	"github.com/contest-leaderboard/internal/metrics"
)

// Consumer applies contest commands read from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	engine        Engine
	metrics       *metrics.Metrics
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewConsumer creates a new Kafka command consumer
func NewConsumer(cfg *config.KafkaConfig, engine Engine, m *metrics.Metrics, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}
	return newConsumer(cfg, consumerGroup, engine, m, logger), nil
}

func newConsumer(cfg *config.KafkaConfig, group sarama.ConsumerGroup, engine Engine, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:        cfg,
		engine:        engine,
		metrics:       m,
		logger:        logger,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins consuming commands and waits until the first group session is set up.
// It returns ctx's error when no session is set up before ctx is done; the consume
// loop keeps retrying in the background until Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	ready := make(chan struct{})
	var once sync.Once

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    func() { once.Do(func() { close(ready) }) },
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
				select {
				case <-c.ctx.Done():
				case <-time.After(c.retryDelay()):
				}
			}

			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	select {
	case <-ready:
		c.logger.Info("Kafka consumer ready")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for consumer group session: %w", ctx.Err())
	}
}

func (c *Consumer) retryDelay() time.Duration {
	if c.config.RetryDelay > 0 {
		return c.config.RetryDelay
	}
	return time.Second
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// Handle decodes and applies one command message.
// Commands that fail on an unavailable judge are retried with backoff; rejected
// commands are logged and never redelivered.
func (c *Consumer) Handle(ctx context.Context, value []byte) {
	requestID, cmd, err := Decode(value)
	if err != nil {
		c.metrics.Commands.WithLabelValues("unknown", metrics.CommandMalformed).Inc()
		c.logger.Warn("dropping malformed command", "request_id", requestID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()

	var result any
	operation := func() error {
		var err error
		result, err = Dispatch(ctx, c.engine, cmd)
		if err != nil && !errors.Is(err, domain.ErrExternalUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("command failed, retrying",
			"request_id", requestID,
			"type", cmd.Type(),
			"wait", wait,
			"error", err,
		)
	}
	err = backoff.RetryNotify(operation, c.retryPolicy(ctx), notify)

	switch {
	case err == nil:
		c.metrics.Commands.WithLabelValues(string(cmd.Type()), metrics.CommandApplied).Inc()
		c.logger.Info("command applied",
			"request_id", requestID,
			"type", cmd.Type(),
			"result", result,
		)
	case isRejection(err):
		c.metrics.Commands.WithLabelValues(string(cmd.Type()), metrics.CommandRejected).Inc()
		c.logger.Warn("command rejected",
			"request_id", requestID,
			"type", cmd.Type(),
			"error", err,
		)
	default:
		c.metrics.Commands.WithLabelValues(string(cmd.Type()), metrics.CommandFailed).Inc()
		c.logger.Error("command failed",
			"request_id", requestID,
			"type", cmd.Type(),
			"error", err,
		)
	}
}

func (c *Consumer) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.config.RetryDelay > 0 {
		b.InitialInterval = c.config.RetryDelay
	}
	b.MaxElapsedTime = 0
	retries := c.config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func isRejection(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrInvalidState,
		domain.ErrValidation,
		domain.ErrInsufficientProblems,
		domain.ErrAlreadyJoined,
		domain.ErrInvalidRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	// ready signals Start; it is safe to call on every session
	ready func()
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.ready()
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim applies commands of one partition in offset order
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consumer.logger.Debug("command received",
				"offset", message.Offset,
				"partition", message.Partition,
			)
			h.consumer.Handle(session.Context(), message.Value)
			session.MarkMessage(message, "")
		}
	}
}
