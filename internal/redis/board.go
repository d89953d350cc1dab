package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/domain"
)

// Notifier is told about every change to a surface message
type Notifier interface {
	SurfaceUpdated(msg domain.SurfaceMessage)
	SurfaceDeleted(ref domain.SurfaceRef)
}

// editScript replaces a message's content when it exists, the channel is writable
// and the caller authored it. It returns 1 on success, 0 when the message is gone
// and -1 when the edit is not allowed.
var editScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return -1
end
if redis.call('HGET', KEYS[1], 'author') ~= ARGV[1] then
	return -1
end
redis.call('HSET', KEYS[1], 'content', ARGV[2], 'updated_at', ARGV[3])
return 1
`)

// Board is the Redis-backed leaderboard surface: channels holding rendered messages
type Board struct {
	client      *redis.Client
	publisherID string
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewBoard connects to Redis and creates a leaderboard surface.
// notifier may be nil.
func NewBoard(cfg *config.RedisConfig, lbCfg *config.LeaderboardConfig, notifier Notifier, logger *slog.Logger) (*Board, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewBoardWithClient(client, lbCfg.PublisherID, notifier, logger), nil
}

// NewBoardWithClient creates a leaderboard surface on an existing client
func NewBoardWithClient(client *redis.Client, publisherID string, notifier Notifier, logger *slog.Logger) *Board {
	return &Board{
		client:      client,
		publisherID: publisherID,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Close closes the Redis connection
func (b *Board) Close() error {
	return b.client.Close()
}

// Ping checks Redis connectivity
func (b *Board) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func messageKey(ref domain.SurfaceRef) string {
	return fmt.Sprintf("surface:channel:%s:message:%s", ref.ChannelID, ref.MessageID)
}

func channelKey(channelID string) string {
	return fmt.Sprintf("surface:channel:%s:messages", channelID)
}

func readOnlyKey(channelID string) string {
	return fmt.Sprintf("surface:channel:%s:readonly", channelID)
}

// Post stores a new message on a channel, authored by the publisher
func (b *Board) Post(ctx context.Context, channelID string, content domain.Rendering) (domain.SurfaceRef, error) {
	if channelID == "" {
		return domain.SurfaceRef{}, fmt.Errorf("%w: channel id is required", domain.ErrValidation)
	}
	body, err := json.Marshal(content)
	if err != nil {
		return domain.SurfaceRef{}, fmt.Errorf("marshaling rendering: %w", err)
	}

	readOnly, err := b.client.Exists(ctx, readOnlyKey(channelID)).Result()
	if err != nil {
		return domain.SurfaceRef{}, fmt.Errorf("checking channel: %w", err)
	}
	if readOnly > 0 {
		return domain.SurfaceRef{}, fmt.Errorf("posting to %s: %w", channelID, domain.ErrPublishDenied)
	}

	ref := domain.SurfaceRef{ChannelID: channelID, MessageID: uuid.New().String()}
	now := b.now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, messageKey(ref),
			"author", b.publisherID,
			"content", body,
			"created_at", stamp,
			"updated_at", stamp,
		)
		pipe.ZAdd(ctx, channelKey(channelID), redis.Z{Score: float64(now.UnixNano()), Member: ref.MessageID})
		return nil
	})
	if err != nil {
		return domain.SurfaceRef{}, fmt.Errorf("posting message: %w", err)
	}

	b.notify(ctx, ref)
	return ref, nil
}

// Edit replaces the content of a message the publisher authored
func (b *Board) Edit(ctx context.Context, ref domain.SurfaceRef, content domain.Rendering) error {
	body, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshaling rendering: %w", err)
	}

	stamp := b.now().UTC().Format(time.RFC3339Nano)
	res, err := editScript.Run(ctx, b.client,
		[]string{messageKey(ref), readOnlyKey(ref.ChannelID)},
		b.publisherID, string(body), stamp,
	).Int()
	if err != nil {
		return fmt.Errorf("editing message: %w", err)
	}

	switch res {
	case 0:
		return domain.ErrSurfaceNotFound
	case -1:
		return fmt.Errorf("editing %s/%s: %w", ref.ChannelID, ref.MessageID, domain.ErrPublishDenied)
	}

	b.notify(ctx, ref)
	return nil
}

// Get returns a single message
func (b *Board) Get(ctx context.Context, ref domain.SurfaceRef) (*domain.SurfaceMessage, error) {
	fields, err := b.client.HGetAll(ctx, messageKey(ref)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrSurfaceNotFound
	}
	return decodeMessage(ref, fields)
}

func decodeMessage(ref domain.SurfaceRef, fields map[string]string) (*domain.SurfaceMessage, error) {
	msg := &domain.SurfaceMessage{SurfaceRef: ref, AuthorID: fields["author"]}
	if err := json.Unmarshal([]byte(fields["content"]), &msg.Content); err != nil {
		return nil, fmt.Errorf("decoding message content: %w", err)
	}
	msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	msg.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return msg, nil
}

// List returns a channel's messages, oldest first
func (b *Board) List(ctx context.Context, channelID string) ([]domain.SurfaceMessage, error) {
	ids, err := b.client.ZRange(ctx, channelKey(channelID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	pipe := b.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, messageKey(domain.SurfaceRef{ChannelID: channelID, MessageID: id}))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("reading messages: %w", err)
		}
	}

	messages := make([]domain.SurfaceMessage, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		msg, err := decodeMessage(domain.SurfaceRef{ChannelID: channelID, MessageID: ids[i]}, fields)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

// Delete removes a message from its channel
func (b *Board) Delete(ctx context.Context, ref domain.SurfaceRef) error {
	var removed *redis.IntCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, messageKey(ref))
		pipe.ZRem(ctx, channelKey(ref.ChannelID), ref.MessageID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if removed.Val() == 0 {
		return domain.ErrSurfaceNotFound
	}

	if b.notifier != nil {
		b.notifier.SurfaceDeleted(ref)
	}
	b.logger.Info("leaderboard message deleted", "channel_id", ref.ChannelID, "message_id", ref.MessageID)
	return nil
}

// SetReadOnly revokes or restores the publisher's permission to write on a channel
func (b *Board) SetReadOnly(ctx context.Context, channelID string, readOnly bool) error {
	var err error
	if readOnly {
		err = b.client.Set(ctx, readOnlyKey(channelID), "1", 0).Err()
	} else {
		err = b.client.Del(ctx, readOnlyKey(channelID)).Err()
	}
	if err != nil {
		return fmt.Errorf("setting channel permissions: %w", err)
	}
	b.logger.Info("channel permissions changed", "channel_id", channelID, "read_only", readOnly)
	return nil
}

func (b *Board) notify(ctx context.Context, ref domain.SurfaceRef) {
	if b.notifier == nil {
		return
	}
	msg, err := b.Get(ctx, ref)
	if err != nil {
		b.logger.Warn("failed to read message for broadcast", "channel_id", ref.ChannelID, "error", err)
		return
	}
	b.notifier.SurfaceUpdated(*msg)
}
