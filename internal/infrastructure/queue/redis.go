package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"DealsIngestor/internal/config"
	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/ports"
)

// RedisQueue reads channel posts from one Redis list per channel. Producers
// LPUSH JSON-encoded messages; the ingestor BRPOPs them in arrival order.
type RedisQueue struct {
	client     *redis.Client
	prefix     string
	deadLetter string
	block      time.Duration
	logger     *slog.Logger
}

var _ ports.MessageSource = (*RedisQueue)(nil)

// Connect dials Redis from cfg.URL and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RedisQueue, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opt = &redis.Options{Addr: cfg.URL}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, cfg, logger), nil
}

// New wraps an existing client.
func New(client *redis.Client, cfg config.RedisConfig, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	block := cfg.BlockTimeout
	if block <= 0 {
		block = 5 * time.Second
	}
	return &RedisQueue{
		client:     client,
		prefix:     cfg.KeyPrefix,
		deadLetter: cfg.DeadLetterKey,
		block:      block,
		logger:     logger.With("component", "redis_queue"),
	}
}

// Key is the list holding pending posts of a channel.
func (q *RedisQueue) Key(channelID string) string {
	return q.prefix + channelID
}

// Receive blocks up to the configured timeout for the next post of channelID.
// It returns ports.ErrNoMessage when the wait expires. Undecodable payloads
// are moved to the dead-letter list and reported as ports.ErrMalformedMessage.
func (q *RedisQueue) Receive(ctx context.Context, channelID string) (domain.ChannelMessage, error) {
	res, err := q.client.BRPop(ctx, q.block, q.Key(channelID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ChannelMessage{}, ports.ErrNoMessage
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ChannelMessage{}, ctxErr
		}
		return domain.ChannelMessage{}, fmt.Errorf("pop %s: %w", q.Key(channelID), err)
	}
	raw := res[1]

	msg, err := decode(raw, channelID)
	if err != nil {
		q.logger.Warn("malformed intake payload", "channel", channelID, "error", err)
		if dlErr := q.client.LPush(ctx, q.deadLetter, raw).Err(); dlErr != nil {
			q.logger.Error("dead-letter push failed", "channel", channelID, "error", dlErr)
		}
		return domain.ChannelMessage{}, fmt.Errorf("%w: %v", ports.ErrMalformedMessage, err)
	}
	return msg, nil
}

func decode(raw, channelID string) (domain.ChannelMessage, error) {
	var msg domain.ChannelMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return domain.ChannelMessage{}, err
	}
	if msg.ChannelID == "" {
		msg.ChannelID = channelID
	}
	switch {
	case msg.ChannelID != channelID:
		return domain.ChannelMessage{}, fmt.Errorf("channel %s on the list of %s", msg.ChannelID, channelID)
	case msg.MessageID == 0:
		return domain.ChannelMessage{}, errors.New("missing message id")
	}
	return msg, nil
}

// Publish enqueues a post on its channel list.
func (q *RedisQueue) Publish(ctx context.Context, msg domain.ChannelMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := q.client.LPush(ctx, q.Key(msg.ChannelID), raw).Err(); err != nil {
		return fmt.Errorf("push %s: %w", q.Key(msg.ChannelID), err)
	}
	return nil
}

// Depth returns the number of pending posts of a channel.
func (q *RedisQueue) Depth(ctx context.Context, channelID string) (int64, error) {
	return q.client.LLen(ctx, q.Key(channelID)).Result()
}

// DeadLetters returns the number of payloads parked as malformed.
func (q *RedisQueue) DeadLetters(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadLetter).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
