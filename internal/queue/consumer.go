package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Message represents a message read from a Redis stream.
type Message struct {
	ID    string      // Redis message ID (e.g., "1702000000000-0")
	Event UploadEvent // Parsed event data
}

// Consumer defines the interface for consuming events from a stream.
type Consumer interface {
	// EnsureGroup creates the consumer group if it doesn't exist.
	// Should be called at worker startup.
	EnsureGroup(ctx context.Context, stream, group string) error

	// Read reads new messages for this consumer with XREADGROUP.
	// block: how long to wait for new messages (0 = forever)
	Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error)

	// ReadPending returns messages delivered to this consumer but never acknowledged.
	ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]Message, error)

	// Ack removes messages from the consumer's pending list.
	Ack(ctx context.Context, stream, group string, messageIDs ...string) error

	// Pending returns the number of unacknowledged messages for the group.
	Pending(ctx context.Context, stream, group string) (int64, error)
}

// RedisConsumer implements Consumer using Redis Streams.
type RedisConsumer struct {
	client *redis.Client
	logger *log.Logger
}

// NewConsumer creates a new Consumer backed by Redis Streams.
func NewConsumer(client *redis.Client, logger *log.Logger) *RedisConsumer {
	return &RedisConsumer{client: client, logger: logger.WithPrefix("Consumer")}
}

// EnsureGroup creates the group with MKSTREAM, starting from the beginning of the stream.
func (c *RedisConsumer) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil {
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			c.logger.Debug("group exists", "stream", stream, "group", group)
			return nil
		}
		c.logger.Error("ensure group failed", "stream", stream, "group", group, "err", err)
		return fmt.Errorf("create consumer group: %w", err)
	}

	c.logger.Info("group created", "stream", stream, "group", group)
	return nil
}

// Read reads undelivered messages (">") from the stream.
func (c *RedisConsumer) Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	return c.read(ctx, stream, group, consumer, ">", count, block)
}

// ReadPending reads messages that were delivered but not yet acknowledged ("0").
// Useful for recovering messages that were in flight when a worker crashed.
func (c *RedisConsumer) ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]Message, error) {
	return c.read(ctx, stream, group, consumer, "0", count, -1)
}

func (c *RedisConsumer) read(ctx context.Context, stream, group, consumer, id string, count int64, block time.Duration) ([]Message, error) {
	startTime := time.Now()

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, id},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var messages []Message
	for _, s := range streams {
		for _, msg := range s.Messages {
			event, err := ParseUploadEvent(msg.Values)
			if err != nil {
				// Malformed entries are acked so they don't sit in the PEL forever.
				c.logger.Warn("dropping malformed message", "msgID", msg.ID, "err", err)
				_ = c.client.XAck(ctx, stream, group, msg.ID).Err()
				continue
			}
			messages = append(messages, Message{ID: msg.ID, Event: event})
		}
	}

	c.logger.Debug("read", "stream", stream, "consumer", consumer, "id", id,
		"count", len(messages), "duration", time.Since(startTime))
	return messages, nil
}

// Ack acknowledges messages using XACK.
func (c *RedisConsumer) Ack(ctx context.Context, stream, group string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	acked, err := c.client.XAck(ctx, stream, group, messageIDs...).Result()
	if err != nil {
		c.logger.Error("ack failed", "stream", stream, "group", group, "ids", messageIDs, "err", err)
		return fmt.Errorf("xack: %w", err)
	}

	c.logger.Debug("acked", "stream", stream, "group", group, "acked", acked)
	return nil
}

// Pending returns the count of pending messages for the consumer group.
func (c *RedisConsumer) Pending(ctx context.Context, stream, group string) (int64, error) {
	info, err := c.client.XPending(ctx, stream, group).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}
	return info.Count, nil
}
