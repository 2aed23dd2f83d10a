package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, event UploadEvent) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
	logger *log.Logger
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client, logger *log.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger.WithPrefix("Publisher")}
}

// Publish adds an event to the stream using XADD.
// Uses "*" for auto-generated message ID (timestamp-sequence).
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event UploadEvent) (string, error) {
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		p.logger.Error("publish failed", "stream", stream, "type", event.Type, "err", err)
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		p.logger.Error("publish failed", "stream", stream, "type", event.Type, "err", err)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	p.logger.Debug("published", "stream", stream, "type", event.Type, "msgID", messageID,
		"filename", event.Filename, "duration", time.Since(startTime))
	return messageID, nil
}

// PublishUploadStored is a convenience method for publishing upload stored events.
func (p *RedisPublisher) PublishUploadStored(ctx context.Context, filename, localPath, remoteRef string) (string, error) {
	return p.Publish(ctx, StreamUploads, NewUploadStoredEvent(filename, localPath, remoteRef))
}

// NoopPublisher drops every event. Used when Redis is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, UploadEvent) (string, error) {
	return "", nil
}
