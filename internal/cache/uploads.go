package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// UploadIndexKey is the sorted set of stored object refs scored by store time (unix ms).
const UploadIndexKey = "uploads:index"

// UploadIndex tracks stored objects so the retention sweeper can find old ones.
type UploadIndex interface {
	// Add records ref as stored at storedAt. Re-adding keeps the newest score.
	Add(ctx context.Context, ref string, storedAt time.Time) error

	// Remove drops refs from the index.
	Remove(ctx context.Context, refs ...string) error

	// Expired returns up to limit refs stored before cutoff, oldest first.
	Expired(ctx context.Context, cutoff time.Time, limit int64) ([]string, error)

	// Size returns the number of indexed refs.
	Size(ctx context.Context) (int64, error)
}

// RedisUploadIndex implements UploadIndex using a Redis sorted set.
type RedisUploadIndex struct {
	client *redis.Client
	logger *log.Logger
}

// NewUploadIndex creates a new UploadIndex backed by Redis.
func NewUploadIndex(client *redis.Client, logger *log.Logger) *RedisUploadIndex {
	return &RedisUploadIndex{client: client, logger: logger.WithPrefix("UploadIndex")}
}

func (c *RedisUploadIndex) Add(ctx context.Context, ref string, storedAt time.Time) error {
	err := c.client.ZAddGT(ctx, UploadIndexKey, redis.Z{
		Score:  float64(storedAt.UnixMilli()),
		Member: ref,
	}).Err()
	if err != nil {
		c.logger.Error("add failed", "ref", ref, "err", err)
		return fmt.Errorf("add upload to index: %w", err)
	}
	c.logger.Debug("added", "ref", ref, "storedAt", storedAt.UnixMilli())
	return nil
}

func (c *RedisUploadIndex) Remove(ctx context.Context, refs ...string) error {
	if len(refs) == 0 {
		return nil
	}
	members := make([]interface{}, len(refs))
	for i, r := range refs {
		members[i] = r
	}

	removed, err := c.client.ZRem(ctx, UploadIndexKey, members...).Result()
	if err != nil {
		c.logger.Error("remove failed", "refs", refs, "err", err)
		return fmt.Errorf("remove upload from index: %w", err)
	}
	c.logger.Debug("removed", "count", removed)
	return nil
}

func (c *RedisUploadIndex) Expired(ctx context.Context, cutoff time.Time, limit int64) ([]string, error) {
	refs, err := c.client.ZRangeByScore(ctx, UploadIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query expired uploads: %w", err)
	}
	return refs, nil
}

func (c *RedisUploadIndex) Size(ctx context.Context) (int64, error) {
	n, err := c.client.ZCard(ctx, UploadIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard upload index: %w", err)
	}
	return n, nil
}
