package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config configures the Redis consumer.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Consumer wraps a Redis list popper.
type Consumer struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewConsumer creates a Redis consumer for list-based queues.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Consumer{
		client:       client,
		key:          cfg.Key,
		blockTimeout: cfg.BlockTimeout,
	}, nil
}

// Pop pops one message from the list. It returns nil, nil when the
// block timeout elapses with an empty list.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop event: %w", err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// PopBatch blocks for the first message, then drains up to max-1 more
// without blocking.
func (c *Consumer) PopBatch(ctx context.Context, max int) ([][]byte, error) {
	if max <= 0 {
		max = 1
	}
	first, err := c.Pop(ctx)
	if err != nil || first == nil {
		return nil, err
	}
	out := make([][]byte, 0, max)
	out = append(out, first)
	if max == 1 {
		return out, nil
	}

	rest, err := c.client.LPopCount(ctx, c.key, max-1).Result()
	if errors.Is(err, redis.Nil) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("drain events: %w", err)
	}
	for _, s := range rest {
		out = append(out, []byte(s))
	}
	return out, nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}
