package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	redis "github.com/redis/go-redis/v9"

	"threatchain/internal/analyzer"
)

// ErrNotFound is returned when a run is unknown or expired.
var ErrNotFound = errors.New("analysis result not found")

// RedisConfig configures Redis access for stored analysis results.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
	CacheSize int
}

// RunInfo identifies one stored run in the recent index.
type RunInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore keeps analysis results as JSON blobs with a recent-runs index.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	cache  *lru.Cache[string, *analyzer.Result]
}

// NewRedisStore constructs a Redis-backed result store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "threatchain:results"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis result store: %w", err)
	}

	cache, err := lru.New[string, *analyzer.Result](cfg.CacheSize)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: strings.TrimSpace(cfg.KeyPrefix),
		ttl:    cfg.TTL,
		cache:  cache,
	}, nil
}

// Save stores res and returns its run ID. A run without an ID gets a
// fresh UUID; a zero CreatedAt is set to now.
func (s *RedisStore) Save(ctx context.Context, res *analyzer.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("save result: nil result")
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}

	cutoff := time.Now().Add(-s.ttl).UnixNano()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(res.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.recentKey(), redis.Z{Score: float64(res.CreatedAt.UnixNano()), Member: res.ID})
	pipe.ZRemRangeByScore(ctx, s.recentKey(), "-inf", "("+strconv.FormatInt(cutoff, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store result %s: %w", res.ID, err)
	}

	s.cache.Add(res.ID, res)
	return res.ID, nil
}

// Get loads a run, serving repeated reads from the in-process cache.
func (s *RedisStore) Get(ctx context.Context, id string) (*analyzer.Result, error) {
	if res, ok := s.cache.Get(id); ok {
		return res, nil
	}

	data, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read result %s: %w", id, err)
	}

	var res analyzer.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	s.cache.Add(id, &res)
	return &res, nil
}

// Recent lists up to limit runs, newest first.
func (s *RedisStore) Recent(ctx context.Context, limit int64) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.recentKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent runs: %w", err)
	}

	out := make([]RunInfo, 0, len(members))
	for _, z := range members {
		id, ok := z.Member.(string)
		if !ok || id == "" {
			continue
		}
		out = append(out, RunInfo{ID: id, CreatedAt: time.Unix(0, int64(z.Score)).UTC()})
	}
	return out, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) runKey(id string) string {
	return s.prefix + ":run:" + id
}

func (s *RedisStore) recentKey() string {
	return s.prefix + ":recent"
}
