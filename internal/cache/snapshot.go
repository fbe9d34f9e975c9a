package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kalamela/merchant-ledger/internal/config"
	"github.com/kalamela/merchant-ledger/internal/domain"
)

const (
	snapshotKeyPrefix  = "dashboard:snapshot"
	scanBatchSize      = 100
	defaultSnapshotTTL = 5 * time.Minute
)

// SnapshotCache holds the last known DashboardData per merchant. It is
// the offline fallback tier: when the realtime path is degraded, callers
// are served the cached snapshot instead of an error.
type SnapshotCache interface {
	Get(ctx context.Context, merchantID string) (*domain.DashboardData, bool, error)
	Set(ctx context.Context, merchantID string, snapshot *domain.DashboardData) error
	InvalidateAll(ctx context.Context) error
}

type redisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSnapshotCache struct{}

func NewSnapshotCache(cfg config.CacheConfig) (SnapshotCache, error) {
	if !cfg.Enabled {
		return &noopSnapshotCache{}, nil
	}

	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := time.Duration(cfg.SnapshotTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}

	return &redisSnapshotCache{client: client, ttl: ttl}, nil
}

func NewNoopSnapshotCache() SnapshotCache {
	return &noopSnapshotCache{}
}

func snapshotKey(merchantID string) string {
	return snapshotKeyPrefix + ":" + merchantID
}

func (c *redisSnapshotCache) Get(ctx context.Context, merchantID string) (*domain.DashboardData, bool, error) {
	payload, err := c.client.Get(ctx, snapshotKey(merchantID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var snapshot domain.DashboardData
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, false, fmt.Errorf("decode dashboard snapshot cache: %w", err)
	}

	return &snapshot, true, nil
}

func (c *redisSnapshotCache) Set(ctx context.Context, merchantID string, snapshot *domain.DashboardData) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode dashboard snapshot cache: %w", err)
	}

	if err := c.client.Set(ctx, snapshotKey(merchantID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

func (c *redisSnapshotCache) InvalidateAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, snapshotKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("redis scan failed: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis delete failed: %w", err)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

func (n *noopSnapshotCache) Get(ctx context.Context, merchantID string) (*domain.DashboardData, bool, error) {
	return nil, false, nil
}

func (n *noopSnapshotCache) Set(ctx context.Context, merchantID string, snapshot *domain.DashboardData) error {
	return nil
}

func (n *noopSnapshotCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}
