package baseline

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"remsim/internal/simulation"
)

// CacheConfig holds the Redis snapshot cache settings.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	TTL          time.Duration `yaml:"ttl"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
}

// DefaultCacheConfig returns the default cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		TTL:          5 * time.Minute,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// SnapshotCache keeps recent baseline snapshots in Redis, keyed by tenant
// and window, so repeated what-if runs against the same window skip the
// aggregate scan. It is an optimization only: every failure degrades to a
// cache miss and a direct source read.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSnapshotCache connects to Redis and verifies the connection.
func NewSnapshotCache(cfg CacheConfig, logger *slog.Logger) (*SnapshotCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &SnapshotCache{client: client, ttl: ttl, logger: logger}, nil
}

// Close releases the Redis connection.
func (c *SnapshotCache) Close() error {
	return c.client.Close()
}

// Get returns a cached snapshot if one exists for the tenant and window.
func (c *SnapshotCache) Get(ctx context.Context, tenantID string, windowDays int) (simulation.BaselineMetrics, bool) {
	var metrics simulation.BaselineMetrics

	data, err := c.client.Get(ctx, snapshotKey(tenantID, windowDays)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("baseline cache read failed", "error", err)
		}
		return metrics, false
	}

	if err := json.Unmarshal(data, &metrics); err != nil {
		c.logger.Debug("baseline cache entry corrupt, ignoring", "error", err)
		return metrics, false
	}

	return metrics, true
}

// Put stores a snapshot with the configured TTL.
func (c *SnapshotCache) Put(ctx context.Context, tenantID string, windowDays int, metrics simulation.BaselineMetrics) {
	data, err := json.Marshal(metrics)
	if err != nil {
		c.logger.Debug("baseline cache encode failed", "error", err)
		return
	}

	if err := c.client.Set(ctx, snapshotKey(tenantID, windowDays), data, c.ttl).Err(); err != nil {
		c.logger.Debug("baseline cache write failed", "error", err)
	}
}

func snapshotKey(tenantID string, windowDays int) string {
	return fmt.Sprintf("remsim:baseline:%s:%d", tenantID, windowDays)
}
