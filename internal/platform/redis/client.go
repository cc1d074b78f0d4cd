package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"ndaflow/internal/platform/config"
)

const (
	connectAttempts = 3
	connectBackoff  = 500 * time.Millisecond
)

// Client is the shared connection used by the idempotency and rate limit stores.
type Client struct {
	*redis.Client
}

// New connects to Redis, retrying the first ping briefly so the service can
// start alongside its cache. It returns nil, nil when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	for attempt := 1; ; attempt++ {
		err = client.Ping(ctx).Err()
		if err == nil {
			return &Client{Client: client}, nil
		}
		if attempt == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * connectBackoff):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("redis ping failed after %d attempts: %w", connectAttempts, err)
}

// Health backs the readiness check.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RegisterPoolMetrics exports connection pool gauges read from the client on scrape.
func (c *Client) RegisterPoolMetrics(reg prometheus.Registerer) error {
	stats := func(pick func(*redis.PoolStats) float64) func() float64 {
		return func() float64 { return pick(c.PoolStats()) }
	}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ndaflow_redis_pool_connections",
			Help: "Open connections in the Redis pool",
		}, stats(func(s *redis.PoolStats) float64 { return float64(s.TotalConns) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ndaflow_redis_pool_idle_connections",
			Help: "Idle connections in the Redis pool",
		}, stats(func(s *redis.PoolStats) float64 { return float64(s.IdleConns) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ndaflow_redis_pool_timeouts_total",
			Help: "Times a caller waited too long for a Redis pool connection",
		}, stats(func(s *redis.PoolStats) float64 { return float64(s.Timeouts) })),
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return fmt.Errorf("register redis pool metrics: %w", err)
		}
	}
	return nil
}
