package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
)

const latestKey = "analytics:report:latest"

// Options configures the Redis connection used by the cache.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// ReportCache keeps the latest analysis report in Redis as JSON.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

var _ ports.ReportCache = (*ReportCache)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*ReportCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, opts.TTL), nil
}

// NewWithClient wraps an existing client. A zero ttl stores entries without expiry.
func NewWithClient(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

// GetLatest returns the cached latest report, or ErrReportNotFound on a miss.
func (c *ReportCache) GetLatest(ctx context.Context) (*domain.AnalysisReport, error) {
	data, err := c.client.Get(ctx, latestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, apperrors.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var report domain.AnalysisReport
	if err := json.Unmarshal(data, &report); err != nil {
		// A corrupt entry behaves like a miss.
		c.misses.Add(1)
		return nil, apperrors.ErrReportNotFound
	}
	c.hits.Add(1)
	return &report, nil
}

// SetLatest stores report as the latest report.
func (c *ReportCache) SetLatest(ctx context.Context, report *domain.AnalysisReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.client.Set(ctx, latestKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// HitRate returns the fraction of lookups served from the cache.
func (c *ReportCache) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Ping verifies Redis connectivity.
func (c *ReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *ReportCache) Close() error {
	return c.client.Close()
}
