// Package ratelimit provides a Redis-backed fixed-window rate limiter for
// the quote endpoints. When no Redis address is configured the limiter
// allows everything, so a single-node deployment needs no extra moving
// parts.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/dotmac/tariff/internal/config"
	obsmetrics "github.com/dotmac/tariff/internal/observability/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Limiter answers whether a keyed request is within its window budget.
type Limiter interface {
	Allow(ctx context.Context, orgID, endpoint string) (bool, error)
}

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// New wires a Redis limiter when REDIS_ADDR is set, otherwise a pass-through.
func New(lc fx.Lifecycle, p Params) Limiter {
	log := p.Log.Named("ratelimit")
	if p.Cfg.RedisAddr == "" {
		log.Info("rate limiting disabled, no redis address configured")
		return noopLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.Cfg.RedisAddr,
		Password: p.Cfg.RedisPassword,
		DB:       p.Cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	log.Info("rate limiting enabled",
		zap.String("addr", p.Cfg.RedisAddr),
		zap.Int("limit", p.Cfg.RateLimitPerMinute),
	)

	return &redisLimiter{
		client:  client,
		limit:   p.Cfg.RateLimitPerMinute,
		window:  time.Minute,
		log:     log,
		metrics: p.Metrics,
	}
}

type noopLimiter struct{}

func (noopLimiter) Allow(context.Context, string, string) (bool, error) {
	return true, nil
}

type redisLimiter struct {
	client  *redis.Client
	limit   int
	window  time.Duration
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

// Allow counts the request against a per-org, per-endpoint fixed window.
// Redis failures fail open: quoting must not depend on the limiter being up.
func (l *redisLimiter) Allow(ctx context.Context, orgID, endpoint string) (bool, error) {
	bucket := time.Now().UTC().Truncate(l.window).Unix()
	key := fmt.Sprintf("tariff:ratelimit:%s:%s:%d", orgID, endpoint, bucket)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.Error(err))
		return true, nil
	}
	if count == 1 {
		l.client.Expire(ctx, key, l.window)
	}

	if count > int64(l.limit) {
		l.metrics.RecordRateLimitDenied(ctx, orgID, endpoint, "window_exceeded")
		return false, nil
	}
	l.metrics.RecordRateLimitAllowed(ctx, orgID, endpoint)
	return true, nil
}
