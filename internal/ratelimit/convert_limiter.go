package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/talechto/internal/config"
	obsmetrics "github.com/smallbiznis/talechto/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EndpointConvert = "convert"

	keyConvertBucket = "talechto:convert:bucket:%s"
	keyConvertLock   = "talechto:convert:lock:%s"
)

var (
	ErrRateLimited = errors.New("rate_limited")
	ErrBusy        = errors.New("conversion_in_progress")
)

// ConvertLimiter throttles conversion bursts per principal and allows a
// single in-flight conversion each. A nil limiter allows everything.
type ConvertLimiter struct {
	bucket  *TokenBucket
	slots   *SlotStore
	rate    float64
	burst   int
	lockTTL time.Duration
	metrics *obsmetrics.Metrics
	log     *zap.Logger
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

func NewConvertLimiter(p Params) (*ConvertLimiter, error) {
	limitCfg := p.Cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return New(client, limitCfg, p.Log, p.Metrics)
}

func New(client redis.UniversalClient, cfg config.RateLimitConfig, log *zap.Logger, metrics *obsmetrics.Metrics) (*ConvertLimiter, error) {
	if cfg.ConvertRate <= 0 || cfg.ConvertBurst <= 0 {
		return nil, errors.New("convert rate limit must be positive")
	}
	if cfg.ConvertLockSeconds <= 0 {
		return nil, errors.New("convert lock ttl must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ConvertLimiter{
		bucket:  NewTokenBucket(client),
		slots:   NewSlotStore(client),
		rate:    cfg.ConvertRate,
		burst:   cfg.ConvertBurst,
		lockTTL: time.Duration(cfg.ConvertLockSeconds) * time.Second,
		metrics: metrics,
		log:     log.Named("ratelimit.convert"),
	}, nil
}

func (l *ConvertLimiter) Enabled() bool {
	return l != nil
}

// Allow consumes one token for principalID. Redis failures fail open.
func (l *ConvertLimiter) Allow(ctx context.Context, principalID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyConvertBucket, strings.TrimSpace(principalID)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return &Result{Allowed: true}, nil
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, EndpointConvert, "burst")
		return res, ErrRateLimited
	}
	l.metrics.RecordRateLimitAllowed(ctx, EndpointConvert)
	return res, nil
}

// Acquire takes the per-principal conversion lock. The returned release is
// always safe to call.
func (l *ConvertLimiter) Acquire(ctx context.Context, principalID string) (func(), error) {
	noop := func() {}
	if !l.Enabled() {
		return noop, nil
	}
	key := fmt.Sprintf(keyConvertLock, strings.TrimSpace(principalID))
	slot, ok, err := l.slots.Claim(ctx, key, l.lockTTL)
	if err != nil {
		l.log.Warn("conversion lock unavailable, proceeding", zap.Error(err))
		return noop, nil
	}
	if !ok {
		l.metrics.RecordRateLimitDenied(ctx, EndpointConvert, "concurrency")
		return noop, ErrBusy
	}
	return func() {
		// The request context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := l.slots.Free(releaseCtx, slot); err != nil {
			l.log.Warn("failed to release conversion lock", zap.Error(err))
		}
	}, nil
}
