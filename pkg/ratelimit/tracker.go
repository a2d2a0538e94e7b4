package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for cooldown tracking.
var (
	cooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_rate_limit_cooldown_seconds",
		Help: "Seconds of the most recently recorded TMDB rate-limit cooldown",
	})

	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rate_limit_hits_total",
		Help: "Total number of 429 responses recorded by the tracker",
	})
)

// Tracker records TMDB rate-limit cooldowns. With a Redis client the state is
// shared between processes, otherwise it is held in memory.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu    sync.Mutex
	local CooldownState
	now   func() time.Time
}

// NewTracker creates a new cooldown tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState retrieves the current cooldown state.
// Returns an empty state if nothing has been recorded.
func (t *Tracker) GetState(ctx context.Context) (*CooldownState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	untilMs, err := t.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cooldown until: %w", err)
	}

	hits, err := t.redis.Get(ctx, RedisKeyHits).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get rate limit hits: %w", err)
	}

	lastMs, err := t.redis.Get(ctx, RedisKeyLastUpdate).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &CooldownState{Hits: hits}
	if untilMs > 0 {
		state.Until = time.UnixMilli(untilMs)
	}
	if lastMs > 0 {
		state.LastUpdate = time.UnixMilli(lastMs)
	}
	return state, nil
}

// RecordRateLimit stores a cooldown of wait starting now. An earlier
// cooldown that ends later is kept.
func (t *Tracker) RecordRateLimit(ctx context.Context, wait time.Duration) error {
	now := t.now()
	until := now.Add(wait)

	rateLimitHitsTotal.Inc()
	cooldownSeconds.Set(wait.Seconds())

	if t.redis == nil {
		t.mu.Lock()
		if until.After(t.local.Until) {
			t.local.Until = until
		}
		t.local.Hits++
		t.local.LastUpdate = now
		t.mu.Unlock()
	} else {
		current, err := t.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("get cooldown until: %w", err)
		}

		pipe := t.redis.Pipeline()
		if until.UnixMilli() > current {
			pipe.Set(ctx, RedisKeyCooldownUntil, until.UnixMilli(), 0)
		}
		pipe.Incr(ctx, RedisKeyHits)
		pipe.Set(ctx, RedisKeyLastUpdate, now.UnixMilli(), 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store cooldown state in redis: %w", err)
		}
	}

	t.logger.Warn().
		Dur("wait", wait).
		Time("until", until).
		Msg("TMDB rate limit recorded")

	return nil
}

// CooldownRemaining returns how long callers should hold off before the
// next request.
func (t *Tracker) CooldownRemaining(ctx context.Context) (time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return 0, fmt.Errorf("get cooldown state: %w", err)
	}
	return state.Remaining(t.now()), nil
}
