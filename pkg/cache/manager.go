package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/catalog"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the item is not cached or its entry went stale.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager caches TMDB detail objects such as networks in Redis. Entries keep
// the response body with its expiry; callers only ever see catalog.Item.
type Manager struct {
	redis    *redis.Client
	fallback time.Duration
}

// NewManager creates a detail cache on redisClient. fallback is the lifetime
// of responses without caching headers; non-positive means DefaultTTL.
func NewManager(redisClient *redis.Client, fallback time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if fallback <= 0 {
		fallback = DefaultTTL
	}
	return &Manager{
		redis:    redisClient,
		fallback: fallback,
	}
}

// FallbackTTL returns the lifetime used when a response has no caching hints.
func (m *Manager) FallbackTTL() time.Duration {
	return m.fallback
}

// GetItem returns the cached object for key. A missing or stale entry is
// ErrCacheMiss. An entry whose body no longer decodes is removed and
// reported as ErrInvalidEntry so the caller refetches it.
func (m *Manager) GetItem(ctx context.Context, key CacheKey) (catalog.Item, error) {
	var item catalog.Item

	entry, err := m.load(ctx, key)
	if err != nil {
		return item, err
	}

	if err := json.Unmarshal(entry.Data, &item); err != nil || item.ID == 0 {
		_ = m.Invalidate(ctx, key)
		CacheErrors.WithLabelValues("decode").Inc()
		if err == nil {
			err = errors.New("missing id")
		}
		return catalog.Item{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(key.Kind()).Inc()
	return item, nil
}

// SetItem stores the body of a detail response under key. The lifetime comes
// from the response headers (see NewEntry) and falls back to FallbackTTL.
// Responses that must not be stored are skipped without error.
func (m *Manager) SetItem(ctx context.Context, key CacheKey, body []byte, header http.Header) error {
	if !json.Valid(body) {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("%w: body is not JSON", ErrInvalidEntry)
	}

	entry := NewEntry(body, header, m.fallback)
	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues(key.Kind()).Add(float64(len(data)))
	return nil
}

// Invalidate removes the entry for key.
func (m *Manager) Invalidate(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (m *Manager) load(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(key.Kind()).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = m.Invalidate(ctx, key)
		CacheErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry is second-granular; the entry's own deadline is exact.
	if entry.IsExpired() {
		_ = m.Invalidate(ctx, key)
		CacheMisses.WithLabelValues(key.Kind()).Inc()
		return nil, ErrCacheMiss
	}
	return &entry, nil
}
