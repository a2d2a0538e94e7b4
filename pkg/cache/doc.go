// Package cache provides a Redis-backed cache for TMDB detail responses.
//
// Paged discovery and list responses are never cached: they are the data the
// sync walks to find new titles. Per-id detail lookups (for example
// /network/{id}) are stable for hours and are looked up again on every cycle,
// so the fetch client stores them here when a Manager is configured.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, cache.DefaultTTL)
//
//	key := cache.ItemKey("/network/213", map[string]string{"language": "en-US"})
//
//	item, err := manager.GetItem(ctx, key)
//	if err != nil {
//		// fetch from TMDB, then:
//		_ = manager.SetItem(ctx, key, body, resp.Header)
//	}
//
// # Lifetime
//
// An entry lives for the response's Cache-Control max-age, else until its
// Expires header, else for the manager's fallback TTL, capped at MaxTTL.
// no-store and no-cache responses are not stored.
//
// # Metrics
//
//   - catalog_cache_hits_total{kind}
//   - catalog_cache_misses_total{kind}
//   - catalog_cache_size_bytes{kind}
//   - catalog_cache_errors_total{operation}
package cache
