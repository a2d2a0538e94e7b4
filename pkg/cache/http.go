package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when the response carries no caching hints.
	DefaultTTL = 24 * time.Hour

	// MaxTTL caps whatever TMDB advertises.
	MaxTTL = 7 * 24 * time.Hour
)

// NewEntry builds a cache entry for body. The lifetime comes from
// Cache-Control max-age, then Expires, then fallback.
func NewEntry(body []byte, header http.Header, fallback time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:     body,
		ETag:     header.Get("ETag"),
		Expires:  now.Add(lifetime(header, now, fallback)),
		CachedAt: now,
	}
}

// lifetime derives how long a response may be cached.
func lifetime(header http.Header, now time.Time, fallback time.Duration) time.Duration {
	if fallback <= 0 {
		fallback = DefaultTTL
	}

	if cc := header.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.TrimSpace(strings.ToLower(directive))
			switch {
			case directive == "no-store" || directive == "no-cache":
				return 0
			case strings.HasPrefix(directive, "max-age="):
				secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
				if err == nil && secs >= 0 {
					return capTTL(time.Duration(secs) * time.Second)
				}
			}
		}
	}

	if expiresStr := header.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil {
			if expires.Before(now) {
				return 0
			}
			return capTTL(expires.Sub(now))
		}
	}

	return capTTL(fallback)
}

func capTTL(ttl time.Duration) time.Duration {
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}
