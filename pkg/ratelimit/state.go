// Package ratelimit paces outbound TMDB requests and tracks the cooldown
// announced by 429 responses. The cooldown can be shared across processes
// through Redis so that concurrent syncs back off together.
package ratelimit

import (
	"time"
)

// Redis keys for cooldown state storage.
const (
	RedisKeyCooldownUntil = "tmdb:rate_limit:cooldown_until"
	RedisKeyHits          = "tmdb:rate_limit:hits"
	RedisKeyLastUpdate    = "tmdb:rate_limit:last_update"
)

// CooldownState represents the current TMDB rate-limit cooldown.
type CooldownState struct {
	// Until is when requests may resume. Zero when no 429 has been seen.
	Until time.Time `json:"until"`

	// Hits counts the 429 responses recorded.
	Hits int64 `json:"hits"`

	// LastUpdate is when the state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// Active reports whether the cooldown is still running at now.
func (s *CooldownState) Active(now time.Time) bool {
	return now.Before(s.Until)
}

// Remaining returns how long until the cooldown ends, or 0.
func (s *CooldownState) Remaining(now time.Time) time.Duration {
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state is older than maxAge.
func (s *CooldownState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
