package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestCacheEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{name: "future", expires: time.Now().Add(time.Hour), want: false},
		{name: "past", expires: time.Now().Add(-time.Hour), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &CacheEntry{Expires: tt.expires}
			if got := e.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_TTL(t *testing.T) {
	e := &CacheEntry{Expires: time.Now().Add(-time.Minute)}
	if got := e.TTL(); got != 0 {
		t.Errorf("TTL() of expired entry = %v, want 0", got)
	}

	e = &CacheEntry{Expires: time.Now().Add(time.Hour)}
	if got := e.TTL(); got <= 59*time.Minute || got > time.Hour {
		t.Errorf("TTL() = %v, want ~1h", got)
	}
}

func TestNewEntry_Lifetime(t *testing.T) {
	tests := []struct {
		name     string
		header   http.Header
		fallback time.Duration
		min, max time.Duration
	}{
		{
			name:     "max-age wins",
			header:   http.Header{"Cache-Control": []string{"public, max-age=600"}},
			fallback: time.Hour,
			min:      599 * time.Second,
			max:      600 * time.Second,
		},
		{
			name: "expires header",
			header: http.Header{
				"Expires": []string{time.Now().Add(2 * time.Hour).UTC().Format(http.TimeFormat)},
			},
			fallback: time.Minute,
			min:      118 * time.Minute,
			max:      2 * time.Hour,
		},
		{
			name:     "fallback without hints",
			header:   http.Header{},
			fallback: 30 * time.Minute,
			min:      29 * time.Minute,
			max:      30 * time.Minute,
		},
		{
			name:     "no-store",
			header:   http.Header{"Cache-Control": []string{"no-store"}},
			fallback: time.Hour,
			min:      0,
			max:      0,
		},
		{
			name:     "capped",
			header:   http.Header{"Cache-Control": []string{"max-age=99999999"}},
			fallback: time.Hour,
			min:      MaxTTL - time.Second,
			max:      MaxTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntry([]byte(`{}`), tt.header, tt.fallback)
			got := e.TTL()
			if got < tt.min || got > tt.max {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.min, tt.max)
			}
		})
	}
}
