package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cinebyhub/catalog-sync/internal/testutil"
	"github.com/cinebyhub/catalog-sync/pkg/cache"
	"github.com/cinebyhub/catalog-sync/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// recordingSleeper captures requested waits instead of sleeping.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func newTestClient(t *testing.T, mock *testutil.MockTMDB, mutate func(*Config)) (*Client, *recordingSleeper) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.ReadToken = "test-token"
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sleeper := &recordingSleeper{}
	c.SetSleeper(sleeper.Sleep)
	return c, sleeper
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "read token",
			mutate: func(c *Config) { c.ReadToken = "tok" },
		},
		{
			name:   "api key",
			mutate: func(c *Config) { c.APIKey = "key" },
		},
		{
			name:        "no credentials",
			mutate:      func(c *Config) {},
			expectError: true,
			errorMsg:    "read token or an api key",
		},
		{
			name: "zero attempts",
			mutate: func(c *Config) {
				c.APIKey = "key"
				c.Retry.MaxAttempts = 0
			},
			expectError: true,
			errorMsg:    "max attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			if tt.expectError {
				if err == nil {
					t.Fatal("New() error = nil, want error")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("New() error = %q, want containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("New() error = %v", err)
			}
		})
	}
}

func TestClient_Get_BearerAuth(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetResponse("/movie/popular", testutil.NewJSONResponse(`{"results":[],"total_pages":1}`))

	c, _ := newTestClient(t, mock, nil)

	body, err := c.Get(context.Background(), "/movie/popular", map[string]string{"language": "en-US"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !strings.Contains(string(body), "total_pages") {
		t.Errorf("Get() body = %s", body)
	}

	if got := mock.LastRequestHeader().Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer test-token")
	}
	q := mock.Requests()[0].Query()
	if q.Get("api_key") != "" {
		t.Errorf("api_key sent alongside bearer token")
	}
	if q.Get("language") != "en-US" {
		t.Errorf("language = %q, want en-US", q.Get("language"))
	}
}

func TestClient_Get_APIKeyParam(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetResponse("/movie/popular", testutil.NewJSONResponse(`{}`))

	c, _ := newTestClient(t, mock, func(cfg *Config) {
		cfg.ReadToken = ""
		cfg.APIKey = "abc123"
	})

	if _, err := c.Get(context.Background(), "movie/popular", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got := mock.Requests()[0].Query().Get("api_key"); got != "abc123" {
		t.Errorf("api_key = %q, want abc123", got)
	}
	if got := mock.LastRequestHeader().Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want empty", got)
	}
}

func TestClient_RetryCeiling(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetResponse("/discover/movie", testutil.NewServerErrorResponse())

	c, sleeper := newTestClient(t, mock, nil)

	_, err := c.Get(context.Background(), "/discover/movie", nil)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("Get() error = %v, want ErrFetchFailed", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Get() error does not carry the 500 APIError: %v", err)
	}

	if got := mock.PathCount("/discover/movie"); got != 3 {
		t.Errorf("requests = %d, want exactly 3", got)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if got := sleeper.Waits(); !equalDurations(got, want) {
		t.Errorf("backoff waits = %v, want %v", got, want)
	}
}

func TestClient_RecoversAfterTransientFailure(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetSequence("/tv/popular",
		testutil.NewServerErrorResponse(),
		testutil.NewJSONResponse(`{"page":1,"results":[{"id":7}],"total_pages":1}`),
	)

	c, sleeper := newTestClient(t, mock, nil)

	page, err := c.FetchPage(context.Background(), "/tv/popular", nil, 1)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].ID != 7 {
		t.Errorf("FetchPage() results = %+v", page.Results)
	}
	if got := mock.PathCount("/tv/popular"); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if got := sleeper.Waits(); !equalDurations(got, []time.Duration{time.Second}) {
		t.Errorf("waits = %v, want [1s]", got)
	}
}

func TestClient_RateLimitDoesNotConsumeAttempts(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetSequence("/trending/movie/day",
		testutil.NewRateLimitResponse("2"),
		testutil.NewRateLimitResponse(""),
		testutil.NewServerErrorResponse(),
		testutil.NewRateLimitResponse("garbage"),
		testutil.NewServerErrorResponse(),
		testutil.NewJSONResponse(`{"page":1,"results":[],"total_pages":1}`),
	)

	c, sleeper := newTestClient(t, mock, nil)

	if _, err := c.Get(context.Background(), "/trending/movie/day", nil); err != nil {
		t.Fatalf("Get() error = %v, want success on third counted attempt", err)
	}

	if got := mock.PathCount("/trending/movie/day"); got != 6 {
		t.Errorf("requests = %d, want 6", got)
	}

	want := []time.Duration{2 * time.Second, 5 * time.Second, 1 * time.Second, 5 * time.Second, 2 * time.Second}
	if got := sleeper.Waits(); !equalDurations(got, want) {
		t.Errorf("waits = %v, want %v", got, want)
	}
}

func TestClient_ClientErrorsRetried(t *testing.T) {
	tests := []struct {
		name string
		resp testutil.MockResponse
		code int
	}{
		{name: "not found", resp: testutil.NewNotFoundResponse(), code: http.StatusNotFound},
		{name: "unauthorized", resp: testutil.NewUnauthorizedResponse(), code: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockTMDB()
			defer mock.Close()
			mock.SetResponse("/movie/popular", tt.resp)

			c, sleeper := newTestClient(t, mock, nil)

			_, err := c.Get(context.Background(), "/movie/popular", nil)
			if !errors.Is(err, ErrFetchFailed) {
				t.Fatalf("Get() error = %v, want ErrFetchFailed", err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.ErrorClass != ErrorClassClient || apiErr.StatusCode != tt.code {
				t.Errorf("Get() error = %v, want client error with status %d", err, tt.code)
			}
			if got := mock.PathCount("/movie/popular"); got != 3 {
				t.Errorf("requests = %d, want 3", got)
			}
			want := []time.Duration{1 * time.Second, 2 * time.Second}
			if got := sleeper.Waits(); !equalDurations(got, want) {
				t.Errorf("waits = %v, want %v", got, want)
			}
		})
	}
}

func TestClient_NotFoundThenSuccess(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetSequence("/network/49",
		testutil.NewNotFoundResponse(),
		testutil.NewJSONResponse(`{"id":49,"name":"HBO"}`),
	)

	c, _ := newTestClient(t, mock, nil)

	item, err := c.GetItem(context.Background(), "/network/49", nil)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if item.Name != "HBO" {
		t.Errorf("GetItem() = %+v", item)
	}
	if got := mock.PathCount("/network/49"); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestClient_InvalidJSONIsDecodeFailure(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetResponse("/movie/popular", testutil.MockResponse{StatusCode: http.StatusOK, Body: "<html>oops</html>"})

	c, _ := newTestClient(t, mock, nil)

	_, err := c.Get(context.Background(), "/movie/popular", nil)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("Get() error = %v, want ErrFetchFailed", err)
	}
	if classOf(err) != ErrorClassDecode {
		t.Errorf("error class = %q, want decode", classOf(err))
	}
	if got := mock.PathCount("/movie/popular"); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestClient_FetchPage_BadShapeRetried(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetSequence("/discover/tv",
		testutil.NewJSONResponse(`{"page":1,"results":"unavailable"}`),
		testutil.NewJSONResponse(`{"page":1,"results":[{"id":3}],"total_pages":1}`),
	)

	c, sleeper := newTestClient(t, mock, nil)

	page, err := c.FetchPage(context.Background(), "/discover/tv", nil, 1)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].ID != 3 {
		t.Errorf("FetchPage() results = %+v", page.Results)
	}
	if got := sleeper.Waits(); !equalDurations(got, []time.Duration{time.Second}) {
		t.Errorf("waits = %v, want [1s]", got)
	}
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetResponse("/movie/popular", testutil.NewServerErrorResponse())

	c, _ := newTestClient(t, mock, nil)
	c.SetSleeper(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	})

	_, err := c.Get(context.Background(), "/movie/popular", nil)
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("Get() error = %v, want ErrContextCancelled", err)
	}
	if errors.Is(err, ErrFetchFailed) {
		t.Errorf("cancellation reported as fetch failure")
	}
	if got := mock.PathCount("/movie/popular"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClient_FetchPage_SetsPageParam(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetPages("/discover/tv", [][]int64{{1, 2}, {3, 4}, {5}})

	c, _ := newTestClient(t, mock, nil)

	params := map[string]string{"sort_by": "popularity.desc"}
	page, err := c.FetchPage(context.Background(), "/discover/tv", params, 2)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}
	if len(page.Results) != 2 || page.Results[0].ID != 3 {
		t.Errorf("Results = %+v, want ids 3,4", page.Results)
	}
	if _, ok := params["page"]; ok {
		t.Errorf("FetchPage mutated the caller's params")
	}
	if got := mock.Requests()[0].Query().Get("sort_by"); got != "popularity.desc" {
		t.Errorf("sort_by = %q", got)
	}
}

func TestClient_TrackerRecordsRateLimit(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetSequence("/movie/popular",
		testutil.NewRateLimitResponse("3"),
		testutil.NewJSONResponse(`{}`),
	)

	tracker := ratelimit.NewTracker(nil, zerolog.New(io.Discard))
	c, _ := newTestClient(t, mock, func(cfg *Config) { cfg.Tracker = tracker })

	if _, err := c.Get(context.Background(), "/movie/popular", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Hits != 1 {
		t.Errorf("Hits = %d, want 1", state.Hits)
	}
}

// setupTestRedis connects to a local Redis on DB 15 or skips the test.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestClient_GetItem_Cached(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetResponse("/network/213", testutil.NewJSONResponse(
		`{"id":213,"name":"Netflix","origin_country":"US","headquarters":"Los Gatos, California"}`))

	c, _ := newTestClient(t, mock, func(cfg *Config) {
		cfg.Cache = cache.NewManager(redisClient, time.Hour)
	})

	for i := 0; i < 3; i++ {
		item, err := c.GetItem(context.Background(), "/network/213", nil)
		if err != nil {
			t.Fatalf("GetItem() error = %v", err)
		}
		if item.Name != "Netflix" || len(item.OriginCountry) != 1 || item.OriginCountry[0] != "US" {
			t.Errorf("GetItem() = %+v", item)
		}
	}

	if got := mock.PathCount("/network/213"); got != 1 {
		t.Errorf("requests = %d, want 1 (later lookups served from cache)", got)
	}
}

func TestClient_GetItem_NoCache(t *testing.T) {
	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetResponse("/network/49", testutil.NewJSONResponse(`{"id":49,"name":"HBO"}`))

	c, _ := newTestClient(t, mock, nil)

	for i := 0; i < 2; i++ {
		if _, err := c.GetItem(context.Background(), "/network/49", nil); err != nil {
			t.Fatalf("GetItem() error = %v", err)
		}
	}
	if got := mock.PathCount("/network/49"); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/network/213", "/network/{id}"},
		{"network/213/", "/network/{id}"},
		{"/discover/movie", "/discover/movie"},
		{"/trending/tv/week", "/trending/tv/week"},
		{"/tv/1399/season/1", "/tv/{id}/season/{id}"},
	}

	for _, tt := range tests {
		if got := EndpointLabel(tt.in); got != tt.want {
			t.Errorf("EndpointLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "seconds", value: "7", want: 7 * time.Second},
		{name: "fractional", value: "1.5", want: 1500 * time.Millisecond},
		{name: "empty", value: "", want: 0},
		{name: "garbage", value: "soon", want: 0},
		{name: "negative", value: "-3", want: 0},
		{name: "http date", value: now.Add(10 * time.Second).Format(http.TimeFormat), want: 10 * time.Second},
		{name: "past date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "nan", value: "NaN", want: 0},
		{name: "infinity", value: "Inf", want: 0},
		{name: "overflowing seconds", value: "1e30", want: MaxRetryAfter},
		{name: "capped seconds", value: "7200", want: MaxRetryAfter},
		{name: "far date", value: now.Add(48 * time.Hour).Format(http.TimeFormat), want: MaxRetryAfter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryAfter(tt.value, now); got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
