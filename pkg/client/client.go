// Package client provides the TMDB HTTP client with 429 handling, bounded
// retries, and optional detail-response caching.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/cache"
	"github.com/cinebyhub/catalog-sync/pkg/catalog"
	"github.com/cinebyhub/catalog-sync/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the TMDB v3 API root.
	DefaultBaseURL = "https://api.themoviedb.org/3"

	// MaxRetryAfter caps any server-requested 429 wait.
	MaxRetryAfter = time.Hour
)

// Prometheus metrics for TMDB client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total TMDB requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "TMDB request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_request_errors_total",
		Help: "Total TMDB request errors by class",
	}, []string{"class"})
)

// Page is one page of a paged TMDB list or discover response.
type Page struct {
	Page         int            `json:"page"`
	Results      []catalog.Item `json:"results"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without trailing slash.
	BaseURL string

	// ReadToken is the v4 read access token. Preferred over APIKey.
	ReadToken string

	// APIKey is the v3 key, sent as the api_key query parameter.
	APIKey string

	// UserAgent header value.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry policy for transient failures and 429s.
	Retry RetryConfig

	// Cache stores detail lookups. Optional.
	Cache *cache.Manager

	// Tracker records 429 cooldowns. Optional.
	Tracker *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: "catalog-sync/1.0",
		Timeout:   15 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client is the TMDB fetch client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	sleep      Sleeper
}

// New creates a new TMDB client.
func New(cfg Config) (*Client, error) {
	if cfg.ReadToken == "" && cfg.APIKey == "" {
		return nil, fmt.Errorf("either a read token or an api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     log.With().Str("component", "tmdb-client").Logger(),
		sleep:      SleepContext,
	}, nil
}

// Get performs a GET against endpoint and returns the raw JSON body.
// Failures are reported as errors wrapping ErrFetchFailed or
// ErrContextCancelled.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	body, _, err := c.get(ctx, endpoint, params, nil)
	return body, err
}

// FetchPage requests one page of a paged endpoint. A body that is not a
// page counts as a failed attempt and is retried.
func (c *Client) FetchPage(ctx context.Context, endpoint string, params map[string]string, page int) (*Page, error) {
	merged := make(map[string]string, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged["page"] = strconv.Itoa(page)

	var p Page
	_, _, err := c.get(ctx, endpoint, merged, func(body []byte) error {
		p = Page{}
		return json.Unmarshal(body, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetItem fetches a single object such as /network/{id}. Responses are
// served from and stored in the cache when one is configured.
func (c *Client) GetItem(ctx context.Context, endpoint string, params map[string]string) (catalog.Item, error) {
	key := cache.ItemKey(endpoint, params)
	if c.config.Cache != nil {
		item, err := c.config.Cache.GetItem(ctx, key)
		switch {
		case err == nil:
			return item, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	var item catalog.Item
	body, header, err := c.get(ctx, endpoint, params, func(body []byte) error {
		item = catalog.Item{}
		return json.Unmarshal(body, &item)
	})
	if err != nil {
		return catalog.Item{}, err
	}

	if c.config.Cache != nil {
		if err := c.config.Cache.SetItem(ctx, key, body, header); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache response")
		}
	}
	return item, nil
}

// get runs the request under the retry policy. decode, when set, runs on
// every successful body; a decode error fails that attempt.
func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, decode func([]byte) error) (json.RawMessage, http.Header, error) {
	reqURL := c.buildURL(endpoint, params)
	label := EndpointLabel(endpoint)

	var body []byte
	var header http.Header

	err := retryWithBackoff(ctx, c.config.Retry, c.sleep, c.logger.With().Str("endpoint", endpoint).Logger(),
		c.recordRateLimit(ctx),
		func() error {
			if err := c.waitCooldown(ctx); err != nil {
				return err
			}
			var err error
			body, header, err = c.doOnce(ctx, reqURL, label)
			if err != nil || decode == nil {
				return err
			}
			if err := decode(body); err != nil {
				errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
				return &APIError{
					StatusCode: http.StatusOK,
					ErrorClass: ErrorClassDecode,
					Message:    "unexpected response shape",
					Err:        err,
				}
			}
			return nil
		})
	if err != nil {
		return nil, nil, err
	}
	return body, header, nil
}

// doOnce executes a single HTTP round trip and classifies the outcome.
func (c *Client) doOnce(ctx context.Context, reqURL, label string) ([]byte, http.Header, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, &APIError{ErrorClass: ErrorClassClient, Message: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.ReadToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.ReadToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(label, "network_error").Inc()
		c.logger.Debug().Err(err).Str("endpoint", label).Msg("HTTP request failed")
		return nil, nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if !json.Valid(data) {
			errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
			return nil, nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassDecode, Message: "response is not JSON"}
		}
		return data, resp.Header, nil
	}

	errClass := classifyStatus(resp.StatusCode)
	errorsTotal.WithLabelValues(string(errClass)).Inc()
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: errClass,
		Message:    resp.Status,
	}
	if errClass == ErrorClassRateLimit {
		apiErr.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}

	c.logger.Debug().
		Str("endpoint", label).
		Int("status", resp.StatusCode).
		Str("error_class", string(errClass)).
		Msg("TMDB request error")

	return nil, nil, apiErr
}

// waitCooldown holds off while a shared 429 cooldown is running.
func (c *Client) waitCooldown(ctx context.Context) error {
	if c.config.Tracker == nil {
		return nil
	}
	remaining, err := c.config.Tracker.CooldownRemaining(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cooldown check failed")
		return nil
	}
	if remaining <= 0 {
		return nil
	}
	c.logger.Debug().Dur("wait", remaining).Msg("Waiting out shared rate-limit cooldown")
	if err := c.sleep(ctx, remaining); err != nil {
		return &APIError{ErrorClass: ErrorClassNetwork, Message: "cooldown interrupted", Err: err}
	}
	return nil
}

func (c *Client) recordRateLimit(ctx context.Context) func(time.Duration) {
	if c.config.Tracker == nil {
		return nil
	}
	return func(wait time.Duration) {
		if err := c.config.Tracker.RecordRateLimit(ctx, wait); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record rate limit")
		}
	}
}

func (c *Client) buildURL(endpoint string, params map[string]string) string {
	values := toValues(params)
	if c.config.ReadToken == "" && c.config.APIKey != "" {
		values.Set("api_key", c.config.APIKey)
	}
	u := c.config.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
	if encoded := values.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

func toValues(params map[string]string) url.Values {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return values
}

// classifyStatus categorizes a non-2xx HTTP status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		// 1xx and 3xx are unexpected for this API; treat as server trouble.
		return ErrorClassServer
	}
}

// ParseRetryAfter reads a Retry-After value as seconds or an HTTP date,
// capped at MaxRetryAfter. Returns 0 when absent, unparsable, or not finite.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
			return 0
		}
		if secs >= MaxRetryAfter.Seconds() {
			return MaxRetryAfter
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return min(d, MaxRetryAfter)
		}
	}
	return 0
}

// EndpointLabel collapses numeric path segments so metric labels stay bounded.
func EndpointLabel(endpoint string) string {
	segments := strings.Split(strings.Trim(endpoint, "/"), "/")
	for i, s := range segments {
		if s == "" {
			continue
		}
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			segments[i] = "{id}"
		}
	}
	return "/" + strings.Join(segments, "/")
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetSleeper replaces the wait function used for backoff and 429 waits
// (for testing).
func (c *Client) SetSleeper(s Sleeper) {
	c.sleep = s
}
