package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Namespace prefixes every detail cache key.
const Namespace = "tmdb:detail"

// credentialParams are query parameters that never take part in a key.
var credentialParams = map[string]bool{
	"api_key": true,
}

// CacheKey identifies one cached TMDB detail object.
type CacheKey struct {
	// Endpoint is the TMDB path (e.g., "/network/213")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"language": "en-US"})
	QueryParams url.Values
}

// ItemKey builds the key of a detail lookup. Parameters that change the
// response, such as language, are part of the key; credentials are not.
func ItemKey(endpoint string, params map[string]string) CacheKey {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return CacheKey{Endpoint: endpoint, QueryParams: values}
}

// Kind returns the object type of the key, the first path segment
// ("network" for /network/213). Used as a metric label.
func (k CacheKey) Kind() string {
	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint == "" {
		return "unknown"
	}
	kind, _, _ := strings.Cut(endpoint, "/")
	return kind
}

// String generates a deterministic cache key string.
// Format: tmdb:detail:endpoint:query1=val1:query2=val2
//
// Example:
//
//	tmdb:detail:network/213:language=en-US
func (k CacheKey) String() string {
	parts := []string{Namespace}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	queryKeys := make([]string, 0, len(k.QueryParams))
	for key := range k.QueryParams {
		if credentialParams[key] {
			continue
		}
		queryKeys = append(queryKeys, key)
	}
	sort.Strings(queryKeys)

	for _, key := range queryKeys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
	}

	return strings.Join(parts, ":")
}
