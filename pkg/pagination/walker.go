package pagination

import (
	"context"
	"errors"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/catalog"
	"github.com/cinebyhub/catalog-sync/pkg/client"
	"github.com/cinebyhub/catalog-sync/pkg/planner"
	"github.com/cinebyhub/catalog-sync/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_pages_fetched_total",
		Help: "Pages requested by the walker, by category",
	}, []string{"category"})

	earlyStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_early_stops_total",
		Help: "Descriptors stopped because a page held no new items, by category",
	}, []string{"category"})

	descriptorFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_descriptor_failures_total",
		Help: "Descriptors cut short by a failed page, by category",
	}, []string{"category"})
)

// PageFetcher fetches one page of a paged endpoint. *client.Client
// implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, endpoint string, params map[string]string, page int) (*client.Page, error)
}

// Config holds walker configuration.
type Config struct {
	// Incremental enables the known-id filter and the early-stop rule.
	Incremental bool

	// PageTimeout bounds a single page fetch including its retries.
	// Zero disables the per-page timeout.
	PageTimeout time.Duration
}

// DefaultConfig returns an incremental walker configuration.
func DefaultConfig() Config {
	return Config{
		Incremental: true,
	}
}

// Result is the outcome of walking one descriptor.
type Result struct {
	// Items are the new items in fetch order. Repeats across pages are
	// possible and left for the merge step.
	Items []catalog.Item

	// PagesFetched counts page requests, including a failed last one.
	PagesFetched int

	// StoppedEarly is set when the early-stop rule ended the walk.
	StoppedEarly bool

	// Err is the failure that cut the walk short, if any.
	Err error
}

// Walker drives a PageFetcher across a descriptor's pages.
type Walker struct {
	fetcher PageFetcher
	pacer   *ratelimit.Pacer
	config  Config
	logger  zerolog.Logger
}

// NewWalker creates a walker. pacer may be nil to disable pacing.
func NewWalker(fetcher PageFetcher, pacer *ratelimit.Pacer, config Config) *Walker {
	return &Walker{
		fetcher: fetcher,
		pacer:   pacer,
		config:  config,
		logger:  log.With().Str("component", "walker").Logger(),
	}
}

// Incremental reports whether the walker filters known ids.
func (w *Walker) Incremental() bool {
	return w.config.Incremental
}

// Walk fetches pages of d in order and returns the items whose id is not
// in known. known is read, never modified.
func (w *Walker) Walk(ctx context.Context, d planner.Descriptor, known map[int64]struct{}) Result {
	var res Result
	logger := w.logger.With().
		Str("category", d.Category).
		Str("descriptor", d.Label).
		Logger()

	budget := d.Budget()
	totalPages := 1
	earlyStop := w.config.Incremental && d.StableOrder

	for page := 1; page <= budget && page <= totalPages; page++ {
		if err := w.pacer.Wait(ctx); err != nil {
			res.Err = err
			break
		}

		p, err := w.fetchPage(ctx, d, page)
		res.PagesFetched++
		pagesFetchedTotal.WithLabelValues(d.Category).Inc()
		if err != nil {
			res.Err = err
			if !errors.Is(err, client.ErrContextCancelled) {
				descriptorFailuresTotal.WithLabelValues(d.Category).Inc()
			}
			logger.Warn().
				Err(err).
				Int("page", page).
				Int("new", len(res.Items)).
				Msg("Page fetch failed, keeping partial results")
			break
		}

		totalPages = p.TotalPages
		if totalPages > planner.SourcePageCap {
			totalPages = planner.SourcePageCap
		}

		fresh := 0
		for _, it := range p.Results {
			if it.ID == 0 {
				continue
			}
			if w.config.Incremental {
				if _, ok := known[it.ID]; ok {
					continue
				}
			}
			res.Items = append(res.Items, it)
			fresh++
		}

		logger.Debug().
			Int("page", page).
			Int("total_pages", totalPages).
			Int("new", fresh).
			Msg("Page walked")

		if earlyStop && page > 1 && fresh == 0 {
			res.StoppedEarly = true
			earlyStopsTotal.WithLabelValues(d.Category).Inc()
			break
		}
	}

	logger.Info().
		Int("pages", res.PagesFetched).
		Int("new", len(res.Items)).
		Bool("stopped_early", res.StoppedEarly).
		Msg("Descriptor walked")

	return res
}

func (w *Walker) fetchPage(ctx context.Context, d planner.Descriptor, page int) (*client.Page, error) {
	if w.config.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.PageTimeout)
		defer cancel()
	}
	return w.fetcher.FetchPage(ctx, d.Endpoint, d.Params, page)
}
