// Package syncer runs a synchronization pass: for each category it reads the
// store, walks the planned queries, merges what is new and writes the
// category back before moving on.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/catalog"
	"github.com/cinebyhub/catalog-sync/pkg/client"
	"github.com/cinebyhub/catalog-sync/pkg/merge"
	"github.com/cinebyhub/catalog-sync/pkg/pagination"
	"github.com/cinebyhub/catalog-sync/pkg/planner"
	"github.com/cinebyhub/catalog-sync/pkg/ratelimit"
	"github.com/cinebyhub/catalog-sync/pkg/snapshot"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	recordsAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_records_added_total",
		Help: "Records appended to the store by category",
	}, []string{"category"})

	recordErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_record_errors_total",
		Help: "Per-record detail lookups skipped after a failure, by category",
	}, []string{"category"})

	runDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_duration_seconds",
		Help:    "Wall time of sync runs by mode",
		Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200},
	}, []string{"mode"})
)

// Fetcher is the part of the TMDB client the engine uses.
type Fetcher interface {
	pagination.PageFetcher
	GetItem(ctx context.Context, endpoint string, params map[string]string) (catalog.Item, error)
}

// Config holds engine configuration.
type Config struct {
	// Mode is incremental or full.
	Mode Mode

	// Policy resolves ids fetched more than once in a run.
	Policy merge.Policy

	// Categories to sync, in order. Empty means catalog.All().
	Categories []catalog.Category

	// ChannelSeeds are network ids always looked up for the channels
	// category. Nil means DefaultChannelSeeds.
	ChannelSeeds []int64
}

// DefaultConfig returns an incremental, first-seen configuration over all
// categories.
func DefaultConfig() Config {
	return Config{
		Mode:   ModeIncremental,
		Policy: merge.PolicyFirstSeen,
	}
}

// Engine synchronizes the store with TMDB.
type Engine struct {
	fetcher Fetcher
	pacer   *ratelimit.Pacer
	walker  *pagination.Walker
	planner *planner.Planner
	reader  *snapshot.Reader
	writer  *snapshot.Writer
	config  Config
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates an engine. pacer may be nil.
func New(fetcher Fetcher, pacer *ratelimit.Pacer, plan *planner.Planner, reader *snapshot.Reader, writer *snapshot.Writer, cfg Config) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = ModeIncremental
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = catalog.All()
	}
	if cfg.ChannelSeeds == nil {
		cfg.ChannelSeeds = DefaultChannelSeeds
	}

	walkCfg := pagination.DefaultConfig()
	walkCfg.Incremental = cfg.Mode == ModeIncremental

	return &Engine{
		fetcher: fetcher,
		pacer:   pacer,
		walker:  pagination.NewWalker(fetcher, pacer, walkCfg),
		planner: plan,
		reader:  reader,
		writer:  writer,
		config:  cfg,
		logger:  log.With().Str("component", "syncer").Logger(),
		now:     time.Now,
	}
}

// Run syncs every configured category and returns the run summary. Each
// category is written as soon as it completes; a cancelled context abandons
// the in-flight category only. The error reports cancellation or failed
// writes; the summary is returned in every case.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		Mode:      e.config.Mode,
		StartedAt: e.now(),
	}
	logger := e.logger.With().Str("run_id", summary.RunID).Logger()
	logger.Info().
		Str("mode", string(e.config.Mode)).
		Int("categories", len(e.config.Categories)).
		Msg("Sync started")

	var errs []error
	for _, c := range e.config.Categories {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res := e.syncCategory(ctx, c)
		summary.Categories = append(summary.Categories, res)

		if res.Error != "" {
			errs = append(errs, fmt.Errorf("%s: %s", c.Key, res.Error))
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	summary.FinishedAt = e.now()
	runDurationSeconds.WithLabelValues(string(e.config.Mode)).Observe(summary.Duration().Seconds())

	fetched, added, errCount := summary.Totals()
	logger.Info().
		Int("fetched", fetched).
		Int("new", added).
		Int("errors", errCount).
		Dur("duration", summary.Duration()).
		Msg("Sync finished")

	return summary, errors.Join(errs...)
}

func (e *Engine) syncCategory(ctx context.Context, c catalog.Category) CategoryResult {
	start := e.now()
	res := CategoryResult{Category: c.Key, Sheet: c.Sheet}
	logger := e.logger.With().Str("category", c.Key).Logger()

	existing := snapshot.Sheet{Category: c}
	known := map[int64]struct{}{}
	if e.config.Mode == ModeIncremental {
		var err error
		existing, known, err = e.reader.Read(c)
		if err != nil {
			res.Error = err.Error()
			res.Duration = e.now().Sub(start)
			logger.Error().Err(err).Msg("Existing rows unreadable, category skipped")
			return res
		}
	}
	res.Existing = existing.Len()

	var batches [][]catalog.Record
	if c.Key == catalog.Channels.Key {
		batches = e.harvestChannels(ctx, c, known, &res)
	} else {
		batches = e.walkCategory(ctx, c, known, &res)
	}

	merged, stats := merge.Merge(existing.Records, batches, e.config.Policy)
	res.New = stats.Added
	res.Total = len(merged)
	res.Duration = e.now().Sub(start)

	if ctx.Err() != nil {
		logger.Warn().Int("new", res.New).Msg("Interrupted, category not written")
		res.Total = res.Existing
		res.New = 0
		return res
	}

	out := snapshot.Sheet{Category: c, Headers: existing.Headers, Records: merged}
	if err := e.writer.WriteCategories(out); err != nil {
		res.Error = err.Error()
		logger.Error().Err(err).Msg("Failed to write category")
		return res
	}
	res.Written = true
	recordsAddedTotal.WithLabelValues(c.Key).Add(float64(res.New))

	logger.Info().
		Int("existing", res.Existing).
		Int("fetched", res.Fetched).
		Int("new", res.New).
		Int("total", res.Total).
		Int("pages", res.Pages).
		Int("early_stops", res.EarlyStops).
		Int("errors", res.Errors()).
		Msg("Category synced")
	return res
}

// walkCategory walks every planned descriptor and normalizes the results.
func (e *Engine) walkCategory(ctx context.Context, c catalog.Category, known map[int64]struct{}, res *CategoryResult) [][]catalog.Record {
	var batches [][]catalog.Record
	for _, d := range e.planner.Plan(c) {
		if ctx.Err() != nil {
			break
		}
		walked := e.walker.Walk(ctx, d, known)
		res.Descriptors++
		res.Pages += walked.PagesFetched
		if walked.StoppedEarly {
			res.EarlyStops++
		}
		if walked.Err != nil && !errors.Is(walked.Err, client.ErrContextCancelled) && ctx.Err() == nil {
			res.DescriptorFailures++
		}

		batch := make([]catalog.Record, 0, len(walked.Items))
		for _, it := range walked.Items {
			batch = append(batch, catalog.Normalize(c, it))
		}
		res.Fetched += len(batch)
		batches = append(batches, batch)
	}
	return batches
}
