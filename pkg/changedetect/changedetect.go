// Package changedetect decides whether the store grew since the last check
// by comparing per-sheet row counts against a persisted baseline.
package changedetect

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/cinebyhub/catalog-sync/internal/fsutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	baselineRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_baseline_rows",
		Help: "Row count per sheet recorded in the change-detection baseline",
	}, []string{"sheet"})

	growthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_growth_checks_total",
		Help: "Change-detection checks by verdict",
	}, []string{"growth"})
)

// Baseline maps sheet name to row count.
type Baseline map[string]int

// Delta is the change of one sheet against the baseline.
type Delta struct {
	Sheet    string
	Previous int
	Current  int
}

// Diff returns Current - Previous.
func (d Delta) Diff() int {
	return d.Current - d.Previous
}

// Result is a change-detection verdict.
type Result struct {
	// HasGrowth is true when the baseline was empty or any sheet grew.
	HasGrowth bool

	// Bootstrap is true when there was no baseline to compare against.
	Bootstrap bool

	// Grown and Shrunk list the sheets that changed, sorted by name.
	Grown  []Delta
	Shrunk []Delta
}

// Detect compares counts against baseline. An empty baseline always
// reports growth. Shrinkage is reported but never counts as growth.
func Detect(counts map[string]int, baseline Baseline) Result {
	if len(baseline) == 0 {
		return Result{HasGrowth: true, Bootstrap: true}
	}

	var res Result
	for sheet, current := range counts {
		previous := baseline[sheet]
		switch {
		case current > previous:
			res.Grown = append(res.Grown, Delta{Sheet: sheet, Previous: previous, Current: current})
		case current < previous:
			res.Shrunk = append(res.Shrunk, Delta{Sheet: sheet, Previous: previous, Current: current})
		}
	}
	for sheet, previous := range baseline {
		if _, ok := counts[sheet]; !ok && previous > 0 {
			res.Shrunk = append(res.Shrunk, Delta{Sheet: sheet, Previous: previous})
		}
	}

	sort.Slice(res.Grown, func(i, j int) bool { return res.Grown[i].Sheet < res.Grown[j].Sheet })
	sort.Slice(res.Shrunk, func(i, j int) bool { return res.Shrunk[i].Sheet < res.Shrunk[j].Sheet })
	res.HasGrowth = len(res.Grown) > 0
	return res
}

// BaselineStore persists the baseline as a JSON file.
type BaselineStore struct {
	path string
}

// NewBaselineStore creates a store backed by the JSON file at path.
func NewBaselineStore(path string) *BaselineStore {
	return &BaselineStore{path: path}
}

// Path returns the baseline file location.
func (s *BaselineStore) Path() string {
	return s.path
}

// Load reads the baseline. A missing file is an empty baseline.
func (s *BaselineStore) Load() (Baseline, error) {
	var b Baseline
	if err := fsutil.ReadJSON(s.path, &b); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Baseline{}, nil
		}
		return Baseline{}, err
	}
	if b == nil {
		b = Baseline{}
	}
	return b, nil
}

// Save replaces the baseline atomically.
func (s *BaselineStore) Save(b Baseline) error {
	if b == nil {
		b = Baseline{}
	}
	return fsutil.WriteJSON(s.path, b)
}

// Detector runs checks against a BaselineStore.
type Detector struct {
	store  *BaselineStore
	logger zerolog.Logger
}

// NewDetector creates a detector.
func NewDetector(store *BaselineStore) *Detector {
	return &Detector{
		store:  store,
		logger: log.With().Str("component", "changedetect").Logger(),
	}
}

// Check compares counts with the stored baseline and then stores counts as
// the new baseline, whatever the verdict. An unreadable baseline is treated
// as empty.
func (d *Detector) Check(counts map[string]int) (Result, error) {
	baseline, err := d.store.Load()
	if err != nil {
		d.logger.Warn().Err(err).Str("path", d.store.Path()).Msg("Baseline unreadable, treating as empty")
		baseline = Baseline{}
	}

	res := Detect(counts, baseline)

	for _, g := range res.Grown {
		d.logger.Info().
			Str("sheet", g.Sheet).
			Int("previous", g.Previous).
			Int("total", g.Current).
			Int("new", g.Diff()).
			Msg("Sheet grew")
	}
	for _, s := range res.Shrunk {
		d.logger.Warn().
			Str("sheet", s.Sheet).
			Int("previous", s.Previous).
			Int("total", s.Current).
			Msg("Sheet shrank, ignoring")
	}
	if res.Bootstrap {
		d.logger.Info().Msg("No baseline yet, reporting growth")
	}
	growthChecksTotal.WithLabelValues(fmt.Sprintf("%t", res.HasGrowth)).Inc()

	next := make(Baseline, len(counts))
	for sheet, n := range counts {
		next[sheet] = n
		baselineRows.WithLabelValues(sheet).Set(float64(n))
	}
	if err := d.store.Save(next); err != nil {
		return res, fmt.Errorf("save baseline: %w", err)
	}
	return res, nil
}
