// Package pipeline schedules sync cycles and runs the downstream link
// wrapper when the store has grown.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/changedetect"
	"github.com/cinebyhub/catalog-sync/pkg/runlog"
	"github.com/cinebyhub/catalog-sync/pkg/snapshot"
	"github.com/cinebyhub/catalog-sync/pkg/syncer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_cycles_total",
	Help: "Scheduler cycles by outcome (wrapped, unchanged, sync_failed, wrap_failed, error)",
}, []string{"outcome"})

// DefaultInterval is the pause between scheduled cycles.
const DefaultInterval = 12 * time.Hour

// Syncer runs one synchronization pass.
type Syncer interface {
	Run(ctx context.Context) (*syncer.Summary, error)
}

// RunRecorder stores run summaries and wrap outcomes. *runlog.Ledger
// implements it.
type RunRecorder interface {
	Record(ctx context.Context, s *syncer.Summary) error
	SetWrapStatus(ctx context.Context, runID, status string) error
}

// Config holds scheduler configuration.
type Config struct {
	// StorePath is the workbook the cycle counts and locks.
	StorePath string

	// Interval between cycles.
	Interval time.Duration

	// SkipSync only checks growth and wraps.
	SkipSync bool

	// SkipWrap never runs the wrapper.
	SkipWrap bool

	// ForceWrap runs the wrapper even without growth.
	ForceWrap bool

	// Once stops after the first cycle.
	Once bool
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		StorePath: "catalog.xlsx",
		Interval:  DefaultInterval,
	}
}

// CycleResult describes one cycle.
type CycleResult struct {
	Summary *syncer.Summary
	SyncErr error
	Growth  changedetect.Result
	Wrapped bool
	WrapErr error
}

// Scheduler runs sync, growth check and wrap cycles.
type Scheduler struct {
	config   Config
	syncer   Syncer
	detector *changedetect.Detector
	wrapper  LinkWrapper
	recorder RunRecorder
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler. wrapper and recorder may be nil.
func NewScheduler(cfg Config, s Syncer, detector *changedetect.Detector, wrapper LinkWrapper, recorder RunRecorder) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{
		config:   cfg,
		syncer:   s,
		detector: detector,
		wrapper:  wrapper,
		recorder: recorder,
		logger:   log.With().Str("component", "pipeline").Logger(),
	}
}

// RunCycle syncs (unless SkipSync), checks the store for growth and runs the
// wrapper when it grew or ForceWrap is set. The baseline is saved whatever
// the wrapper does. A failed sync ends the cycle before the growth check,
// leaving the baseline for the next cycle.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	if !s.config.SkipSync && s.syncer != nil {
		res.Summary, res.SyncErr = s.sync(ctx)
		if errors.Is(res.SyncErr, ErrLocked) {
			cyclesTotal.WithLabelValues("error").Inc()
			return res, res.SyncErr
		}
		if res.SyncErr != nil {
			// the baseline stays put so the next good cycle still sees the growth
			s.logger.Warn().Err(res.SyncErr).Msg("Sync failed, skipping growth check and wrapper this cycle")
			cyclesTotal.WithLabelValues("sync_failed").Inc()
			s.setWrapStatus(ctx, res.Summary, runlog.WrapSkipped)
			return res, nil
		}
	}

	counts, err := snapshot.CountRows(s.config.StorePath)
	if err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("count store rows: %w", err)
	}

	res.Growth, err = s.detector.Check(counts)
	if err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("check growth: %w", err)
	}

	status := runlog.WrapSkipped
	switch {
	case s.config.SkipWrap || s.wrapper == nil:
		s.logger.Info().Bool("growth", res.Growth.HasGrowth).Msg("Wrapper disabled")
		cyclesTotal.WithLabelValues("unchanged").Inc()
	case !res.Growth.HasGrowth && !s.config.ForceWrap:
		s.logger.Info().Msg("No new rows, wrapper not needed")
		cyclesTotal.WithLabelValues("unchanged").Inc()
	default:
		res.WrapErr = s.wrap(ctx)
		if res.WrapErr != nil {
			status = runlog.WrapFailed
			s.logger.Error().Err(res.WrapErr).Msg("Wrapper failed")
			cyclesTotal.WithLabelValues("wrap_failed").Inc()
		} else {
			status = runlog.WrapDone
			res.Wrapped = true
			cyclesTotal.WithLabelValues("wrapped").Inc()
		}
	}

	s.setWrapStatus(ctx, res.Summary, status)
	return res, res.WrapErr
}

func (s *Scheduler) setWrapStatus(ctx context.Context, summary *syncer.Summary, status string) {
	if s.recorder == nil || summary == nil {
		return
	}
	if err := s.recorder.SetWrapStatus(context.WithoutCancel(ctx), summary.RunID, status); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record wrap status")
	}
}

func (s *Scheduler) sync(ctx context.Context) (*syncer.Summary, error) {
	lock, err := AcquireLock(s.config.StorePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release store lock")
		}
	}()

	summary, err := s.syncer.Run(ctx)
	if summary != nil && s.recorder != nil {
		// recording must outlive a cancelled run
		if recErr := s.recorder.Record(context.WithoutCancel(ctx), summary); recErr != nil {
			s.logger.Warn().Err(recErr).Str("run_id", summary.RunID).Msg("Failed to record run")
		}
	}
	return summary, err
}

func (s *Scheduler) wrap(ctx context.Context) error {
	lock, err := AcquireLock(s.config.StorePath)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	s.logger.Info().Msg("Running link wrapper")
	return s.wrapper.Wrap(ctx)
}

// Run repeats RunCycle every Interval until ctx is cancelled, or once when
// Once is set. Cycle errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		start := time.Now()
		res, err := s.RunCycle(ctx)
		event := s.logger.Info()
		if err != nil {
			event = s.logger.Error().Err(err)
		}
		event.
			Int("cycle", cycle).
			Bool("growth", res.Growth.HasGrowth).
			Bool("wrapped", res.Wrapped).
			Dur("duration", time.Since(start)).
			Msg("Cycle finished")

		if s.config.Once {
			if err == nil {
				err = res.SyncErr
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Info().Time("next", time.Now().Add(s.config.Interval)).Msg("Waiting for next cycle")
		timer := time.NewTimer(s.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
