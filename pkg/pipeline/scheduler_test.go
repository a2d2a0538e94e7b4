package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/catalog"
	"github.com/cinebyhub/catalog-sync/pkg/changedetect"
	"github.com/cinebyhub/catalog-sync/pkg/runlog"
	"github.com/cinebyhub/catalog-sync/pkg/snapshot"
	"github.com/cinebyhub/catalog-sync/pkg/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSyncer writes rows movies into the store on every run.
type fakeSyncer struct {
	t     *testing.T
	store string
	rows  int
	err   error
	runs  int
	after func()
}

func (f *fakeSyncer) Run(ctx context.Context) (*syncer.Summary, error) {
	f.runs++
	if f.after != nil {
		defer f.after()
	}

	// a sync holds the store lock
	if _, err := AcquireLock(f.store); !errors.Is(err, ErrLocked) {
		f.t.Errorf("store not locked during sync: %v", err)
	}

	records := make([]catalog.Record, 0, f.rows)
	for i := 1; i <= f.rows; i++ {
		records = append(records, catalog.NormalizeMovie(catalog.Item{ID: int64(i), Title: "T"}))
	}
	if err := snapshot.NewWriter(f.store).WriteCategories(snapshot.Sheet{Category: catalog.Movies, Records: records}); err != nil {
		return nil, err
	}
	return &syncer.Summary{RunID: fmt.Sprintf("run-%d", f.runs), Mode: syncer.ModeIncremental}, f.err
}

type fakeWrapper struct {
	t     *testing.T
	store string
	calls int
	err   error
}

func (w *fakeWrapper) Wrap(ctx context.Context) error {
	w.calls++
	if _, err := AcquireLock(w.store); !errors.Is(err, ErrLocked) {
		w.t.Errorf("store not locked during wrap: %v", err)
	}
	return w.err
}

type fakeRecorder struct {
	recorded []string
	statuses map[string]string
}

func (r *fakeRecorder) Record(ctx context.Context, s *syncer.Summary) error {
	r.recorded = append(r.recorded, s.RunID)
	return nil
}

func (r *fakeRecorder) SetWrapStatus(ctx context.Context, runID, status string) error {
	if r.statuses == nil {
		r.statuses = map[string]string{}
	}
	r.statuses[runID] = status
	return nil
}

type fixture struct {
	store    string
	baseline *changedetect.BaselineStore
	syncer   *fakeSyncer
	wrapper  *fakeWrapper
	recorder *fakeRecorder
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	store := filepath.Join(dir, "catalog.xlsx")
	return &fixture{
		store:    store,
		baseline: changedetect.NewBaselineStore(filepath.Join(dir, "checkpoints", "counts.json")),
		syncer:   &fakeSyncer{t: t, store: store, rows: 2},
		wrapper:  &fakeWrapper{t: t, store: store},
		recorder: &fakeRecorder{},
	}
}

func (f *fixture) scheduler(mutate func(*Config)) *Scheduler {
	cfg := DefaultConfig()
	cfg.StorePath = f.store
	if mutate != nil {
		mutate(&cfg)
	}
	return NewScheduler(cfg, f.syncer, changedetect.NewDetector(f.baseline), f.wrapper, f.recorder)
}

func TestRunCycle_WrapsOnlyOnGrowth(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(nil)
	ctx := context.Background()

	res, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, res.Growth.Bootstrap)
	assert.True(t, res.Wrapped)
	assert.Equal(t, 1, f.wrapper.calls)

	res, err = s.RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, res.Growth.HasGrowth)
	assert.False(t, res.Wrapped)
	assert.Equal(t, 1, f.wrapper.calls)

	f.syncer.rows = 5
	res, err = s.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, res.Growth.HasGrowth)
	assert.Equal(t, 2, f.wrapper.calls)

	assert.Equal(t, []string{"run-1", "run-2", "run-3"}, f.recorder.recorded)
	assert.Equal(t, runlog.WrapDone, f.recorder.statuses["run-1"])
	assert.Equal(t, runlog.WrapSkipped, f.recorder.statuses["run-2"])

	baseline, err := f.baseline.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, baseline[catalog.Movies.Sheet])
}

func TestRunCycle_ForceWrap(t *testing.T) {
	f := newFixture(t)
	_, err := f.scheduler(nil).RunCycle(context.Background())
	require.NoError(t, err)

	res, err := f.scheduler(func(c *Config) { c.ForceWrap = true }).RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Growth.HasGrowth)
	assert.True(t, res.Wrapped)
	assert.Equal(t, 2, f.wrapper.calls)
}

func TestRunCycle_SkipWrapStillSavesBaseline(t *testing.T) {
	f := newFixture(t)

	res, err := f.scheduler(func(c *Config) { c.SkipWrap = true }).RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Growth.HasGrowth)
	assert.False(t, res.Wrapped)
	assert.Equal(t, 0, f.wrapper.calls)

	baseline, err := f.baseline.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, baseline[catalog.Movies.Sheet])
}

func TestRunCycle_SyncFailureSkipsWrapper(t *testing.T) {
	f := newFixture(t)
	f.syncer.err = errors.New("write failed")

	res, err := f.scheduler(nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Error(t, res.SyncErr)
	assert.False(t, res.Wrapped)
	assert.Equal(t, 0, f.wrapper.calls)
	assert.Equal(t, runlog.WrapSkipped, f.recorder.statuses["run-1"])

	_, err = os.Stat(f.baseline.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist), "baseline saved after a failed sync: %v", err)
}

func TestRunCycle_GrowthFromFailedSyncWrappedNextCycle(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(nil)
	ctx := context.Background()

	_, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.wrapper.calls)

	// the failed run still writes its rows
	f.syncer.rows = 4
	f.syncer.err = errors.New("channels: write failed")
	res, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Error(t, res.SyncErr)
	assert.Equal(t, 1, f.wrapper.calls)

	baseline, err := f.baseline.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, baseline[catalog.Movies.Sheet])

	f.syncer.err = nil
	res, err = s.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, res.Growth.HasGrowth)
	assert.True(t, res.Wrapped)
	assert.Equal(t, 2, f.wrapper.calls)
	assert.Equal(t, runlog.WrapDone, f.recorder.statuses["run-3"])
}

func TestRunCycle_WrapperFailureKeepsBaseline(t *testing.T) {
	f := newFixture(t)
	f.wrapper.err = errors.New("exit status 1")

	res, err := f.scheduler(nil).RunCycle(context.Background())
	require.Error(t, err)
	assert.False(t, res.Wrapped)
	assert.Equal(t, runlog.WrapFailed, f.recorder.statuses["run-1"])

	baseline, err := f.baseline.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, baseline[catalog.Movies.Sheet])
}

func TestRunCycle_LockedStore(t *testing.T) {
	f := newFixture(t)
	lock, err := AcquireLock(f.store)
	require.NoError(t, err)
	defer lock.Release()

	_, err = f.scheduler(nil).RunCycle(context.Background())
	assert.True(t, errors.Is(err, ErrLocked))
	assert.Equal(t, 0, f.syncer.runs)
	assert.Equal(t, 0, f.wrapper.calls)
}

func TestRunCycle_SkipSync(t *testing.T) {
	f := newFixture(t)
	_, err := f.scheduler(nil).RunCycle(context.Background())
	require.NoError(t, err)

	res, err := f.scheduler(func(c *Config) { c.SkipSync = true; c.ForceWrap = true }).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.syncer.runs)
	assert.Nil(t, res.Summary)
	assert.True(t, res.Wrapped)
}

func TestRunCycle_MissingStore(t *testing.T) {
	f := newFixture(t)

	_, err := f.scheduler(func(c *Config) { c.SkipSync = true }).RunCycle(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, f.wrapper.calls)
}

func TestRun_Once(t *testing.T) {
	f := newFixture(t)

	err := f.scheduler(func(c *Config) { c.Once = true }).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.syncer.runs)
}

func TestRun_OnceReportsSyncFailure(t *testing.T) {
	f := newFixture(t)
	f.syncer.err = errors.New("write failed")

	err := f.scheduler(func(c *Config) { c.Once = true }).Run(context.Background())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.syncer.after = func() {
		if f.syncer.runs == 3 {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- f.scheduler(func(c *Config) { c.Interval = 5 * time.Millisecond }).Run(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, 3, f.syncer.runs)
}
