package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cinebyhub/catalog-sync/internal/config"
	"github.com/cinebyhub/catalog-sync/pkg/cache"
	"github.com/cinebyhub/catalog-sync/pkg/changedetect"
	"github.com/cinebyhub/catalog-sync/pkg/client"
	"github.com/cinebyhub/catalog-sync/pkg/logging"
	"github.com/cinebyhub/catalog-sync/pkg/metrics"
	"github.com/cinebyhub/catalog-sync/pkg/planner"
	"github.com/cinebyhub/catalog-sync/pkg/ratelimit"
	"github.com/cinebyhub/catalog-sync/pkg/runlog"
	"github.com/cinebyhub/catalog-sync/pkg/snapshot"
	"github.com/cinebyhub/catalog-sync/pkg/syncer"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds the resources shared by the commands.
type app struct {
	cfg    *config.Config
	redis  *redis.Client
	logger zerolog.Logger
}

// setup loads configuration, configures logging and starts the metrics
// server when requested.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if prettyLogs {
		cfg.Log.Pretty = true
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	logging.Setup(cfg.Logging())
	a := &app{cfg: cfg, logger: logging.NewLogger("cli")}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cmd.Context(), cfg.MetricsAddr); err != nil {
				a.logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}
	return a, nil
}

// connectRedis returns a client when Redis is configured and reachable.
// Without Redis the tracker keeps its state in memory and detail lookups
// are not cached.
func (a *app) connectRedis(ctx context.Context) *redis.Client {
	if a.cfg.Redis.Addr == "" {
		return nil
	}
	if a.redis != nil {
		return a.redis
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn().Err(err).Str("addr", a.cfg.Redis.Addr).Msg("Redis unavailable, continuing without cache")
		_ = rdb.Close()
		return nil
	}
	a.logger.Info().Str("addr", a.cfg.Redis.Addr).Msg("Connected to Redis")
	a.redis = rdb
	return rdb
}

// newEngine wires the fetch client, planner and store into a sync engine.
func (a *app) newEngine(ctx context.Context, mode syncer.Mode) (*syncer.Engine, error) {
	rdb := a.connectRedis(ctx)

	clientCfg := a.cfg.Client()
	clientCfg.Tracker = ratelimit.NewTracker(rdb, logging.NewLogger("ratelimit"))
	if rdb != nil {
		clientCfg.Cache = cache.NewManager(rdb, a.cfg.TMDB.CacheTTL)
	}
	tmdb, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create TMDB client: %w", err)
	}

	syncCfg, err := a.cfg.Syncer()
	if err != nil {
		return nil, err
	}
	if mode != "" {
		syncCfg.Mode = mode
	}

	path := a.cfg.Store.Path
	return syncer.New(
		tmdb,
		ratelimit.NewPacer(a.cfg.TMDB.RequestDelay),
		planner.New(a.cfg.Planner()),
		snapshot.NewReader(path),
		snapshot.NewWriter(path),
		syncCfg,
	), nil
}

func (a *app) openLedger() (*runlog.Ledger, error) {
	return runlog.Open(a.cfg.Store.RunLog)
}

func (a *app) newDetector() *changedetect.Detector {
	return changedetect.NewDetector(changedetect.NewBaselineStore(a.cfg.BaselinePath()))
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
