// Package config loads catalog-sync process configuration from an optional
// YAML file, CATALOG_* environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/cache"
	"github.com/cinebyhub/catalog-sync/pkg/catalog"
	"github.com/cinebyhub/catalog-sync/pkg/client"
	"github.com/cinebyhub/catalog-sync/pkg/logging"
	"github.com/cinebyhub/catalog-sync/pkg/merge"
	"github.com/cinebyhub/catalog-sync/pkg/pipeline"
	"github.com/cinebyhub/catalog-sync/pkg/planner"
	"github.com/cinebyhub/catalog-sync/pkg/ratelimit"
	"github.com/cinebyhub/catalog-sync/pkg/syncer"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CATALOG_STORE_PATH.
const EnvPrefix = "CATALOG"

// ConfigName is the file searched for in the working directory when no
// config path is given.
const ConfigName = "catalog-sync"

// Config is the process configuration.
type Config struct {
	Store       StoreConfig    `mapstructure:"store"`
	TMDB        TMDBConfig     `mapstructure:"tmdb"`
	Sync        SyncConfig     `mapstructure:"sync"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Log         LogConfig      `mapstructure:"log"`
	Schedule    ScheduleConfig `mapstructure:"schedule"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
}

// StoreConfig locates the workbook and the state kept beside it.
type StoreConfig struct {
	Path          string `mapstructure:"path"`
	CheckpointDir string `mapstructure:"checkpoint_dir"`
	RunLog        string `mapstructure:"run_log"`
}

// TMDBConfig configures the fetch client.
type TMDBConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	ReadToken    string        `mapstructure:"read_token"`
	BaseURL      string        `mapstructure:"base_url"`
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// SyncConfig configures planning, walking and merging.
type SyncConfig struct {
	Incremental       bool            `mapstructure:"incremental"`
	Policy            string          `mapstructure:"policy"`
	Categories        []string        `mapstructure:"categories"`
	Language          string          `mapstructure:"language"`
	DefaultBudget     int             `mapstructure:"default_budget"`
	GlobalBudget      int             `mapstructure:"global_budget"`
	AnimeBudget       int             `mapstructure:"anime_budget"`
	AnimeMovieBudget  int             `mapstructure:"anime_movie_budget"`
	ChannelScanBudget int             `mapstructure:"channel_scan_budget"`
	YearWindow        int             `mapstructure:"year_window"`
	Slices            []planner.Slice `mapstructure:"slices"`
	ChannelSeeds      []int64         `mapstructure:"channel_seeds"`
}

// RedisConfig enables the shared cooldown tracker and detail cache when
// Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

// ScheduleConfig configures the run loop.
type ScheduleConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	WrapCommand string        `mapstructure:"wrap_command"`
	WrapDir     string        `mapstructure:"wrap_dir"`
}

func setDefaults(v *viper.Viper) {
	pl := planner.DefaultConfig()
	cl := client.DefaultConfig()

	v.SetDefault("store.path", "catalog.xlsx")
	v.SetDefault("store.checkpoint_dir", "checkpoints")
	v.SetDefault("store.run_log", "catalog-runs.db")

	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("tmdb.read_token", "")
	v.SetDefault("tmdb.base_url", cl.BaseURL)
	v.SetDefault("tmdb.user_agent", cl.UserAgent)
	v.SetDefault("tmdb.timeout", cl.Timeout)
	v.SetDefault("tmdb.request_delay", ratelimit.DefaultRequestDelay)
	v.SetDefault("tmdb.max_attempts", cl.Retry.MaxAttempts)
	v.SetDefault("tmdb.cache_ttl", cache.DefaultTTL)

	v.SetDefault("sync.incremental", true)
	v.SetDefault("sync.policy", merge.PolicyFirstSeen.String())
	v.SetDefault("sync.categories", []string{})
	v.SetDefault("sync.language", pl.Language)
	v.SetDefault("sync.default_budget", pl.DefaultBudget)
	v.SetDefault("sync.global_budget", pl.GlobalBudget)
	v.SetDefault("sync.anime_budget", pl.AnimeBudget)
	v.SetDefault("sync.anime_movie_budget", pl.AnimeMovieBudget)
	v.SetDefault("sync.channel_scan_budget", pl.ChannelScanBudget)
	v.SetDefault("sync.year_window", pl.YearlyWindow)
	v.SetDefault("sync.slices", pl.Slices)
	v.SetDefault("sync.channel_seeds", syncer.DefaultChannelSeeds)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")

	v.SetDefault("schedule.interval", pipeline.DefaultInterval)
	v.SetDefault("schedule.wrap_command", "")
	v.SetDefault("schedule.wrap_dir", "")

	v.SetDefault("metrics_addr", "")
}

// LoadEnvFiles loads .env and .env.local from the working directory.
// Variables already set in the environment win.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// Load reads configuration. With an empty path, catalog-sync.yaml in the
// working directory is used when present. Environment variables override
// the file; TMDB_API_KEY and TMDB_READ_TOKEN are honoured unprefixed.
func Load(path string) (*Config, error) {
	LoadEnvFiles()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.TMDB.APIKey == "" {
		cfg.TMDB.APIKey = os.Getenv("TMDB_API_KEY")
	}
	if cfg.TMDB.ReadToken == "" {
		cfg.TMDB.ReadToken = os.Getenv("TMDB_READ_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	if _, err := merge.ParsePolicy(c.Sync.Policy); err != nil {
		return err
	}
	if _, err := c.Categories(); err != nil {
		return err
	}
	for name, n := range map[string]int{
		"sync.default_budget":      c.Sync.DefaultBudget,
		"sync.global_budget":       c.Sync.GlobalBudget,
		"sync.anime_budget":        c.Sync.AnimeBudget,
		"sync.anime_movie_budget":  c.Sync.AnimeMovieBudget,
		"sync.channel_scan_budget": c.Sync.ChannelScanBudget,
		"sync.year_window":         c.Sync.YearWindow,
	} {
		if n < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, n)
		}
	}
	if c.TMDB.MaxAttempts < 1 {
		return fmt.Errorf("tmdb.max_attempts must be at least 1, got %d", c.TMDB.MaxAttempts)
	}
	return nil
}

// Categories resolves the configured category keys. None means all.
func (c *Config) Categories() ([]catalog.Category, error) {
	if len(c.Sync.Categories) == 0 {
		return catalog.All(), nil
	}
	out := make([]catalog.Category, 0, len(c.Sync.Categories))
	for _, key := range c.Sync.Categories {
		cat, ok := catalog.ByKey(strings.TrimSpace(key))
		if !ok {
			return nil, fmt.Errorf("unknown category %q", key)
		}
		out = append(out, cat)
	}
	return out, nil
}

// Mode returns the sync mode.
func (c *Config) Mode() syncer.Mode {
	if c.Sync.Incremental {
		return syncer.ModeIncremental
	}
	return syncer.ModeFull
}

// BaselinePath is the change-detection baseline file.
func (c *Config) BaselinePath() string {
	return filepath.Join(c.Store.CheckpointDir, "counts.json")
}

// Planner returns the planner configuration.
func (c *Config) Planner() planner.Config {
	cfg := planner.DefaultConfig()
	cfg.DefaultBudget = c.Sync.DefaultBudget
	cfg.GlobalBudget = c.Sync.GlobalBudget
	cfg.AnimeBudget = c.Sync.AnimeBudget
	cfg.AnimeMovieBudget = c.Sync.AnimeMovieBudget
	cfg.ChannelScanBudget = c.Sync.ChannelScanBudget
	cfg.YearlyWindow = c.Sync.YearWindow
	cfg.Language = c.Sync.Language
	if c.Sync.Slices != nil {
		cfg.Slices = c.Sync.Slices
	}
	return cfg
}

// Client returns the fetch client configuration without cache or tracker.
func (c *Config) Client() client.Config {
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.TMDB.BaseURL
	cfg.APIKey = c.TMDB.APIKey
	cfg.ReadToken = c.TMDB.ReadToken
	cfg.UserAgent = c.TMDB.UserAgent
	cfg.Timeout = c.TMDB.Timeout
	cfg.Retry.MaxAttempts = c.TMDB.MaxAttempts
	return cfg
}

// Syncer returns the engine configuration.
func (c *Config) Syncer() (syncer.Config, error) {
	policy, err := merge.ParsePolicy(c.Sync.Policy)
	if err != nil {
		return syncer.Config{}, err
	}
	cats, err := c.Categories()
	if err != nil {
		return syncer.Config{}, err
	}
	return syncer.Config{
		Mode:         c.Mode(),
		Policy:       policy,
		Categories:   cats,
		ChannelSeeds: c.Sync.ChannelSeeds,
	}, nil
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	if c.Log.File != "" {
		cfg.File = logging.DefaultFileConfig(c.Log.File)
	}
	return cfg
}

// Scheduler returns the scheduler configuration.
func (c *Config) Scheduler() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.StorePath = c.Store.Path
	cfg.Interval = c.Schedule.Interval
	return cfg
}
