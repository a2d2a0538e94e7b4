// Package planner enumerates the overlapping TMDB queries used to cover each
// catalog category. A single query is capped at SourcePageCap pages, so
// coverage comes from many slices whose results overlap; deduplication is
// left to the merge step.
package planner

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/catalog"
)

// SourcePageCap is the most pages TMDB serves for one query.
const SourcePageCap = 500

// Descriptor is one paged query to walk.
type Descriptor struct {
	// Category is the catalog.Category key the results belong to.
	Category string

	// Endpoint is the TMDB path, e.g. "/discover/movie".
	Endpoint string

	// Params are sent with every page request.
	Params map[string]string

	// PageBudget caps how many pages are walked. 0 means SourcePageCap.
	PageBudget int

	// Label is a human-readable name used in logs and summaries.
	Label string

	// StableOrder states that the endpoint returns results in a stable
	// descending order so that a fully known page implies every later page
	// is known too. Only then may the walker stop early.
	StableOrder bool
}

// Budget returns the effective page budget.
func (d Descriptor) Budget() int {
	if d.PageBudget <= 0 || d.PageBudget > SourcePageCap {
		return SourcePageCap
	}
	return d.PageBudget
}

// Slice is a (watch region, original language) pair.
type Slice struct {
	Region   string `mapstructure:"region"`
	Language string `mapstructure:"language"`
	Label    string `mapstructure:"label"`
}

// DefaultSlices are the regional slices walked for movies and TV.
var DefaultSlices = []Slice{
	{Region: "IN", Language: "hi", Label: "Hindi / Bollywood"},
	{Region: "IN", Language: "te", Label: "Telugu / Tollywood"},
	{Region: "IN", Language: "ta", Label: "Tamil / Kollywood"},
	{Region: "KR", Language: "ko", Label: "Korean"},
	{Region: "JP", Language: "ja", Label: "Japanese"},
	{Region: "ES", Language: "es", Label: "Spanish / Latin"},
	{Region: "FR", Language: "fr", Label: "French"},
	{Region: "US", Language: "en", Label: "Hollywood Mainstream"},
}

// Config holds the planner configuration.
type Config struct {
	// DefaultBudget is the page budget for ordinary slices.
	DefaultBudget int

	// GlobalBudget is the page budget for the dense global lists.
	GlobalBudget int

	// AnimeBudget is the page budget for anime series queries. 0 walks up
	// to SourcePageCap.
	AnimeBudget int

	// AnimeMovieBudget is the page budget for the anime movie query.
	AnimeMovieBudget int

	// ChannelScanBudget is the page budget of the TV scan used to discover
	// networks.
	ChannelScanBudget int

	// YearlyWindow is how many release years, counting back from the
	// current one, get their own movie query.
	YearlyWindow int

	// Language is sent as the language parameter on every query.
	Language string

	// Slices are the (region, language) cross-products.
	Slices []Slice

	// Now supplies the current time for the yearly sweep.
	Now func() time.Time
}

// DefaultConfig returns the default planner configuration.
func DefaultConfig() Config {
	return Config{
		DefaultBudget:     100,
		GlobalBudget:      SourcePageCap,
		AnimeBudget:       0,
		AnimeMovieBudget:  50,
		ChannelScanBudget: 10,
		YearlyWindow:      21,
		Language:          "en-US",
		Slices:            DefaultSlices,
		Now:               time.Now,
	}
}

// Planner builds the static descriptor list for each category.
type Planner struct {
	config Config
}

// New creates a planner. Zero fields fall back to DefaultConfig values,
// except AnimeBudget where zero is meaningful.
func New(cfg Config) *Planner {
	def := DefaultConfig()
	if cfg.DefaultBudget <= 0 {
		cfg.DefaultBudget = def.DefaultBudget
	}
	if cfg.GlobalBudget <= 0 {
		cfg.GlobalBudget = def.GlobalBudget
	}
	if cfg.AnimeMovieBudget <= 0 {
		cfg.AnimeMovieBudget = def.AnimeMovieBudget
	}
	if cfg.ChannelScanBudget <= 0 {
		cfg.ChannelScanBudget = def.ChannelScanBudget
	}
	if cfg.YearlyWindow < 0 {
		cfg.YearlyWindow = 0
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Slices == nil {
		cfg.Slices = def.Slices
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Planner{config: cfg}
}

// Plan returns the ordered descriptors for a category. Unknown categories
// yield nil.
func (p *Planner) Plan(c catalog.Category) []Descriptor {
	switch c.Key {
	case catalog.Movies.Key:
		return p.movies()
	case catalog.TVShows.Key:
		return p.tvShows()
	case catalog.AnimeSeries.Key:
		return p.animeSeries()
	case catalog.AnimeMovies.Key:
		return p.animeMovies()
	case catalog.Channels.Key:
		return p.channels()
	default:
		return nil
	}
}

func (p *Planner) params(kv ...string) map[string]string {
	m := map[string]string{"language": p.config.Language}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func (p *Planner) movies() []Descriptor {
	key := catalog.Movies.Key
	def, global := p.config.DefaultBudget, p.config.GlobalBudget

	out := []Descriptor{
		{Category: key, Endpoint: "/trending/movie/day", Params: p.params(), PageBudget: def, Label: "Trending movies (today)", StableOrder: true},
		{Category: key, Endpoint: "/trending/movie/week", Params: p.params(), PageBudget: def, Label: "Trending movies (week)", StableOrder: true},
		{Category: key, Endpoint: "/movie/popular", Params: p.params(), PageBudget: global, Label: "Popular movies", StableOrder: true},
		{Category: key, Endpoint: "/movie/top_rated", Params: p.params(), PageBudget: def, Label: "Top rated movies"},
		{Category: key, Endpoint: "/movie/now_playing", Params: p.params("region", "US"), PageBudget: def, Label: "Now playing (US)", StableOrder: true},
		{Category: key, Endpoint: "/movie/now_playing", Params: p.params("region", "IN"), PageBudget: def, Label: "Now playing (IN)", StableOrder: true},
		{Category: key, Endpoint: "/movie/upcoming", Params: p.params(), PageBudget: global, Label: "Upcoming global", StableOrder: true},
	}

	for _, s := range p.config.Slices {
		out = append(out, Descriptor{
			Category: key,
			Endpoint: "/discover/movie",
			Params: p.params(
				"sort_by", "popularity.desc",
				"watch_region", s.Region,
				"with_original_language", s.Language,
			),
			PageBudget:  def,
			Label:       "Slice: " + sliceLabel(s),
			StableOrder: true,
		})
	}

	year := p.config.Now().Year()
	for i := 0; i < p.config.YearlyWindow; i++ {
		y := strconv.Itoa(year - i)
		out = append(out, Descriptor{
			Category:    key,
			Endpoint:    "/discover/movie",
			Params:      p.params("sort_by", "popularity.desc", "primary_release_year", y),
			PageBudget:  def,
			Label:       "Archive: " + y,
			StableOrder: true,
		})
	}
	return out
}

func (p *Planner) tvShows() []Descriptor {
	key := catalog.TVShows.Key
	def, global := p.config.DefaultBudget, p.config.GlobalBudget

	out := []Descriptor{
		{Category: key, Endpoint: "/trending/tv/day", Params: p.params(), PageBudget: def, Label: "Trending TV (today)", StableOrder: true},
		{Category: key, Endpoint: "/trending/tv/week", Params: p.params(), PageBudget: def, Label: "Trending TV (week)", StableOrder: true},
		{Category: key, Endpoint: "/tv/popular", Params: p.params(), PageBudget: global, Label: "Popular TV series", StableOrder: true},
		{Category: key, Endpoint: "/tv/top_rated", Params: p.params(), PageBudget: def, Label: "Top rated TV series"},
		{Category: key, Endpoint: "/tv/on_the_air", Params: p.params(), PageBudget: def, Label: "On the air", StableOrder: true},
	}

	for _, s := range p.config.Slices {
		out = append(out, Descriptor{
			Category: key,
			Endpoint: "/discover/tv",
			Params: p.params(
				"sort_by", "popularity.desc",
				"watch_region", s.Region,
				"with_original_language", s.Language,
			),
			PageBudget:  def,
			Label:       "TV slice: " + sliceLabel(s),
			StableOrder: true,
		})
	}
	return out
}

func (p *Planner) animeSeries() []Descriptor {
	key := catalog.AnimeSeries.Key
	budget := p.config.AnimeBudget

	return []Descriptor{
		{
			Category:    key,
			Endpoint:    "/discover/tv",
			Params:      p.params("sort_by", "popularity.desc", "with_genres", "16", "with_origin_country", "JP"),
			PageBudget:  budget,
			Label:       "Anime (JP animation)",
			StableOrder: true,
		},
		{
			Category:    key,
			Endpoint:    "/discover/tv",
			Params:      p.params("sort_by", "popularity.desc", "with_keywords", "210024"),
			PageBudget:  budget,
			Label:       "Anime (keyword)",
			StableOrder: true,
		},
		{
			Category:    key,
			Endpoint:    "/discover/tv",
			Params:      p.params("sort_by", "popularity.desc", "with_genres", "16", "with_origin_country", "KR"),
			PageBudget:  budget,
			Label:       "Anime (KR animation)",
			StableOrder: true,
		},
	}
}

func (p *Planner) animeMovies() []Descriptor {
	return []Descriptor{{
		Category:    catalog.AnimeMovies.Key,
		Endpoint:    "/discover/movie",
		Params:      p.params("sort_by", "popularity.desc", "with_genres", "16", "with_origin_country", "JP"),
		PageBudget:  p.config.AnimeMovieBudget,
		Label:       "Anime movies (JP)",
		StableOrder: true,
	}}
}

// channels returns the TV scan whose results carry network references.
// The scan is never stopped early: its items are not channel records, so
// "known" has no meaning for them.
func (p *Planner) channels() []Descriptor {
	return []Descriptor{{
		Category:   catalog.Channels.Key,
		Endpoint:   "/discover/tv",
		Params:     p.params("sort_by", "popularity.desc"),
		PageBudget: p.config.ChannelScanBudget,
		Label:      "Network discovery scan",
	}}
}

func sliceLabel(s Slice) string {
	if s.Label != "" {
		return s.Label
	}
	return fmt.Sprintf("%s-%s", s.Region, s.Language)
}
