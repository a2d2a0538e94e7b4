// Package catalog defines the synchronized categories, their sheet schemas,
// and the normalization of TMDB result objects into persisted records.
package catalog

// ColumnKind controls how the snapshot writer types a cell.
type ColumnKind int

const (
	// KindText is written as a string cell.
	KindText ColumnKind = iota
	// KindInt is written as an integer cell when the value parses.
	KindInt
	// KindFloat is written as a numeric cell when the value parses.
	KindFloat
)

// Column is one header of a category sheet.
type Column struct {
	Name string
	Kind ColumnKind
}

// Header names shared between the reader, the writer and the normalizers.
const (
	ColTMDBID        = "TMDB ID"
	ColNetworkID     = "Network ID"
	ColTitle         = "Title"
	ColOverview      = "Overview"
	ColReleaseDate   = "Release Date"
	ColFirstAirDate  = "First Air Date"
	ColRating        = "Rating (TMDB)"
	ColVoteCount     = "Vote Count"
	ColPopularity    = "Popularity"
	ColLanguage      = "Language"
	ColGenres        = "Genres"
	ColOriginCountry = "Origin Country"
	ColIsAnime       = "Is Anime"
	ColCinebyURL     = "Cineby URL"
	ColCinebyEp1URL  = "Cineby Ep1 URL"
	ColVidkingEmbed  = "Vidking Embed"
	ColPoster        = "Poster"
	ColBackdrop      = "Backdrop"
	ColAdult         = "Adult"
	ColName          = "Name"
	ColCountry       = "Country"
	ColHeadquarters  = "Headquarters"
	ColHomepage      = "Homepage"
	ColTMDBPage      = "TMDB Page"
	ColLogo          = "Logo"
)

// Category is one synchronized dataset, persisted as one sheet.
type Category struct {
	// Key is the stable machine name used in logs, metrics and the run ledger.
	Key string

	// Sheet is the workbook sheet name. It must match existing stores exactly.
	Sheet string

	// IDColumn names the identifier column of the sheet.
	IDColumn string

	// Columns is the header row, in order.
	Columns []Column

	// URLColumn is the column consumed by the downstream link wrapper.
	URLColumn string
}

// Headers returns the column names in order.
func (c Category) Headers() []string {
	out := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		out[i] = col.Name
	}
	return out
}

// ColumnKind returns the kind of the named column, KindText when unknown.
func (c Category) ColumnKind(name string) ColumnKind {
	for _, col := range c.Columns {
		if col.Name == name {
			return col.Kind
		}
	}
	return KindText
}

var movieColumns = []Column{
	{ColTMDBID, KindInt},
	{ColTitle, KindText},
	{ColOverview, KindText},
	{ColReleaseDate, KindText},
	{ColRating, KindFloat},
	{ColVoteCount, KindInt},
	{ColPopularity, KindFloat},
	{ColLanguage, KindText},
	{ColGenres, KindText},
	{ColCinebyURL, KindText},
	{ColVidkingEmbed, KindText},
	{ColPoster, KindText},
	{ColAdult, KindText},
}

var tvColumns = []Column{
	{ColTMDBID, KindInt},
	{ColTitle, KindText},
	{ColOverview, KindText},
	{ColFirstAirDate, KindText},
	{ColRating, KindFloat},
	{ColVoteCount, KindInt},
	{ColPopularity, KindFloat},
	{ColLanguage, KindText},
	{ColGenres, KindText},
	{ColOriginCountry, KindText},
	{ColCinebyURL, KindText},
	{ColCinebyEp1URL, KindText},
	{ColVidkingEmbed, KindText},
	{ColPoster, KindText},
}

var channelColumns = []Column{
	{ColNetworkID, KindInt},
	{ColName, KindText},
	{ColCountry, KindText},
	{ColHeadquarters, KindText},
	{ColHomepage, KindText},
	{ColTMDBPage, KindText},
	{ColLogo, KindText},
}

// The synchronized categories. Sheet names are part of the store format.
var (
	Movies = Category{
		Key:       "movies",
		Sheet:     "🎬 Movies",
		IDColumn:  ColTMDBID,
		Columns:   movieColumns,
		URLColumn: ColVidkingEmbed,
	}
	TVShows = Category{
		Key:       "tv_shows",
		Sheet:     "📺 TV Shows",
		IDColumn:  ColTMDBID,
		Columns:   tvColumns,
		URLColumn: ColVidkingEmbed,
	}
	AnimeSeries = Category{
		Key:       "anime_series",
		Sheet:     "🎌 Anime (Series)",
		IDColumn:  ColTMDBID,
		Columns:   tvColumns,
		URLColumn: ColVidkingEmbed,
	}
	AnimeMovies = Category{
		Key:       "anime_movies",
		Sheet:     "🎌 Anime Movies",
		IDColumn:  ColTMDBID,
		Columns:   movieColumns,
		URLColumn: ColVidkingEmbed,
	}
	Channels = Category{
		Key:       "channels",
		Sheet:     "📡 Channels",
		IDColumn:  ColNetworkID,
		Columns:   channelColumns,
		URLColumn: ColHomepage,
	}
)

// All returns the categories in synchronization order.
func All() []Category {
	return []Category{Movies, TVShows, AnimeSeries, AnimeMovies, Channels}
}

// ByKey looks a category up by its key or sheet name.
func ByKey(key string) (Category, bool) {
	for _, c := range All() {
		if c.Key == key || c.Sheet == key {
			return c, true
		}
	}
	return Category{}, false
}
