package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// External URL bases used when building record links.
const (
	PosterBase   = "https://image.tmdb.org/t/p/w185"
	BackdropBase = "https://image.tmdb.org/t/p/original"
	CinebyBase   = "https://www.cineby.gd"
	VidkingBase  = "https://www.vidking.net"
	NetworkPage  = "https://www.themoviedb.org/network/"
)

// Normalize converts a fetched item into a record for the given category.
func Normalize(c Category, it Item) Record {
	switch c.Key {
	case Channels.Key:
		return NormalizeChannel(it)
	case TVShows.Key:
		return NormalizeTV(it, false)
	case AnimeSeries.Key:
		return NormalizeTV(it, true)
	default:
		return NormalizeMovie(it)
	}
}

// NormalizeMovie builds a movie row.
func NormalizeMovie(it Item) Record {
	id := FormatID(it.ID)
	return Record{
		ID: it.ID,
		Fields: map[string]string{
			ColTMDBID:       id,
			ColTitle:        firstNonEmpty(it.Title, it.Name),
			ColOverview:     it.Overview,
			ColReleaseDate:  it.ReleaseDate,
			ColRating:       formatRounded(it.VoteAverage, 1),
			ColVoteCount:    strconv.Itoa(it.VoteCount),
			ColPopularity:   formatRounded(it.Popularity, 2),
			ColLanguage:     it.OriginalLanguage,
			ColGenres:       GenreNames(it.GenreIDs),
			ColCinebyURL:    fmt.Sprintf("%s/movie/%s", CinebyBase, id),
			ColVidkingEmbed: fmt.Sprintf("%s/embed/movie/%s", VidkingBase, id),
			ColPoster:       imageURL(PosterBase, it.PosterPath),
			ColBackdrop:     imageURL(BackdropBase, it.BackdropPath),
			ColAdult:        yesNo(it.Adult),
		},
	}
}

// NormalizeTV builds a TV row; anime marks the Is Anime column.
func NormalizeTV(it Item, anime bool) Record {
	id := FormatID(it.ID)
	return Record{
		ID: it.ID,
		Fields: map[string]string{
			ColTMDBID:        id,
			ColTitle:         firstNonEmpty(it.Name, it.Title),
			ColOverview:      it.Overview,
			ColFirstAirDate:  it.FirstAirDate,
			ColRating:        formatRounded(it.VoteAverage, 1),
			ColVoteCount:     strconv.Itoa(it.VoteCount),
			ColPopularity:    formatRounded(it.Popularity, 2),
			ColLanguage:      it.OriginalLanguage,
			ColGenres:        GenreNames(it.GenreIDs),
			ColOriginCountry: strings.Join(it.OriginCountry, ", "),
			ColIsAnime:       yesNo(anime),
			ColCinebyURL:     fmt.Sprintf("%s/tv/%s", CinebyBase, id),
			ColCinebyEp1URL:  fmt.Sprintf("%s/tv/%s/1/1", CinebyBase, id),
			ColVidkingEmbed:  fmt.Sprintf("%s/embed/tv/%s/1/1", VidkingBase, id),
			ColPoster:        imageURL(PosterBase, it.PosterPath),
			ColBackdrop:      imageURL(BackdropBase, it.BackdropPath),
		},
	}
}

// NormalizeChannel builds a network row from a /network/{id} response.
func NormalizeChannel(it Item) Record {
	id := FormatID(it.ID)
	return Record{
		ID: it.ID,
		Fields: map[string]string{
			ColNetworkID:    id,
			ColName:         it.Name,
			ColCountry:      strings.Join(it.OriginCountry, ", "),
			ColLogo:         imageURL(PosterBase, it.LogoPath),
			ColHeadquarters: it.Headquarters,
			ColHomepage:     it.Homepage,
			ColTMDBPage:     NetworkPage + id,
		},
	}
}

// ParseID parses an identifier cell. Spreadsheet tools sometimes render
// integers as "123.0", which is accepted.
func ParseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, id != 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), f != 0
}

// FormatID renders an id the way the store writes it.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatRounded(v float64, places int) string {
	p := math.Pow(10, float64(places))
	return strconv.FormatFloat(math.Round(v*p)/p, 'f', -1, 64)
}

func imageURL(base, path string) string {
	if path == "" {
		return ""
	}
	return base + path
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
