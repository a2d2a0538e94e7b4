package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is one persisted row. Identity is ID alone; Fields holds the cell
// values keyed by header name.
type Record struct {
	ID     int64
	Fields map[string]string
}

// Get returns the value of a column, empty when absent.
func (r Record) Get(column string) string {
	return r.Fields[column]
}

// Item is a TMDB result object. It covers the movie, TV and network shapes;
// fields absent from a given shape stay zero.
type Item struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Name             string    `json:"name"`
	OriginalTitle    string    `json:"original_title"`
	OriginalName     string    `json:"original_name"`
	Overview         string    `json:"overview"`
	ReleaseDate      string    `json:"release_date"`
	FirstAirDate     string    `json:"first_air_date"`
	VoteAverage      float64   `json:"vote_average"`
	VoteCount        int       `json:"vote_count"`
	Popularity       float64   `json:"popularity"`
	OriginalLanguage string    `json:"original_language"`
	GenreIDs         []int     `json:"genre_ids"`
	OriginCountry    Countries `json:"origin_country"`
	PosterPath       string    `json:"poster_path"`
	BackdropPath     string    `json:"backdrop_path"`
	LogoPath         string    `json:"logo_path"`
	Headquarters     string    `json:"headquarters"`
	Homepage         string    `json:"homepage"`
	Adult            bool      `json:"adult"`
	Networks         []Ref     `json:"networks"`
}

// Ref is a nested {id, name} reference such as a show's network.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UnmarshalJSON accepts both a bare id and an object.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		return json.Unmarshal(data, &r.ID)
	}
	type plain Ref
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Ref(p)
	return nil
}

// Countries is origin_country: an array on TV results, a string on networks.
type Countries []string

// UnmarshalJSON accepts a string, an array of strings, or null.
func (c *Countries) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = nil
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*c = nil
		} else {
			*c = Countries{s}
		}
		return nil
	case data[0] == '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*c = list
		return nil
	default:
		return fmt.Errorf("origin_country: unexpected JSON %s", data)
	}
}
