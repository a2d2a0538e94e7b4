package syncer

import (
	"time"
)

// Mode selects how a run treats the existing store.
type Mode string

const (
	// ModeIncremental loads the store, skips known ids and stops early.
	ModeIncremental Mode = "incremental"

	// ModeFull ignores the store and replaces each category's sheet with
	// everything fetched.
	ModeFull Mode = "full"
)

// CategoryResult reports one category of a run.
type CategoryResult struct {
	Category string `json:"category"`
	Sheet    string `json:"sheet"`

	// Existing is the number of rows loaded from the store.
	Existing int `json:"existing"`
	// Fetched counts records received before deduplication.
	Fetched int `json:"fetched"`
	// New counts records appended to the sheet.
	New int `json:"new"`
	// Total is the sheet size after the run.
	Total int `json:"total"`

	Descriptors        int `json:"descriptors"`
	Pages              int `json:"pages"`
	EarlyStops         int `json:"early_stops"`
	DescriptorFailures int `json:"descriptor_failures"`
	// RecordErrors counts per-id detail lookups that were skipped.
	RecordErrors int `json:"record_errors"`

	Duration time.Duration `json:"duration"`

	// Written is false when the category was not persisted.
	Written bool   `json:"written"`
	Error   string `json:"error,omitempty"`
}

// Errors returns the failures counted for this category.
func (r CategoryResult) Errors() int {
	n := r.DescriptorFailures + r.RecordErrors
	if r.Error != "" {
		n++
	}
	return n
}

// Summary is the user-visible report of a run.
type Summary struct {
	RunID      string           `json:"run_id"`
	Mode       Mode             `json:"mode"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Categories []CategoryResult `json:"categories"`
}

// Totals sums fetched, new and error counts across categories.
func (s *Summary) Totals() (fetched, added, errs int) {
	for _, c := range s.Categories {
		fetched += c.Fetched
		added += c.New
		errs += c.Errors()
	}
	return fetched, added, errs
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Counts returns sheet name to total rows for the categories written.
func (s *Summary) Counts() map[string]int {
	out := make(map[string]int, len(s.Categories))
	for _, c := range s.Categories {
		if c.Written {
			out[c.Sheet] = c.Total
		}
	}
	return out
}
