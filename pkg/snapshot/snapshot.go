// Package snapshot reads and writes the catalog store, an .xlsx workbook
// with one sheet per category.
package snapshot

import (
	"errors"

	"github.com/cinebyhub/catalog-sync/pkg/catalog"
)

var (
	// ErrSheetNotFound is returned by Load when the workbook lacks the sheet.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrNoIDColumn is returned by Load when the sheet has rows but no
	// identifier column, so they cannot be merged.
	ErrNoIDColumn = errors.New("sheet has no id column")

	// ErrUnusable wraps every Read failure that leaves existing rows
	// unaccounted for. Rewriting such a category would drop them.
	ErrUnusable = errors.New("store unusable")
)

// Sheet is the persisted state of one category.
type Sheet struct {
	Category catalog.Category

	// Headers is the header row as found in the store. Empty for a category
	// that has never been written.
	Headers []string

	// Records are the rows in store order, unique by id.
	Records []catalog.Record
}

// IDs returns the set of record ids.
func (s Sheet) IDs() map[int64]struct{} {
	set := make(map[int64]struct{}, len(s.Records))
	for _, r := range s.Records {
		set[r.ID] = struct{}{}
	}
	return set
}

// Len returns the number of records.
func (s Sheet) Len() int {
	return len(s.Records)
}
