// Package merge folds freshly fetched records into a category's existing
// records. Identity is the record id alone; existing rows are never
// rewritten and never reordered.
package merge

import (
	"fmt"
	"strings"

	"github.com/cinebyhub/catalog-sync/pkg/catalog"
)

// Policy decides which sighting of a repeated id supplies its values.
type Policy int

const (
	// PolicyFirstSeen keeps the first fetched copy of an id.
	PolicyFirstSeen Policy = iota

	// PolicyLastSeen keeps the position of the first sighting but the
	// values of the last one.
	PolicyLastSeen
)

// String returns the config name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyLastSeen:
		return "last-seen"
	default:
		return "first-seen"
	}
}

// ParsePolicy reads a policy name as used in configuration.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first", "first-seen", "first_seen":
		return PolicyFirstSeen, nil
	case "last", "last-seen", "last_seen":
		return PolicyLastSeen, nil
	default:
		return PolicyFirstSeen, fmt.Errorf("unknown merge policy %q", s)
	}
}

// Stats describes what a merge did.
type Stats struct {
	// Existing is the number of records carried over unchanged.
	Existing int

	// Fetched is the number of records across all batches.
	Fetched int

	// Duplicates counts fetched records whose id repeated within the batches.
	Duplicates int

	// AlreadyKnown counts unique fetched ids already present in existing.
	AlreadyKnown int

	// Added is the number of records appended.
	Added int
}

// Merge returns existing followed by the fetched records whose id is neither
// zero nor already present, deduplicated by id under policy. Neither input
// is modified. len(result) == len(existing) + Stats.Added.
func Merge(existing []catalog.Record, batches [][]catalog.Record, policy Policy) ([]catalog.Record, Stats) {
	stats := Stats{Existing: len(existing)}

	known := make(map[int64]struct{}, len(existing))
	for _, r := range existing {
		known[r.ID] = struct{}{}
	}

	var fresh []catalog.Record
	index := make(map[int64]int)
	knownHit := make(map[int64]bool)

	for _, batch := range batches {
		for _, r := range batch {
			stats.Fetched++
			if r.ID == 0 {
				continue
			}
			if _, ok := known[r.ID]; ok {
				if knownHit[r.ID] {
					stats.Duplicates++
				} else {
					knownHit[r.ID] = true
					stats.AlreadyKnown++
				}
				continue
			}
			if i, ok := index[r.ID]; ok {
				stats.Duplicates++
				if policy == PolicyLastSeen {
					fresh[i] = r
				}
				continue
			}
			index[r.ID] = len(fresh)
			fresh = append(fresh, r)
		}
	}

	out := make([]catalog.Record, 0, len(existing)+len(fresh))
	out = append(out, existing...)
	out = append(out, fresh...)
	stats.Added = len(fresh)
	return out, stats
}

// IDs returns the id set of records.
func IDs(records []catalog.Record) map[int64]struct{} {
	set := make(map[int64]struct{}, len(records))
	for _, r := range records {
		set[r.ID] = struct{}{}
	}
	return set
}
