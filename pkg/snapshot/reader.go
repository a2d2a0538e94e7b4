package snapshot

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cinebyhub/catalog-sync/pkg/catalog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// Reader loads category sheets from the store.
type Reader struct {
	path   string
	logger zerolog.Logger
}

// NewReader creates a reader for the workbook at path.
func NewReader(path string) *Reader {
	return &Reader{
		path:   path,
		logger: log.With().Str("component", "snapshot").Logger(),
	}
}

// Path returns the store location.
func (r *Reader) Path() string {
	return r.path
}

// Read returns the category's records and their id set. A missing store or
// sheet is empty state. A store that exists but cannot be read, or a sheet
// without its id column, returns an error wrapping ErrUnusable: the caller
// must not rewrite that category.
func (r *Reader) Read(c catalog.Category) (Sheet, map[int64]struct{}, error) {
	sheet, err := r.Load(c)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		r.logger.Info().Str("category", c.Key).Msg("No store yet, starting empty")
	case errors.Is(err, ErrSheetNotFound):
		r.logger.Info().Str("category", c.Key).Msg("Sheet missing, starting empty")
	default:
		r.logger.Warn().Err(err).Str("category", c.Key).Msg("Store unreadable, category left untouched")
		return Sheet{Category: c}, map[int64]struct{}{}, fmt.Errorf("%w: %w", ErrUnusable, err)
	}
	return sheet, sheet.IDs(), nil
}

// Load reads one category sheet and reports why it could not.
func (r *Reader) Load(c catalog.Category) (Sheet, error) {
	empty := Sheet{Category: c}

	if _, err := os.Stat(r.path); err != nil {
		return empty, err
	}

	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return empty, fmt.Errorf("open store %s: %w", r.path, err)
	}
	defer f.Close()

	return readSheet(f, c)
}

func readSheet(f *excelize.File, c catalog.Category) (Sheet, error) {
	empty := Sheet{Category: c}

	if idx, err := f.GetSheetIndex(c.Sheet); err != nil || idx < 0 {
		return empty, fmt.Errorf("%w: %s", ErrSheetNotFound, c.Sheet)
	}

	rows, err := f.GetRows(c.Sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return empty, fmt.Errorf("read sheet %s: %w", c.Sheet, err)
	}
	if len(rows) == 0 {
		return empty, nil
	}

	headers := make([]string, 0, len(rows[0]))
	for _, h := range rows[0] {
		headers = append(headers, strings.TrimSpace(h))
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}

	idCol := -1
	for i, h := range headers {
		if h == c.IDColumn {
			idCol = i
			break
		}
	}

	sheet := Sheet{Category: c, Headers: headers}
	if idCol < 0 {
		if len(headers) == 0 && !hasData(rows[1:]) {
			return sheet, nil
		}
		return sheet, fmt.Errorf("%w: %s lacks %q", ErrNoIDColumn, c.Sheet, c.IDColumn)
	}

	seen := make(map[int64]struct{}, len(rows))
	skipped := 0
	for _, row := range rows[1:] {
		if idCol >= len(row) {
			skipped++
			continue
		}
		id, ok := catalog.ParseID(row[idCol])
		if !ok {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			skipped++
			continue
		}
		seen[id] = struct{}{}

		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(row) {
				fields[h] = row[i]
			} else {
				fields[h] = ""
			}
		}
		fields[c.IDColumn] = catalog.FormatID(id)
		sheet.Records = append(sheet.Records, catalog.Record{ID: id, Fields: fields})
	}

	if skipped > 0 {
		log.Debug().
			Str("component", "snapshot").
			Str("category", c.Key).
			Int("skipped", skipped).
			Msg("Skipped rows without a usable id")
	}
	return sheet, nil
}

func hasData(rows [][]string) bool {
	for _, row := range rows {
		if !blank(row) {
			return true
		}
	}
	return false
}
