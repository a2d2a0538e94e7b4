package snapshot

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/cinebyhub/catalog-sync/internal/fsutil"
	"github.com/cinebyhub/catalog-sync/pkg/catalog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

var sheetRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "catalog_store_rows",
	Help: "Rows written per category sheet",
}, []string{"category"})

const (
	defaultSheetName = "Sheet1"
	tempSheetName    = "~catalog-sync-tmp"
)

// Writer persists category sheets to the store.
type Writer struct {
	path   string
	logger zerolog.Logger
}

// NewWriter creates a writer for the workbook at path.
func NewWriter(path string) *Writer {
	return &Writer{
		path:   path,
		logger: log.With().Str("component", "snapshot").Logger(),
	}
}

// WriteCategories replaces the given categories' sheets and leaves every
// other sheet in an existing workbook untouched. The file is replaced
// atomically. An unreadable existing workbook is replaced by a fresh one.
func (w *Writer) WriteCategories(sheets ...Sheet) error {
	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	for _, s := range sheets {
		if err := writeSheet(f, s); err != nil {
			return fmt.Errorf("write sheet %s: %w", s.Category.Sheet, err)
		}
		sheetRows.WithLabelValues(s.Category.Key).Set(float64(len(s.Records)))
	}

	if len(sheets) > 0 {
		if idx, err := f.GetSheetIndex(defaultSheetName); err == nil && idx >= 0 && !writes(sheets, defaultSheetName) {
			if err := f.DeleteSheet(defaultSheetName); err != nil {
				return fmt.Errorf("remove default sheet: %w", err)
			}
		}
		if idx, err := f.GetSheetIndex(sheets[0].Category.Sheet); err == nil && idx >= 0 {
			f.SetActiveSheet(idx)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	if err := fsutil.WriteBytes(w.path, buf.Bytes()); err != nil {
		return err
	}

	w.logger.Debug().
		Str("path", w.path).
		Int("sheets", len(sheets)).
		Msg("Store written")
	return nil
}

func (w *Writer) open() (*excelize.File, error) {
	if _, err := os.Stat(w.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return excelize.NewFile(), nil
		}
		return nil, fmt.Errorf("stat store %s: %w", w.path, err)
	}
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Existing store unreadable, writing a fresh workbook")
		return excelize.NewFile(), nil
	}
	return f, nil
}

func writes(sheets []Sheet, name string) bool {
	for _, s := range sheets {
		if s.Category.Sheet == name {
			return true
		}
	}
	return false
}

// writeSheet streams s into a temporary sheet and swaps it in place of the
// category's sheet.
func writeSheet(f *excelize.File, s Sheet) error {
	c := s.Category
	headers := mergeHeaders(c.Headers(), s.Headers)

	if idx, err := f.GetSheetIndex(tempSheetName); err == nil && idx >= 0 {
		if err := f.DeleteSheet(tempSheetName); err != nil {
			return err
		}
	}
	if _, err := f.NewSheet(tempSheetName); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(tempSheetName)
	if err != nil {
		return err
	}

	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := sw.SetRow("A1", row); err != nil {
		return err
	}

	for n, rec := range s.Records {
		row := make([]interface{}, len(headers))
		for i, h := range headers {
			row[i] = cellValue(c.ColumnKind(h), rec.Fields[h])
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	if idx, err := f.GetSheetIndex(c.Sheet); err == nil && idx >= 0 {
		if err := f.DeleteSheet(c.Sheet); err != nil {
			return err
		}
	}
	return f.SetSheetName(tempSheetName, c.Sheet)
}

// mergeHeaders returns the schema columns followed by any extra columns the
// store already carried, so foreign columns survive a rewrite.
func mergeHeaders(schema, existing []string) []string {
	out := append([]string(nil), schema...)
	have := make(map[string]bool, len(out))
	for _, h := range out {
		have[h] = true
	}
	for _, h := range existing {
		if h == "" || have[h] {
			continue
		}
		have[h] = true
		out = append(out, h)
	}
	return out
}

// cellValue types v for the column kind; values that do not parse stay text.
func cellValue(kind catalog.ColumnKind, v string) interface{} {
	if v == "" {
		return nil
	}
	switch kind {
	case catalog.KindInt:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		if fl, err := strconv.ParseFloat(v, 64); err == nil && fl == float64(int64(fl)) {
			return int64(fl)
		}
	case catalog.KindFloat:
		if fl, err := strconv.ParseFloat(v, 64); err == nil {
			return fl
		}
	}
	return v
}
