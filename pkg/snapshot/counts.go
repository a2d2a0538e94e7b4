package snapshot

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// CountRows returns the number of data rows per sheet of the workbook at
// path. The header row and fully blank rows are not counted.
func CountRows(path string) (map[string]int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	defer f.Close()

	counts := make(map[string]int)
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		n := 0
		for i, row := range rows {
			if i == 0 || blank(row) {
				continue
			}
			n++
		}
		counts[name] = n
	}
	return counts, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
