// Package sheets turns spreadsheet bytes into a grid of raw cell values.
package sheets

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// zipMagic prefixes every OOXML workbook (xlsx, xlsm).
var zipMagic = []byte("PK\x03\x04")

// Sheet is one worksheet: rows of cells, each cell an arbitrary value.
type Sheet struct {
	Name string
	Rows [][]any
}

// Reader parses workbook bytes. It is stateless and safe for concurrent use.
type Reader struct {
	// IncludeHyperlinks appends each cell's hyperlink target after the cell
	// value so links hidden behind display text are visible to scanners.
	IncludeHyperlinks bool
}

// NewReader returns a reader that also surfaces hyperlink targets.
func NewReader() *Reader {
	return &Reader{IncludeHyperlinks: true}
}

// Parse detects the format from the content and returns every sheet.
// OOXML workbooks go through excelize; anything else is read as CSV.
func (r *Reader) Parse(data []byte) ([]Sheet, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return r.parseWorkbook(data)
	}
	return parseCSV(data)
}

func (r *Reader) parseWorkbook(data []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}

		sheet := Sheet{Name: name, Rows: make([][]any, 0, len(rows))}
		for i, row := range rows {
			cells := make([]any, 0, len(row))
			for j, value := range row {
				cells = append(cells, value)
				if !r.IncludeHyperlinks {
					continue
				}
				axis, err := excelize.CoordinatesToCellName(j+1, i+1)
				if err != nil {
					continue
				}
				if ok, target, err := f.GetCellHyperLink(name, axis); err == nil && ok && target != "" {
					cells = append(cells, target)
				}
			}
			sheet.Rows = append(sheet.Rows, cells)
		}
		out = append(out, sheet)
	}
	return out, nil
}

// parseCSV reads a single-sheet CSV export. Ragged rows are allowed.
func parseCSV(data []byte) ([]Sheet, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	sheet := Sheet{Name: "csv"}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		cells := make([]any, len(record))
		for i, v := range record {
			cells[i] = v
		}
		sheet.Rows = append(sheet.Rows, cells)
	}
	return []Sheet{sheet}, nil
}

// CellString coerces a raw cell value to text. Absent cells become "".
func CellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case []byte:
		return string(c)
	case bool:
		return strconv.FormatBool(c)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case fmt.Stringer:
		return c.String()
	default:
		return fmt.Sprint(c)
	}
}
