package core

// spreadsheet.go reads uploaded workbooks. Only the first sheet is
// consulted; the first non-empty row is the header.

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"
)

// MaxUploadBytes caps the size of an uploaded workbook.
const MaxUploadBytes = 25 << 20 // 25 MiB

// SheetData is the raw tabular content of an upload before normalization.
type SheetData struct {
	Header []string
	Rows   [][]string
}

// ParseSheet reads the first sheet of an xlsx workbook. Legacy binary .xls
// files are not zip archives and are rejected with a validation error, as is
// any stream excelize cannot open.
func ParseSheet(r io.Reader) (*SheetData, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, Validationf("not a valid xlsx workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, Validationf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, Validationf("not a valid xlsx workbook: %v", err)
	}

	// Skip leading blank rows before the header.
	start := 0
	for start < len(rows) && rowBlank(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return nil, Validationf("the sheet contains no data rows")
	}

	data := &SheetData{Header: rows[start]}
	for _, row := range rows[start+1:] {
		if rowBlank(row) {
			continue
		}
		data.Rows = append(data.Rows, row)
	}
	if len(data.Rows) == 0 {
		return nil, Validationf("the sheet contains no data rows below the header")
	}
	return data, nil
}

func rowBlank(cells []string) bool {
	for _, c := range cells {
		if CleanCell(c) != "" {
			return false
		}
	}
	return true
}

// NormalizeSheet maps a parsed sheet through the field registry. Returns the
// header map, the normalized rows, and the count of rows skipped for a
// missing business key.
func NormalizeSheet(data *SheetData) (*HeaderMap, []NormalizedRow, int, error) {
	hm, err := MapHeaders(data.Header)
	if err != nil {
		return nil, nil, 0, err
	}
	rows := NormalizeRows(hm, data.Rows)
	skipped := len(data.Rows) - len(rows)
	return hm, rows, skipped, nil
}

// ReadUpload parses and normalizes an uploaded workbook in one step, taking
// an import slot for the duration of the parse. fiscalYear may be empty, in
// which case the year inferred from an FY-qualified header is returned.
func (s *Service) ReadUpload(ctx context.Context, r io.Reader, fiscalYear string) ([]NormalizedRow, int, string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, 0, "", err
	}
	defer s.limiter.Release()

	data, err := ParseSheet(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, 0, "", err
	}

	hm, rows, skipped, err := NormalizeSheet(data)
	if err != nil {
		return nil, 0, "", err
	}

	if fiscalYear == "" {
		fiscalYear = hm.FiscalYear
	}
	if fiscalYear == "" && len(rows) > 0 {
		if fy, ok := FiscalYearFromUID(rows[0].UID); ok {
			fiscalYear = fy
		}
	}
	return rows, skipped, fiscalYear, nil
}
