package core

// normalize.go maps arbitrary spreadsheet headers onto the canonical field
// registry and coerces cell values to their semantic types. It is a pure
// transformation: no persistence, no side effects.

import (
	"regexp"
	"strings"
)

// uidAliases are the header variants that resolve to the business key column.
var uidAliases = []string{"uid", "unique id", "uniqueid", "id", "service uid", "service id"}

// fyColumnRegex matches fiscal-year-qualified financial headers such as
// "FY25 Budget" or "fy26 actuals". Group 1 is the 2-digit year, group 2 the
// field word.
var fyColumnRegex = regexp.MustCompile(`^fy\s*(\d{2})\s+(budget|actuals?)$`)

// uidFYRegex extracts the fiscal-year hint embedded in a business key, e.g.
// "OPX-FY25-0042" carries FY25.
var uidFYRegex = regexp.MustCompile(`FY(\d{2})`)

// HeaderMap resolves canonical field names to column positions for one sheet.
type HeaderMap struct {
	UIDCol int
	// Columns maps canonical field name to column index. A field whose
	// header is absent from the sheet has no entry.
	Columns map[string]int
	// FiscalYear is the year label inferred from an FY-qualified financial
	// header ("FY25 Budget"), empty when the sheet uses plain headers.
	FiscalYear string
}

// NormalizedRow is one spreadsheet row after header resolution and type
// coercion, keyed by canonical field name.
type NormalizedRow struct {
	UID    string
	Values map[string]Value
}

func isUIDHeader(h string) bool {
	for _, a := range uidAliases {
		if h == a {
			return true
		}
	}
	return false
}

// canonicalHeader lowercases a raw header and collapses interior whitespace
// so "Budget  Head" and "budget head" resolve identically.
func canonicalHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(CleanCell(h))), " ")
}

// aliasIndex is built once from the registry: alias -> canonical field name.
var aliasIndex = func() map[string]string {
	m := make(map[string]string)
	for _, f := range Fields {
		for _, a := range f.Aliases {
			m[canonicalHeader(a)] = f.Name
		}
	}
	return m
}()

// MapHeaders resolves a header row against the registry's alias table.
// Returns a ValidationError when no UID column can be found; unrecognized
// headers are ignored, letting users keep their own helper columns.
func MapHeaders(header []string) (*HeaderMap, error) {
	hm := &HeaderMap{UIDCol: -1, Columns: make(map[string]int)}

	for i, raw := range header {
		h := canonicalHeader(raw)
		if h == "" {
			continue
		}

		if hm.UIDCol < 0 && isUIDHeader(h) {
			hm.UIDCol = i
			continue
		}

		if m := fyColumnRegex.FindStringSubmatch(h); m != nil {
			name := "budget"
			if strings.HasPrefix(m[2], "actual") {
				name = "actuals"
			}
			if _, taken := hm.Columns[name]; !taken {
				hm.Columns[name] = i
				hm.FiscalYear = "FY" + m[1]
			}
			continue
		}

		if name, ok := aliasIndex[h]; ok {
			if _, taken := hm.Columns[name]; !taken {
				hm.Columns[name] = i
			}
		}
	}

	if hm.UIDCol < 0 {
		return nil, Validationf("no uid column found in header row")
	}
	return hm, nil
}

// NormalizeRow coerces one raw row through the header map. The second return
// is false when the row carries no business key and must be skipped.
//
// Numeric cells holding blank or "-" placeholders coerce to zero (the sheets
// use them interchangeably); unparseable dates fail soft to an invalid Value.
func NormalizeRow(hm *HeaderMap, cells []string) (NormalizedRow, bool) {
	cell := func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return cells[i]
	}

	uid := CleanCell(cell(hm.UIDCol))
	if uid == "" {
		return NormalizedRow{}, false
	}

	row := NormalizedRow{UID: uid, Values: make(map[string]Value, len(hm.Columns))}
	for name, col := range hm.Columns {
		f, ok := FieldByName(name)
		if !ok {
			continue
		}
		raw := cell(col)
		v := Coerce(f.Kind, raw)
		if f.Kind == KindNumber && !v.Valid {
			if c := CleanCell(raw); c == "" || c == "-" {
				v = NumberValue(0)
			}
		}
		row.Values[name] = v
	}
	return row, true
}

// NormalizeRows maps every data row, dropping rows without a business key.
// Later duplicates of a UID overwrite earlier ones, matching last-write-wins
// spreadsheet editing habits.
func NormalizeRows(hm *HeaderMap, data [][]string) []NormalizedRow {
	out := make([]NormalizedRow, 0, len(data))
	seen := make(map[string]int)
	for _, cells := range data {
		row, ok := NormalizeRow(hm, cells)
		if !ok {
			continue
		}
		if i, dup := seen[row.UID]; dup {
			out[i] = row
			continue
		}
		seen[row.UID] = len(out)
		out = append(out, row)
	}
	return out
}

// FiscalYearFromUID extracts the FY label embedded in a business key.
func FiscalYearFromUID(uid string) (string, bool) {
	m := uidFYRegex.FindStringSubmatch(strings.ToUpper(uid))
	if m == nil {
		return "", false
	}
	return "FY" + m[1], true
}
