package core

// convert.go provides type coercion for spreadsheet cell values.
//
// These functions handle the messy reality of user-maintained workbooks:
//   - Multiple date formats (US, EU, ISO, Excel serial numbers)
//   - Currency symbols and thousand separators in numbers
//   - Excel formula prefixes (="value")
//   - Common artifacts (BOM, stray quotes)
//
// Coercion is fail-soft: a value that cannot be converted yields an invalid
// Value rather than an error, so one bad cell never sinks a whole row.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006", "2-Jan-2006", "2-Jan-06",
		"20060102",
	}
)

// excelEpoch is day zero of the 1900 date system. Serial 1 is 1900-01-01;
// the offset bakes in Excel's phantom 1900-02-29.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseDate coerces a cell to a date Value. Supports the common textual
// layouts, 2-digit years with pivot, and raw Excel serial numbers.
func ParseDate(s string) Value {
	s = CleanCell(s)
	if s == "" {
		return Value{Kind: KindDate}
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return DateValue(t)
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	currentYear := time.Now().Year()
	pivotYear := currentYear + TwoDigitYearPivot

	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return DateValue(t)
		}
	}

	// Excel serial date: a bare number in a plausible range (1925..2078).
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 9000 && serial < 65000 {
		return DateValue(excelEpoch.AddDate(0, 0, int(serial)))
	}

	return Value{Kind: KindDate}
}

// ParseNumber coerces a cell to a numeric Value.
// Handles currency symbols, thousands separators, and accounting format
// (parentheses for negative).
func ParseNumber(s string) Value {
	s = CleanCell(s)
	if s == "" {
		return Value{Kind: KindNumber}
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Remove common currency symbols and thousands separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, "₹", "") // Rupee
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return Value{Kind: KindNumber}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{Kind: KindNumber}
	}
	return NumberValue(f)
}

// ParseText coerces a cell to a text Value. Blank cells are invalid.
func ParseText(s string) Value {
	s = CleanCell(s)
	if s == "" {
		return Value{Kind: KindText}
	}
	return TextValue(s)
}

// Coerce converts a raw cell into a Value of the given kind.
func Coerce(kind FieldKind, raw string) Value {
	switch kind {
	case KindDate:
		return ParseDate(raw)
	case KindNumber:
		return ParseNumber(raw)
	default:
		return ParseText(raw)
	}
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace and a leading BOM
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(s)

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
