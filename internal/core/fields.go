package core

// fields.go is the single source of truth for which spreadsheet columns map
// to which record fields. The normalizer, diff engine, commit engine, export
// writer, and audit restore all consume this registry; adding a column means
// adding one entry here.

import (
	"strconv"
	"strings"
	"time"
)

// Entity names the owning table of an audited field.
type Entity string

const (
	EntityService   Entity = "ServiceRecord"
	EntityFinancial Entity = "FiscalYearFinancial"
)

// FieldKind selects the comparison and formatting rules for a field.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date"
)

// ChangeKind classifies a row in a staged upload relative to the records
// already on file.
type ChangeKind string

const (
	ChangeNew       ChangeKind = "NEW"
	ChangeModified  ChangeKind = "MODIFIED"
	ChangeUnchanged ChangeKind = "UNCHANGED"
	ChangeRemoved   ChangeKind = "REMOVED"
)

// FieldDiff captures one field's old and new display values. Old is nil for
// rows that do not exist yet; New is nil for removals.
type FieldDiff struct {
	Old *string `json:"old"`
	New *string `json:"new"`
}

// DiffSummary counts rows by change kind for a whole batch.
type DiffSummary struct {
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
}

// Value is a typed cell value after coercion. Valid is false for blank cells
// and values that could not be converted.
type Value struct {
	Kind   FieldKind
	Text   string
	Number float64
	Date   time.Time
	Valid  bool
}

// TextValue builds a valid text Value, trimming surrounding whitespace.
func TextValue(s string) Value {
	return Value{Kind: KindText, Text: strings.TrimSpace(s), Valid: true}
}

// NumberValue builds a valid numeric Value.
func NumberValue(f float64) Value {
	return Value{Kind: KindNumber, Number: f, Valid: true}
}

// DateValue builds a valid date Value.
func DateValue(t time.Time) Value {
	return Value{Kind: KindDate, Date: t, Valid: true}
}

// numberEpsilon is the tolerance for numeric equality. Spreadsheet round
// trips through float cells can perturb the last bits of a value; anything
// closer than this is the same number.
const numberEpsilon = 1e-6

// Equal reports whether two values are the same under the registry's
// comparison rules: trimmed text, numbers within tolerance, dates on the
// same calendar day. Two invalid values are equal regardless of kind.
func (v Value) Equal(o Value) bool {
	if !v.Valid && !o.Valid {
		return true
	}
	if v.Valid != o.Valid || v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindText:
		return strings.TrimSpace(v.Text) == strings.TrimSpace(o.Text)
	case KindNumber:
		d := v.Number - o.Number
		if d < 0 {
			d = -d
		}
		return d < numberEpsilon
	case KindDate:
		return v.Date.Year() == o.Date.Year() &&
			v.Date.Month() == o.Date.Month() &&
			v.Date.Day() == o.Date.Day()
	}
	return false
}

// String renders the value for audit entries and diff payloads. Numbers use
// the shortest representation that round-trips ("1200", not "1200.00");
// dates use ISO 8601 calendar dates.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	switch v.Kind {
	case KindText:
		return strings.TrimSpace(v.Text)
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindDate:
		return v.Date.Format("2006-01-02")
	}
	return ""
}

// Field describes one canonical column: its type, which entity it lives on,
// the header aliases that map to it, and a typed accessor pair. Accessors
// operate on whichever of the two records owns the field; the other argument
// is ignored.
type Field struct {
	Name    string
	Kind    FieldKind
	Entity  Entity
	Aliases []string
	Get     func(*ServiceRecord, *FiscalYearFinancial) Value
	Set     func(*ServiceRecord, *FiscalYearFinancial, Value)
}

func textField(name string, aliases []string, get func(*ServiceRecord) string, set func(*ServiceRecord, string)) Field {
	return Field{
		Name:    name,
		Kind:    KindText,
		Entity:  EntityService,
		Aliases: aliases,
		Get: func(s *ServiceRecord, _ *FiscalYearFinancial) Value {
			t := strings.TrimSpace(get(s))
			if t == "" {
				return Value{Kind: KindText}
			}
			return TextValue(t)
		},
		Set: func(s *ServiceRecord, _ *FiscalYearFinancial, v Value) {
			if !v.Valid {
				set(s, "")
				return
			}
			set(s, strings.TrimSpace(v.Text))
		},
	}
}

func dateField(name string, aliases []string, get func(*ServiceRecord) *time.Time, set func(*ServiceRecord, *time.Time)) Field {
	return Field{
		Name:    name,
		Kind:    KindDate,
		Entity:  EntityService,
		Aliases: aliases,
		Get: func(s *ServiceRecord, _ *FiscalYearFinancial) Value {
			t := get(s)
			if t == nil {
				return Value{Kind: KindDate}
			}
			return DateValue(*t)
		},
		Set: func(s *ServiceRecord, _ *FiscalYearFinancial, v Value) {
			if !v.Valid {
				set(s, nil)
				return
			}
			d := v.Date
			set(s, &d)
		},
	}
}

func financialField(name string, aliases []string, get func(*FiscalYearFinancial) float64, set func(*FiscalYearFinancial, float64)) Field {
	return Field{
		Name:    name,
		Kind:    KindNumber,
		Entity:  EntityFinancial,
		Aliases: aliases,
		Get: func(_ *ServiceRecord, f *FiscalYearFinancial) Value {
			if f == nil {
				return Value{Kind: KindNumber}
			}
			return NumberValue(get(f))
		},
		Set: func(_ *ServiceRecord, f *FiscalYearFinancial, v Value) {
			if f == nil {
				return
			}
			if !v.Valid {
				set(f, 0)
				return
			}
			set(f, v.Number)
		},
	}
}

// Fields is the canonical field registry, in spreadsheet column order.
var Fields = []Field{
	textField("vendor", []string{"vendor", "vendor name", "supplier"},
		func(s *ServiceRecord) string { return s.Vendor },
		func(s *ServiceRecord, v string) { s.Vendor = v }),
	textField("service", []string{"service", "service name"},
		func(s *ServiceRecord) string { return s.Service },
		func(s *ServiceRecord, v string) { s.Service = v }),
	textField("description", []string{"description", "service description", "desc"},
		func(s *ServiceRecord) string { return s.Description },
		func(s *ServiceRecord, v string) { s.Description = v }),
	textField("tower", []string{"tower", "it tower"},
		func(s *ServiceRecord) string { return s.Tower },
		func(s *ServiceRecord, v string) { s.Tower = v }),
	textField("budget_head", []string{"budget head", "budget_head", "budgethead", "head"},
		func(s *ServiceRecord) string { return s.BudgetHead },
		func(s *ServiceRecord, v string) { s.BudgetHead = v }),
	textField("contract", []string{"contract", "contract no", "contract number", "contract reference"},
		func(s *ServiceRecord) string { return s.Contract },
		func(s *ServiceRecord, v string) { s.Contract = v }),
	textField("po_entity", []string{"po entity", "po_entity", "purchasing entity", "entity"},
		func(s *ServiceRecord) string { return s.POEntity },
		func(s *ServiceRecord, v string) { s.POEntity = v }),
	textField("allocation_basis", []string{"allocation basis", "allocation_basis", "allocation"},
		func(s *ServiceRecord) string { return s.AllocationBasis },
		func(s *ServiceRecord, v string) { s.AllocationBasis = v }),
	textField("initiative_type", []string{"initiative type", "initiative_type", "initiative"},
		func(s *ServiceRecord) string { return s.InitiativeType },
		func(s *ServiceRecord, v string) { s.InitiativeType = v }),
	textField("service_type", []string{"service type", "service_type", "type"},
		func(s *ServiceRecord) string { return s.ServiceType },
		func(s *ServiceRecord, v string) { s.ServiceType = v }),
	textField("currency", []string{"currency", "ccy", "curr"},
		func(s *ServiceRecord) string { return s.Currency },
		func(s *ServiceRecord, v string) { s.Currency = v }),
	dateField("start_date", []string{"start date", "start_date", "startdate", "service start date", "contract start"},
		func(s *ServiceRecord) *time.Time { return s.StartDate },
		func(s *ServiceRecord, v *time.Time) { s.StartDate = v }),
	dateField("end_date", []string{"end date", "end_date", "enddate", "contract end"},
		func(s *ServiceRecord) *time.Time { return s.EndDate },
		func(s *ServiceRecord, v *time.Time) { s.EndDate = v }),
	dateField("renewal_date", []string{"renewal date", "renewal_date", "renewal"},
		func(s *ServiceRecord) *time.Time { return s.RenewalDate },
		func(s *ServiceRecord, v *time.Time) { s.RenewalDate = v }),
	textField("remarks", []string{"remarks", "remark", "comments", "notes"},
		func(s *ServiceRecord) string { return s.Remarks },
		func(s *ServiceRecord, v string) { s.Remarks = v }),
	financialField("budget", []string{"budget", "budget amount", "planned"},
		func(f *FiscalYearFinancial) float64 { return f.Budget },
		func(f *FiscalYearFinancial, v float64) { f.Budget = v }),
	financialField("actuals", []string{"actuals", "actual", "actual amount", "spent"},
		func(f *FiscalYearFinancial) float64 { return f.Actuals },
		func(f *FiscalYearFinancial, v float64) { f.Actuals = v }),
}

// fieldsByName is built once at init from the registry.
var fieldsByName = func() map[string]*Field {
	m := make(map[string]*Field, len(Fields))
	for i := range Fields {
		m[Fields[i].Name] = &Fields[i]
	}
	return m
}()

// FieldByName looks up a registry field by canonical name.
func FieldByName(name string) (*Field, bool) {
	f, ok := fieldsByName[name]
	return f, ok
}

// FieldNames returns the canonical field names in registry order.
func FieldNames() []string {
	names := make([]string, len(Fields))
	for i := range Fields {
		names[i] = Fields[i].Name
	}
	return names
}
