package core

import (
	"time"
)

// ServiceRecord is one row of the service master: a vendor/service cost
// record identified by its stable business key (UID). The UID is assigned by
// users and survives re-uploads; it is independent of the database ID.
type ServiceRecord struct {
	ID              int64      `json:"id"`
	UID             string     `json:"uid"`
	Vendor          string     `json:"vendor"`
	Service         string     `json:"service"`
	Description     string     `json:"description"`
	Tower           string     `json:"tower"`
	BudgetHead      string     `json:"budgetHead"`
	Contract        string     `json:"contract"`
	POEntity        string     `json:"poEntity"`
	AllocationBasis string     `json:"allocationBasis"`
	InitiativeType  string     `json:"initiativeType"`
	ServiceType     string     `json:"serviceType"`
	Currency        string     `json:"currency"`
	StartDate       *time.Time `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	RenewalDate     *time.Time `json:"renewalDate"`
	Remarks         string     `json:"remarks"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// FiscalYearFinancial holds the budget and actual amounts for one service in
// one fiscal year. At most one row exists per (service, fiscal year); it is
// created lazily on the first write for that year.
type FiscalYearFinancial struct {
	ID         int64   `json:"id"`
	ServiceID  int64   `json:"serviceId"`
	FiscalYear string  `json:"fiscalYear"`
	Budget     float64 `json:"budget"`
	Actuals    float64 `json:"actuals"`
}

// ServiceWithFinancial pairs a service record with its financial row for the
// fiscal year a query was scoped to. Financial is nil when no row exists yet.
type ServiceWithFinancial struct {
	Service   ServiceRecord        `json:"service"`
	Financial *FiscalYearFinancial `json:"financial"`
}

// BatchStatus is the lifecycle state of a staged re-upload.
// STAGED is the only non-terminal state: once a batch is CONFIRMED or
// CANCELLED no further transitions are permitted.
type BatchStatus string

const (
	BatchStaged    BatchStatus = "STAGED"
	BatchConfirmed BatchStatus = "CONFIRMED"
	BatchCancelled BatchStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s BatchStatus) Terminal() bool {
	return s == BatchConfirmed || s == BatchCancelled
}

// ImportBatch represents one staged re-upload awaiting an admin decision.
type ImportBatch struct {
	ID         string      `json:"id"`
	Status     BatchStatus `json:"status"`
	FileName   string      `json:"fileName"`
	FiscalYear string      `json:"fiscalYear"`
	CreatedBy  string      `json:"createdBy"`
	Summary    DiffSummary `json:"summary"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// StagingChange is one persisted diff row within a batch: the classification
// for a single business key plus the per-field old/new pairs. Immutable once
// written.
type StagingChange struct {
	ID            int64                `json:"id"`
	BatchID       string               `json:"batchId"`
	UID           string               `json:"key"`
	Kind          ChangeKind           `json:"classification"`
	ChangedFields []string             `json:"changedFields"`
	Diff          map[string]FieldDiff `json:"diff"`
}

// AuditLogEntry records a single applied field mutation. Append-only; it is
// the restore source of truth, so values are stored as text.
type AuditLogEntry struct {
	ID        int64     `json:"id"`
	Entity    Entity    `json:"entity"`
	RecordID  int64     `json:"recordId"`
	Field     string    `json:"field"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
	ChangedBy string    `json:"changedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActivityLogEntry is the coarse action log ("IMPORT_BUDGET",
// "REUPLOAD_CONFIRM", ...) kept for operational visibility, not restore.
type ActivityLogEntry struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"createdAt"`
}

// Activity log actions.
const (
	ActivityImportBudget    = "IMPORT_BUDGET"
	ActivityImportBOA       = "IMPORT_BOA"
	ActivityReuploadStage   = "REUPLOAD_STAGE"
	ActivityReuploadConfirm = "REUPLOAD_CONFIRM"
	ActivityReuploadCancel  = "REUPLOAD_CANCEL"
	ActivityRecordCreate    = "RECORD_CREATE"
	ActivityRecordUpdate    = "RECORD_UPDATE"
	ActivityRecordDelete    = "RECORD_DELETE"
	ActivityAuditRestore    = "AUDIT_RESTORE"
)

// RowFailure describes one rejected row from a direct import.
type RowFailure struct {
	Line   int    `json:"line"`
	UID    string `json:"uid,omitempty"`
	Reason string `json:"reason"`
}

// ImportResult is the aggregate outcome of a direct (non-staged) import.
// A malformed row never aborts the remaining rows; it is counted here.
type ImportResult struct {
	Total    int          `json:"total"`
	Success  int          `json:"success"`
	Failed   int          `json:"failed"`
	Skipped  int          `json:"skipped"`
	Failures []RowFailure `json:"failures,omitempty"`
}

// ImportLogEntry records one direct import run for traceability.
type ImportLogEntry struct {
	ID         int64        `json:"id"`
	FileName   string       `json:"fileName"`
	FiscalYear string       `json:"fiscalYear"`
	Total      int          `json:"total"`
	Success    int          `json:"success"`
	Failed     int          `json:"failed"`
	Failures   []RowFailure `json:"failures,omitempty"`
	ImportedBy string       `json:"importedBy"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// LookupKind identifies one master-data value list.
type LookupKind string

const (
	LookupTower           LookupKind = "tower"
	LookupBudgetHead      LookupKind = "budget_head"
	LookupVendor          LookupKind = "vendor"
	LookupPOEntity        LookupKind = "po_entity"
	LookupAllocationBasis LookupKind = "allocation_basis"
	LookupServiceType     LookupKind = "service_type"
)

// LookupKinds lists every valid lookup kind in stable order.
var LookupKinds = []LookupKind{
	LookupTower, LookupBudgetHead, LookupVendor,
	LookupPOEntity, LookupAllocationBasis, LookupServiceType,
}

// ValidLookupKind reports whether k names a known lookup list.
func ValidLookupKind(k LookupKind) bool {
	for _, known := range LookupKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Lookup is one master-data value. Rows created through the API carry
// IsUserDefined=true; values merely observed in tracker data are surfaced
// with IsUserDefined=false instead of being stored under synthetic IDs.
type Lookup struct {
	ID            int64      `json:"id"`
	Kind          LookupKind `json:"kind"`
	Name          string     `json:"name"`
	IsUserDefined bool       `json:"isUserDefined"`
}

// TrackerQuery describes a paginated, searchable tracker listing request.
type TrackerQuery struct {
	FiscalYear string
	Search     string
	SortField  string
	SortDesc   bool
	Page       int
	PageSize   int
}

// TrackerRow is one flattened row of the tracker grid for a fiscal year.
type TrackerRow struct {
	ID              int64      `json:"id"`
	FiscalYear      string     `json:"fiscalYear"`
	UID             string     `json:"uid"`
	Vendor          string     `json:"vendor"`
	Service         string     `json:"service"`
	Description     string     `json:"description"`
	Tower           string     `json:"tower"`
	BudgetHead      string     `json:"budgetHead"`
	Contract        string     `json:"contract"`
	POEntity        string     `json:"poEntity"`
	AllocationBasis string     `json:"allocationBasis"`
	InitiativeType  string     `json:"initiativeType"`
	ServiceType     string     `json:"serviceType"`
	Currency        string     `json:"currency"`
	StartDate       *time.Time `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	RenewalDate     *time.Time `json:"renewalDate"`
	Remarks         string     `json:"remarks"`
	Budget          float64    `json:"budget"`
	Actuals         float64    `json:"actuals"`
	Variance        float64    `json:"variance"`
}

// TrackerPage is one page of tracker rows plus pagination metadata.
type TrackerPage struct {
	Rows       []TrackerRow `json:"rows"`
	TotalRows  int64        `json:"totalRows"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}

// AuditFilter narrows an audit log listing.
type AuditFilter struct {
	Entity   Entity
	RecordID int64
	Field    string
	Limit    int
	Offset   int
}
