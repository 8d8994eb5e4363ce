package core

// store.go declares the persistence contract the engines run against. The
// production implementation lives in internal/store on pgx; tests use the
// in-memory implementation in memstore.go.

import "context"

// Store is the persistence boundary for the service master, staging
// workflow, and logs. Implementations must make InTx atomic: every write
// made through the Store passed to fn is applied in full or not at all.
type Store interface {
	// InTx runs fn inside a transaction. The Store handed to fn routes all
	// operations through that transaction; returning an error rolls back.
	InTx(ctx context.Context, fn func(Store) error) error

	// Service master.
	GetServiceByUID(ctx context.Context, uid string) (*ServiceRecord, error)
	GetServiceByID(ctx context.Context, id int64) (*ServiceRecord, error)
	CreateService(ctx context.Context, rec *ServiceRecord) error
	UpdateService(ctx context.Context, rec *ServiceRecord) error
	DeleteService(ctx context.Context, id int64) error
	ListServicesWithFinancials(ctx context.Context, fiscalYear string) ([]ServiceWithFinancial, error)
	QueryTracker(ctx context.Context, q TrackerQuery) (*TrackerPage, error)
	// FindServiceByKey resolves a loose identifier the way allocation
	// sheets reference services: uid exact match first, then service name,
	// then vendor, both case-insensitive.
	FindServiceByKey(ctx context.Context, key string) (*ServiceRecord, error)

	// Fiscal-year financials.
	GetFinancial(ctx context.Context, serviceID int64, fiscalYear string) (*FiscalYearFinancial, error)
	GetFinancialByID(ctx context.Context, id int64) (*FiscalYearFinancial, error)
	UpsertFinancial(ctx context.Context, f *FiscalYearFinancial) error

	// Basis-of-allocation splits. One allocation per service; upsert
	// replaces the entity rows wholesale.
	UpsertAllocation(ctx context.Context, a *ServiceAllocation) error
	GetAllocation(ctx context.Context, serviceID int64) (*ServiceAllocation, error)
	ListAllocations(ctx context.Context) ([]ServiceAllocation, error)

	// Staging batches.
	CreateBatch(ctx context.Context, batch *ImportBatch, changes []StagingChange) error
	GetBatch(ctx context.Context, id string) (*ImportBatch, error)
	ListBatches(ctx context.Context, limit int) ([]ImportBatch, error)
	GetChanges(ctx context.Context, batchID string) ([]StagingChange, error)
	// TransitionBatch moves a batch from one status to another. It returns
	// ErrInvalidState when the batch is not currently in from, ErrNotFound
	// when no such batch exists. This conditional update is the
	// serialization point for concurrent confirm/cancel attempts.
	TransitionBatch(ctx context.Context, id string, from, to BatchStatus) error

	// Audit and activity logs. Both are append-only.
	AppendAudit(ctx context.Context, e *AuditLogEntry) error
	GetAuditEntry(ctx context.Context, id int64) (*AuditLogEntry, error)
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditLogEntry, error)
	AppendActivity(ctx context.Context, e *ActivityLogEntry) error
	ListActivity(ctx context.Context, limit int) ([]ActivityLogEntry, error)

	// Import run log.
	AppendImportLog(ctx context.Context, e *ImportLogEntry) error
	ListImportLogs(ctx context.Context, limit int) ([]ImportLogEntry, error)

	// Master-data lookups.
	ListLookups(ctx context.Context, kind LookupKind) ([]Lookup, error)
	CreateLookup(ctx context.Context, l *Lookup) error
	DeleteLookup(ctx context.Context, id int64) error
	// DistinctFieldValues returns the distinct non-empty values of a
	// service-master text column, for merging observed values into lookup
	// listings.
	DistinctFieldValues(ctx context.Context, field string) ([]string, error)
}
