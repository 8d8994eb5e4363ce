package core

// memstore.go is a complete in-memory Store. It backs the engine tests and
// doubles as the reference semantics for the SQL implementation: both honor
// the same fiscal-year matching, transition, and ordering rules.

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type finKey struct {
	serviceID  int64
	fiscalYear string
}

// MemStore implements Store with plain maps. InTx snapshots the whole state
// and restores it when fn fails, giving the same all-or-nothing behavior as
// a database transaction.
type MemStore struct {
	mu sync.Mutex
	// txMu serializes transactions so snapshot/restore pairs never
	// interleave.
	txMu sync.Mutex

	seq        int64
	services   map[int64]ServiceRecord
	byUID      map[string]int64
	financials map[int64]FiscalYearFinancial
	finIndex   map[finKey]int64
	batches    map[string]ImportBatch
	batchOrder []string
	changes    map[string][]StagingChange
	audit      []AuditLogEntry
	activity   []ActivityLogEntry
	importLogs  []ImportLogEntry
	lookups     map[int64]Lookup
	allocations map[int64]ServiceAllocation
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		services:    make(map[int64]ServiceRecord),
		byUID:       make(map[string]int64),
		financials:  make(map[int64]FiscalYearFinancial),
		finIndex:    make(map[finKey]int64),
		batches:     make(map[string]ImportBatch),
		changes:     make(map[string][]StagingChange),
		lookups:     make(map[int64]Lookup),
		allocations: make(map[int64]ServiceAllocation),
	}
}

var _ Store = (*MemStore)(nil)

func (m *MemStore) nextID() int64 {
	m.seq++
	return m.seq
}

type memSnapshot struct {
	seq        int64
	services   map[int64]ServiceRecord
	byUID      map[string]int64
	financials map[int64]FiscalYearFinancial
	finIndex   map[finKey]int64
	batches    map[string]ImportBatch
	batchOrder []string
	changes    map[string][]StagingChange
	audit      []AuditLogEntry
	activity   []ActivityLogEntry
	importLogs  []ImportLogEntry
	lookups     map[int64]Lookup
	allocations map[int64]ServiceAllocation
}

func (m *MemStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := memSnapshot{
		seq:        m.seq,
		services:   make(map[int64]ServiceRecord, len(m.services)),
		byUID:      make(map[string]int64, len(m.byUID)),
		financials: make(map[int64]FiscalYearFinancial, len(m.financials)),
		finIndex:   make(map[finKey]int64, len(m.finIndex)),
		batches:    make(map[string]ImportBatch, len(m.batches)),
		batchOrder: append([]string(nil), m.batchOrder...),
		changes:    make(map[string][]StagingChange, len(m.changes)),
		audit:      append([]AuditLogEntry(nil), m.audit...),
		activity:   append([]ActivityLogEntry(nil), m.activity...),
		importLogs:  append([]ImportLogEntry(nil), m.importLogs...),
		lookups:     make(map[int64]Lookup, len(m.lookups)),
		allocations: make(map[int64]ServiceAllocation, len(m.allocations)),
	}
	for k, v := range m.services {
		s.services[k] = cloneService(v)
	}
	for k, v := range m.byUID {
		s.byUID[k] = v
	}
	for k, v := range m.financials {
		s.financials[k] = v
	}
	for k, v := range m.finIndex {
		s.finIndex[k] = v
	}
	for k, v := range m.batches {
		s.batches[k] = v
	}
	for k, v := range m.changes {
		s.changes[k] = append([]StagingChange(nil), v...)
	}
	for k, v := range m.lookups {
		s.lookups[k] = v
	}
	for k, v := range m.allocations {
		s.allocations[k] = cloneAllocation(v)
	}
	return s
}

func (m *MemStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq = s.seq
	m.services = s.services
	m.byUID = s.byUID
	m.financials = s.financials
	m.finIndex = s.finIndex
	m.batches = s.batches
	m.batchOrder = s.batchOrder
	m.changes = s.changes
	m.audit = s.audit
	m.activity = s.activity
	m.importLogs = s.importLogs
	m.lookups = s.lookups
	m.allocations = s.allocations
}

// InTx snapshots the store, runs fn, and restores the snapshot on error.
func (m *MemStore) InTx(ctx context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func cloneAllocation(a ServiceAllocation) ServiceAllocation {
	out := a
	out.Entities = append([]EntityAllocation(nil), a.Entities...)
	return out
}

func cloneService(r ServiceRecord) ServiceRecord {
	out := r
	out.StartDate = cloneTime(r.StartDate)
	out.EndDate = cloneTime(r.EndDate)
	out.RenewalDate = cloneTime(r.RenewalDate)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (m *MemStore) GetServiceByUID(ctx context.Context, uid string) (*ServiceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUID[uid]
	if !ok {
		return nil, ErrNotFound
	}
	rec := cloneService(m.services[id])
	return &rec, nil
}

func (m *MemStore) GetServiceByID(ctx context.Context, id int64) (*ServiceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneService(rec)
	return &out, nil
}

func (m *MemStore) CreateService(ctx context.Context, rec *ServiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byUID[rec.UID]; exists {
		return fmt.Errorf("duplicate uid %q", rec.UID)
	}
	rec.ID = m.nextID()
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	m.services[rec.ID] = cloneService(*rec)
	m.byUID[rec.UID] = rec.ID
	return nil
}

func (m *MemStore) UpdateService(ctx context.Context, rec *ServiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.services[rec.ID]
	if !ok {
		return ErrNotFound
	}
	rec.UpdatedAt = time.Now()
	if old.UID != rec.UID {
		delete(m.byUID, old.UID)
		m.byUID[rec.UID] = rec.ID
	}
	m.services[rec.ID] = cloneService(*rec)
	return nil
}

func (m *MemStore) DeleteService(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.services[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.services, id)
	delete(m.byUID, rec.UID)
	for fid, f := range m.financials {
		if f.ServiceID == id {
			delete(m.financials, fid)
			delete(m.finIndex, finKey{id, f.FiscalYear})
		}
	}
	delete(m.allocations, id)
	return nil
}

// matchesFY reports whether a service belongs to a fiscal year's view:
// either a financial row exists for that year or the business key embeds the
// year label. Both conditions are kept deliberately.
func (m *MemStore) matchesFY(rec ServiceRecord, fiscalYear string) bool {
	if _, ok := m.finIndex[finKey{rec.ID, fiscalYear}]; ok {
		return true
	}
	return fiscalYear != "" && strings.Contains(strings.ToUpper(rec.UID), strings.ToUpper(fiscalYear))
}

func (m *MemStore) ListServicesWithFinancials(ctx context.Context, fiscalYear string) ([]ServiceWithFinancial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ServiceWithFinancial
	for _, rec := range m.services {
		if !m.matchesFY(rec, fiscalYear) {
			continue
		}
		item := ServiceWithFinancial{Service: cloneService(rec)}
		if fid, ok := m.finIndex[finKey{rec.ID, fiscalYear}]; ok {
			f := m.financials[fid]
			item.Financial = &f
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service.UID < out[j].Service.UID })
	return out, nil
}

func (m *MemStore) QueryTracker(ctx context.Context, q TrackerQuery) (*TrackerPage, error) {
	all, err := m.ListServicesWithFinancials(ctx, q.FiscalYear)
	if err != nil {
		return nil, err
	}

	var rows []TrackerRow
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	for _, item := range all {
		row := trackerRow(item, q.FiscalYear)
		if needle != "" && !trackerRowMatches(row, needle) {
			continue
		}
		rows = append(rows, row)
	}

	sortTrackerRows(rows, q.SortField, q.SortDesc)

	page := &TrackerPage{
		TotalRows: int64(len(rows)),
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	if q.PageSize > 0 {
		page.TotalPages = (len(rows) + q.PageSize - 1) / q.PageSize
		start := (q.Page - 1) * q.PageSize
		if start < 0 {
			start = 0
		}
		if start < len(rows) {
			end := start + q.PageSize
			if end > len(rows) {
				end = len(rows)
			}
			page.Rows = rows[start:end]
		}
	}
	return page, nil
}

func trackerRow(item ServiceWithFinancial, fiscalYear string) TrackerRow {
	s := item.Service
	row := TrackerRow{
		ID: s.ID, FiscalYear: fiscalYear, UID: s.UID, Vendor: s.Vendor,
		Service: s.Service, Description: s.Description, Tower: s.Tower,
		BudgetHead: s.BudgetHead, Contract: s.Contract, POEntity: s.POEntity,
		AllocationBasis: s.AllocationBasis, InitiativeType: s.InitiativeType,
		ServiceType: s.ServiceType, Currency: s.Currency,
		StartDate: s.StartDate, EndDate: s.EndDate, RenewalDate: s.RenewalDate,
		Remarks: s.Remarks,
	}
	if item.Financial != nil {
		row.Budget = item.Financial.Budget
		row.Actuals = item.Financial.Actuals
		row.Variance = item.Financial.Budget - item.Financial.Actuals
	}
	return row
}

func trackerRowMatches(r TrackerRow, needle string) bool {
	for _, hay := range []string{r.UID, r.Vendor, r.Service, r.Description, r.Tower, r.BudgetHead, r.Contract, r.POEntity, r.Remarks} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

func sortTrackerRows(rows []TrackerRow, field string, desc bool) {
	less := func(i, j int) bool { return rows[i].UID < rows[j].UID }
	switch field {
	case "vendor":
		less = func(i, j int) bool { return rows[i].Vendor < rows[j].Vendor }
	case "service":
		less = func(i, j int) bool { return rows[i].Service < rows[j].Service }
	case "tower":
		less = func(i, j int) bool { return rows[i].Tower < rows[j].Tower }
	case "budget":
		less = func(i, j int) bool { return rows[i].Budget < rows[j].Budget }
	case "actuals":
		less = func(i, j int) bool { return rows[i].Actuals < rows[j].Actuals }
	case "variance":
		less = func(i, j int) bool { return rows[i].Variance < rows[j].Variance }
	}
	if desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(rows, less)
}

func (m *MemStore) FindServiceByKey(ctx context.Context, key string) (*ServiceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byUID[key]; ok {
		rec := cloneService(m.services[id])
		return &rec, nil
	}

	// Name before vendor; ties go to the lowest id so resolution is
	// deterministic.
	lower := strings.ToLower(key)
	var byName, byVendor *ServiceRecord
	for id, rec := range m.services {
		if strings.ToLower(rec.Service) == lower && (byName == nil || id < byName.ID) {
			c := cloneService(rec)
			byName = &c
		}
		if strings.ToLower(rec.Vendor) == lower && (byVendor == nil || id < byVendor.ID) {
			c := cloneService(rec)
			byVendor = &c
		}
	}
	if byName != nil {
		return byName, nil
	}
	if byVendor != nil {
		return byVendor, nil
	}
	return nil, ErrNotFound
}

func (m *MemStore) UpsertAllocation(ctx context.Context, a *ServiceAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[a.ServiceID]; !ok {
		return ErrNotFound
	}
	m.allocations[a.ServiceID] = cloneAllocation(*a)
	return nil
}

func (m *MemStore) GetAllocation(ctx context.Context, serviceID int64) (*ServiceAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.allocations[serviceID]
	if !ok {
		return nil, ErrNotFound
	}
	a = cloneAllocation(a)
	a.UID = m.services[serviceID].UID
	return &a, nil
}

func (m *MemStore) ListAllocations(ctx context.Context) ([]ServiceAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ServiceAllocation, 0, len(m.allocations))
	for id, a := range m.allocations {
		a = cloneAllocation(a)
		a.UID = m.services[id].UID
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (m *MemStore) GetFinancial(ctx context.Context, serviceID int64, fiscalYear string) (*FiscalYearFinancial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fid, ok := m.finIndex[finKey{serviceID, fiscalYear}]
	if !ok {
		return nil, ErrNotFound
	}
	f := m.financials[fid]
	return &f, nil
}

func (m *MemStore) GetFinancialByID(ctx context.Context, id int64) (*FiscalYearFinancial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.financials[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (m *MemStore) UpsertFinancial(ctx context.Context, f *FiscalYearFinancial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := finKey{f.ServiceID, f.FiscalYear}
	if fid, ok := m.finIndex[key]; ok {
		f.ID = fid
	} else {
		f.ID = m.nextID()
		m.finIndex[key] = f.ID
	}
	m.financials[f.ID] = *f
	return nil
}

func (m *MemStore) CreateBatch(ctx context.Context, batch *ImportBatch, changes []StagingChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.batches[batch.ID]; exists {
		return fmt.Errorf("duplicate batch id %s", batch.ID)
	}
	m.batches[batch.ID] = *batch
	m.batchOrder = append(m.batchOrder, batch.ID)
	stored := make([]StagingChange, len(changes))
	for i, ch := range changes {
		ch.ID = m.nextID()
		stored[i] = ch
	}
	m.changes[batch.ID] = stored
	return nil
}

func (m *MemStore) GetBatch(ctx context.Context, id string) (*ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemStore) ListBatches(ctx context.Context, limit int) ([]ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ImportBatch
	for i := len(m.batchOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.batches[m.batchOrder[i]])
	}
	return out, nil
}

func (m *MemStore) GetChanges(ctx context.Context, batchID string) ([]StagingChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[batchID]; !ok {
		return nil, ErrNotFound
	}
	return append([]StagingChange(nil), m.changes[batchID]...), nil
}

func (m *MemStore) TransitionBatch(ctx context.Context, id string, from, to BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	if b.Status != from {
		return fmt.Errorf("%w: batch %s is %s", ErrInvalidState, id, b.Status)
	}
	b.Status = to
	m.batches[id] = b
	return nil
}

func (m *MemStore) AppendAudit(ctx context.Context, e *AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID()
	e.CreatedAt = time.Now()
	m.audit = append(m.audit, *e)
	return nil
}

func (m *MemStore) GetAuditEntry(ctx context.Context, id int64) (*AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.audit {
		if e.ID == id {
			out := e
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) ListAudit(ctx context.Context, f AuditFilter) ([]AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditLogEntry
	skipped := 0
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.Entity != "" && e.Entity != f.Entity {
			continue
		}
		if f.RecordID != 0 && e.RecordID != f.RecordID {
			continue
		}
		if f.Field != "" && e.Field != f.Field {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) AppendActivity(ctx context.Context, e *ActivityLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID()
	e.CreatedAt = time.Now()
	m.activity = append(m.activity, *e)
	return nil
}

func (m *MemStore) ListActivity(ctx context.Context, limit int) ([]ActivityLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ActivityLogEntry
	for i := len(m.activity) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.activity[i])
	}
	return out, nil
}

func (m *MemStore) AppendImportLog(ctx context.Context, e *ImportLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID()
	e.CreatedAt = time.Now()
	m.importLogs = append(m.importLogs, *e)
	return nil
}

func (m *MemStore) ListImportLogs(ctx context.Context, limit int) ([]ImportLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ImportLogEntry
	for i := len(m.importLogs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.importLogs[i])
	}
	return out, nil
}

func (m *MemStore) ListLookups(ctx context.Context, kind LookupKind) ([]Lookup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Lookup
	for _, l := range m.lookups {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) CreateLookup(ctx context.Context, l *Lookup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.nextID()
	m.lookups[l.ID] = *l
	return nil
}

func (m *MemStore) DeleteLookup(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookups[id]; !ok {
		return ErrNotFound
	}
	delete(m.lookups, id)
	return nil
}

func (m *MemStore) DistinctFieldValues(ctx context.Context, field string) ([]string, error) {
	f, ok := FieldByName(field)
	if !ok || f.Entity != EntityService || f.Kind != KindText {
		return nil, Validationf("unknown field %q", field)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, rec := range m.services {
		r := rec
		v := f.Get(&r, nil)
		if !v.Valid {
			continue
		}
		name := v.Text
		if !seen[strings.ToLower(name)] {
			seen[strings.ToLower(name)] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
