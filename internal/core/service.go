package core

// service.go wires the engines together behind one Service type. Handlers
// call the Service; the Service talks to the Store and never to pgx
// directly, so every operation here runs identically against Postgres and
// the in-memory test store.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Service provides the business logic for the service master, the staged
// re-upload workflow, direct imports, exports, and the audit trail.
type Service struct {
	store   Store
	log     *slog.Logger
	limiter *ImportLimiter
	now     func() time.Time
}

// NewService creates a Service backed by the given store.
func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   store,
		log:     log,
		limiter: NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime),
		now:     time.Now,
	}
}

// Limiter exposes the import slot limiter for shutdown draining.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// SetImportLimits resizes the import slot limiter from configuration. Call
// once at startup, before the server accepts uploads.
func (s *Service) SetImportLimits(maxConcurrent int, maxWait time.Duration) {
	s.limiter = NewImportLimiter(maxConcurrent, maxWait)
}

// GetRecord returns one service record with its financial row for the given
// fiscal year (nil when none exists yet).
func (s *Service) GetRecord(ctx context.Context, id int64, fiscalYear string) (*ServiceWithFinancial, error) {
	rec, err := s.store.GetServiceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fin, err := s.store.GetFinancial(ctx, rec.ID, fiscalYear)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &ServiceWithFinancial{Service: *rec, Financial: fin}, nil
}

// Tracker returns one page of the tracker grid.
func (s *Service) Tracker(ctx context.Context, q TrackerQuery) (*TrackerPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 500 {
		q.PageSize = 50
	}
	return s.store.QueryTracker(ctx, q)
}

// RecordUpdate is a partial update of one tracker row: only the named fields
// change. Values arrive as strings and are coerced per the field registry.
type RecordUpdate struct {
	FiscalYear string
	Fields     map[string]string
	User       string
}

// CreateRecord creates a service record plus its initial financial row.
// The UID must be unique; dates and amounts are coerced like import cells.
func (s *Service) CreateRecord(ctx context.Context, uid string, upd RecordUpdate) (*ServiceWithFinancial, error) {
	uid = CleanCell(uid)
	if uid == "" {
		return nil, Validationf("uid is required")
	}
	if upd.FiscalYear == "" {
		return nil, Validationf("fiscal year is required")
	}
	if existing, err := s.store.GetServiceByUID(ctx, uid); err == nil && existing != nil {
		return nil, Validationf("a record with uid %q already exists", uid)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rec := &ServiceRecord{UID: uid}
	fin := &FiscalYearFinancial{FiscalYear: upd.FiscalYear}
	for name, raw := range upd.Fields {
		f, ok := FieldByName(name)
		if !ok {
			return nil, Validationf("unknown field %q", name)
		}
		f.Set(rec, fin, Coerce(f.Kind, raw))
	}

	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateService(ctx, rec); err != nil {
			return err
		}
		fin.ServiceID = rec.ID
		if err := tx.UpsertFinancial(ctx, fin); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: upd.User,
			Action:   ActivityRecordCreate,
			Details:  fmt.Sprintf("created %s for %s", uid, upd.FiscalYear),
		})
	})
	if err != nil {
		return nil, Storagef("create record", err)
	}

	s.log.Info("record created", "uid", uid, "fiscal_year", upd.FiscalYear, "user", upd.User)
	return &ServiceWithFinancial{Service: *rec, Financial: fin}, nil
}

// UpdateRecord applies a partial field update to an existing record, writing
// one audit entry per field whose value actually changed. Unchanged fields
// produce no audit noise.
func (s *Service) UpdateRecord(ctx context.Context, id int64, upd RecordUpdate) (*ServiceWithFinancial, error) {
	if upd.FiscalYear == "" {
		return nil, Validationf("fiscal year is required")
	}

	var out *ServiceWithFinancial
	err := s.store.InTx(ctx, func(tx Store) error {
		rec, err := tx.GetServiceByID(ctx, id)
		if err != nil {
			return err
		}
		fin, err := tx.GetFinancial(ctx, rec.ID, upd.FiscalYear)
		if errors.Is(err, ErrNotFound) {
			// The row is only written if a financial field actually
			// changes; a text-only edit must not add the record to this
			// fiscal year's tracker view.
			fin = &FiscalYearFinancial{ServiceID: rec.ID, FiscalYear: upd.FiscalYear}
		} else if err != nil {
			return err
		}

		type fieldChange struct {
			field    *Field
			name     string
			old, new string
		}
		var touched []string
		var changes []fieldChange
		var finTouched bool
		for name, raw := range upd.Fields {
			f, ok := FieldByName(name)
			if !ok {
				return Validationf("unknown field %q", name)
			}
			incoming := Coerce(f.Kind, raw)
			current := f.Get(rec, fin)
			if incoming.Equal(current) {
				continue
			}
			f.Set(rec, fin, incoming)
			touched = append(touched, name)
			if f.Entity == EntityFinancial {
				finTouched = true
			}
			changes = append(changes, fieldChange{field: f, name: name, old: current.String(), new: incoming.String()})
		}

		if len(touched) == 0 {
			out = &ServiceWithFinancial{Service: *rec, Financial: fin}
			return nil
		}

		if err := tx.UpdateService(ctx, rec); err != nil {
			return err
		}
		if finTouched {
			// Upsert before the audit entries so a row created here has
			// an id for them to reference.
			if err := tx.UpsertFinancial(ctx, fin); err != nil {
				return err
			}
		}

		for _, ch := range changes {
			recordID := rec.ID
			if ch.field.Entity == EntityFinancial {
				recordID = fin.ID
			}
			if err := tx.AppendAudit(ctx, &AuditLogEntry{
				Entity:    ch.field.Entity,
				RecordID:  recordID,
				Field:     ch.name,
				OldValue:  ch.old,
				NewValue:  ch.new,
				ChangedBy: upd.User,
			}); err != nil {
				return err
			}
		}
		if err := tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: upd.User,
			Action:   ActivityRecordUpdate,
			Details:  fmt.Sprintf("updated %s: %s", rec.UID, strings.Join(touched, ", ")),
		}); err != nil {
			return err
		}

		out = &ServiceWithFinancial{Service: *rec, Financial: fin}
		return nil
	})
	if err != nil {
		return nil, Storagef("update record", err)
	}
	return out, nil
}

// DeleteRecord removes a record and its financial rows. Deletion is always
// an explicit user action; imports and commits never delete.
func (s *Service) DeleteRecord(ctx context.Context, id int64, user string) error {
	err := s.store.InTx(ctx, func(tx Store) error {
		rec, err := tx.GetServiceByID(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteService(ctx, id); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: user,
			Action:   ActivityRecordDelete,
			Details:  fmt.Sprintf("deleted %s", rec.UID),
		})
	})
	if err != nil {
		return Storagef("delete record", err)
	}
	return nil
}

// Activity returns the most recent activity log entries.
func (s *Service) Activity(ctx context.Context, limit int) ([]ActivityLogEntry, error) {
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	return s.store.ListActivity(ctx, limit)
}

// ImportLogs returns the most recent direct import runs.
func (s *Service) ImportLogs(ctx context.Context, limit int) ([]ImportLogEntry, error) {
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	return s.store.ListImportLogs(ctx, limit)
}
