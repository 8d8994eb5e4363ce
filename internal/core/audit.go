package core

// audit.go serves the audit trail and audit restore. The audit log is the
// restore source of truth: restoring an entry re-applies its old value to
// the named field, writing a fresh audit entry for the restore itself so the
// trail never loses a step.

import (
	"context"
	"fmt"
)

// AuditTrail returns audit entries matching the filter, newest first.
func (s *Service) AuditTrail(ctx context.Context, f AuditFilter) ([]AuditLogEntry, error) {
	if f.Limit < 1 || f.Limit > 1000 {
		f.Limit = 100
	}
	return s.store.ListAudit(ctx, f)
}

// RestoreAuditEntry re-applies an audit entry's old value to its field.
//
// The old value is coerced to the field's current type; a value that no
// longer parses under that type fails with a validation error rather than
// silently writing garbage. A field that has left the data model fails with
// ErrInvalidState, distinctly from an unknown entry id.
func (s *Service) RestoreAuditEntry(ctx context.Context, entryID int64, user string) error {
	err := s.store.InTx(ctx, func(tx Store) error {
		entry, err := tx.GetAuditEntry(ctx, entryID)
		if err != nil {
			return err
		}

		f, ok := FieldByName(entry.Field)
		if !ok || f.Entity != entry.Entity {
			return fmt.Errorf("%w: field no longer exists: %s.%s", ErrInvalidState, entry.Entity, entry.Field)
		}

		restored := Coerce(f.Kind, entry.OldValue)
		if entry.OldValue != "" && !restored.Valid {
			return Validationf("invalid value: %q cannot be restored as %s", entry.OldValue, f.Kind)
		}

		var rec *ServiceRecord
		var fin *FiscalYearFinancial
		switch entry.Entity {
		case EntityService:
			rec, err = tx.GetServiceByID(ctx, entry.RecordID)
			if err != nil {
				return err
			}
		case EntityFinancial:
			fin, err = tx.GetFinancialByID(ctx, entry.RecordID)
			if err != nil {
				return err
			}
			rec, err = tx.GetServiceByID(ctx, fin.ServiceID)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown entity %q", ErrInvalidState, entry.Entity)
		}

		current := f.Get(rec, fin)
		if restored.Equal(current) {
			return nil
		}

		f.Set(rec, fin, restored)
		switch entry.Entity {
		case EntityService:
			if err := tx.UpdateService(ctx, rec); err != nil {
				return err
			}
		case EntityFinancial:
			if err := tx.UpsertFinancial(ctx, fin); err != nil {
				return err
			}
		}

		if err := tx.AppendAudit(ctx, &AuditLogEntry{
			Entity:    entry.Entity,
			RecordID:  entry.RecordID,
			Field:     entry.Field,
			OldValue:  current.String(),
			NewValue:  restored.String(),
			ChangedBy: user,
		}); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: user,
			Action:   ActivityAuditRestore,
			Details:  fmt.Sprintf("restored %s.%s on record %d from audit entry %d", entry.Entity, entry.Field, entry.RecordID, entryID),
		})
	})
	if err != nil {
		return Storagef("restore audit entry", err)
	}

	s.log.Info("audit entry restored", "entry_id", entryID, "user", user)
	return nil
}
