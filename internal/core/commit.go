package core

// commit.go applies a staged batch to the live tables. The whole commit is
// one transaction: the status transition, every record write, and every
// audit entry land together or not at all.

import (
	"context"
	"errors"
	"fmt"
)

// ConfirmBatch applies a batch's NEW and MODIFIED changes and transitions it
// STAGED -> CONFIRMED.
//
// The transition runs first inside the transaction. Its conditional update
// takes the batch row lock, so two concurrent confirmations of the same
// batch serialize there and the loser fails with ErrInvalidState before
// touching any record.
//
// REMOVED rows are advisory and are never deleted here; removing a record
// is a separate explicit action.
func (s *Service) ConfirmBatch(ctx context.Context, batchID, user string) (*ImportBatch, error) {
	var confirmed *ImportBatch

	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.TransitionBatch(ctx, batchID, BatchStaged, BatchConfirmed); err != nil {
			return err
		}

		batch, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}

		changes, err := tx.GetChanges(ctx, batchID)
		if err != nil {
			return err
		}

		var created, updated int
		for _, ch := range changes {
			switch ch.Kind {
			case ChangeNew:
				if err := applyNew(ctx, tx, batch, ch, user); err != nil {
					return fmt.Errorf("apply new %s: %w", ch.UID, err)
				}
				created++
			case ChangeModified:
				if err := applyModified(ctx, tx, batch, ch, user); err != nil {
					return fmt.Errorf("apply modified %s: %w", ch.UID, err)
				}
				updated++
			}
		}

		if err := tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: user,
			Action:   ActivityReuploadConfirm,
			Details:  fmt.Sprintf("confirmed batch %s for %s: %d created, %d updated", batchID, batch.FiscalYear, created, updated),
		}); err != nil {
			return err
		}

		batch.Status = BatchConfirmed
		confirmed = batch
		return nil
	})
	if err != nil {
		return nil, Storagef("confirm batch", err)
	}

	s.log.Info("reupload confirmed",
		"batch_id", batchID,
		"user", user,
		"new", confirmed.Summary.New,
		"modified", confirmed.Summary.Modified,
	)
	return confirmed, nil
}

// applyNew creates a service record and its initial financial row from the
// change's "new" values. NEW rows write a creation marker to the activity
// log via the batch summary, not per-field audit entries.
func applyNew(ctx context.Context, tx Store, batch *ImportBatch, ch StagingChange, user string) error {
	// The same uid may have been created through another path since
	// staging; fall back to a modify-style apply rather than failing the
	// whole batch on a duplicate key.
	if existing, err := tx.GetServiceByUID(ctx, ch.UID); err == nil && existing != nil {
		return applyModified(ctx, tx, batch, ch, user)
	}

	rec := &ServiceRecord{UID: ch.UID}
	fin := &FiscalYearFinancial{FiscalYear: batch.FiscalYear}
	for name, fd := range ch.Diff {
		if fd.New == nil {
			continue
		}
		f, ok := FieldByName(name)
		if !ok {
			continue
		}
		f.Set(rec, fin, Coerce(f.Kind, *fd.New))
	}

	if err := tx.CreateService(ctx, rec); err != nil {
		return err
	}
	fin.ServiceID = rec.ID
	return tx.UpsertFinancial(ctx, fin)
}

// applyModified writes every changed field onto the existing record and
// appends one audit entry per field.
func applyModified(ctx context.Context, tx Store, batch *ImportBatch, ch StagingChange, user string) error {
	rec, err := tx.GetServiceByUID(ctx, ch.UID)
	if err != nil {
		return err
	}
	fin, err := tx.GetFinancial(ctx, rec.ID, batch.FiscalYear)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		fin = &FiscalYearFinancial{ServiceID: rec.ID, FiscalYear: batch.FiscalYear}
		if err := tx.UpsertFinancial(ctx, fin); err != nil {
			return err
		}
	}

	var finTouched bool
	for _, name := range ch.ChangedFields {
		fd, ok := ch.Diff[name]
		if !ok {
			continue
		}
		f, ok := FieldByName(name)
		if !ok {
			continue
		}

		var incoming Value
		if fd.New != nil {
			incoming = Coerce(f.Kind, *fd.New)
		} else {
			incoming = Value{Kind: f.Kind}
		}
		current := f.Get(rec, fin)
		if incoming.Equal(current) {
			continue
		}

		f.Set(rec, fin, incoming)
		if f.Entity == EntityFinancial {
			finTouched = true
		}

		recordID := rec.ID
		if f.Entity == EntityFinancial {
			recordID = fin.ID
		}
		if err := tx.AppendAudit(ctx, &AuditLogEntry{
			Entity:    f.Entity,
			RecordID:  recordID,
			Field:     name,
			OldValue:  current.String(),
			NewValue:  incoming.String(),
			ChangedBy: user,
		}); err != nil {
			return err
		}
	}

	if err := tx.UpdateService(ctx, rec); err != nil {
		return err
	}
	if finTouched {
		if err := tx.UpsertFinancial(ctx, fin); err != nil {
			return err
		}
	}
	return nil
}
