package core

// staging.go implements the staged re-upload workflow: compare an uploaded
// sheet against the live records for a fiscal year, persist the diff as a
// reviewable batch, and leave the live table untouched until an admin
// confirms.

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// StageUpload runs the normalizer and diff engine over the uploaded rows and
// persists the result as a STAGED batch. The live tables are only read;
// staging the same sheet twice produces two identical batches and no data
// changes.
//
// UNCHANGED rows are counted in the summary but not stored per-row, which
// bounds staging storage to the size of the actual diff.
func (s *Service) StageUpload(ctx context.Context, rows []NormalizedRow, fiscalYear, user, fileName string) (*ImportBatch, error) {
	if fiscalYear == "" {
		return nil, Validationf("fiscal year is required")
	}
	if len(rows) == 0 {
		return nil, Validationf("no data rows with a uid were found in the sheet")
	}

	persisted, err := s.store.ListServicesWithFinancials(ctx, fiscalYear)
	if err != nil {
		return nil, Storagef("load records for diff", err)
	}

	diff := ComputeDiff(rows, persisted)

	batch := &ImportBatch{
		ID:         uuid.NewString(),
		Status:     BatchStaged,
		FileName:   fileName,
		FiscalYear: fiscalYear,
		CreatedBy:  user,
		Summary:    diff.Summary,
		CreatedAt:  s.now(),
	}

	changes := make([]StagingChange, 0, len(diff.Changes))
	for _, d := range diff.Changes {
		changes = append(changes, StagingChange{
			BatchID:       batch.ID,
			UID:           d.UID,
			Kind:          d.Kind,
			ChangedFields: d.ChangedFields,
			Diff:          d.Diff,
		})
	}

	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateBatch(ctx, batch, changes); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: user,
			Action:   ActivityReuploadStage,
			Details: fmt.Sprintf("staged %s for %s: %d new, %d modified, %d unchanged, %d removed",
				fileName, fiscalYear, diff.Summary.New, diff.Summary.Modified, diff.Summary.Unchanged, diff.Summary.Removed),
		})
	})
	if err != nil {
		return nil, Storagef("create staging batch", err)
	}

	s.log.Info("reupload staged",
		"batch_id", batch.ID,
		"fiscal_year", fiscalYear,
		"file", fileName,
		"new", diff.Summary.New,
		"modified", diff.Summary.Modified,
		"unchanged", diff.Summary.Unchanged,
		"removed", diff.Summary.Removed,
	)
	return batch, nil
}

// GetBatch returns one batch's metadata and summary.
func (s *Service) GetBatch(ctx context.Context, batchID string) (*ImportBatch, error) {
	return s.store.GetBatch(ctx, batchID)
}

// ListBatches returns recent batches, newest first.
func (s *Service) ListBatches(ctx context.Context, limit int) ([]ImportBatch, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return s.store.ListBatches(ctx, limit)
}

// GetChanges returns the per-key diff rows of a batch, in staged order.
// Fails with ErrNotFound when the batch does not exist.
func (s *Service) GetChanges(ctx context.Context, batchID string) ([]StagingChange, error) {
	if _, err := s.store.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.store.GetChanges(ctx, batchID)
}

// CancelBatch transitions STAGED -> CANCELLED. Fails with ErrInvalidState
// when the batch is already terminal. No record data is touched.
func (s *Service) CancelBatch(ctx context.Context, batchID, user string) error {
	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.TransitionBatch(ctx, batchID, BatchStaged, BatchCancelled); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: user,
			Action:   ActivityReuploadCancel,
			Details:  fmt.Sprintf("cancelled batch %s", batchID),
		})
	})
	if err != nil {
		return Storagef("cancel batch", err)
	}

	s.log.Info("reupload cancelled", "batch_id", batchID, "user", user)
	return nil
}
