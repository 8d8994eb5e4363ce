package core

// import.go is the direct-apply ingestion path: rows are upserted straight
// into the live tables, row by row. One malformed row never aborts the rest;
// failures are accumulated with their reasons and reported in the result.

import (
	"context"
	"errors"
	"fmt"
)

// ImportRows upserts normalized rows for a fiscal year. Each row runs in its
// own transaction, so a storage failure on row N leaves rows 1..N-1 applied
// and is recorded as that row's failure.
//
// The run itself is logged to both the import log (row counts and reasons)
// and the activity log regardless of how many rows failed.
func (s *Service) ImportRows(ctx context.Context, rows []NormalizedRow, skipped int, fiscalYear, user, fileName string) (*ImportResult, error) {
	if fiscalYear == "" {
		return nil, Validationf("fiscal year is required")
	}

	res := &ImportResult{Total: len(rows) + skipped, Skipped: skipped}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.importRow(ctx, row, fiscalYear, user); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, RowFailure{
				Line:   i + 2, // 1-based, after the header row
				UID:    row.UID,
				Reason: MapError(err).Message,
			})
			s.log.Warn("import row failed", "uid", row.UID, "error", err)
			continue
		}
		res.Success++
	}

	logErr := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.AppendImportLog(ctx, &ImportLogEntry{
			FileName:   fileName,
			FiscalYear: fiscalYear,
			Total:      res.Total,
			Success:    res.Success,
			Failed:     res.Failed,
			Failures:   res.Failures,
			ImportedBy: user,
		}); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: user,
			Action:   ActivityImportBudget,
			Details:  fmt.Sprintf("imported %s for %s: %d ok, %d failed, %d skipped", fileName, fiscalYear, res.Success, res.Failed, res.Skipped),
		})
	})
	if logErr != nil {
		// The rows are already applied; losing the run log is worth a
		// warning but not a failed import.
		s.log.Error("import log write failed", "file", fileName, "error", logErr)
	}

	s.log.Info("import finished",
		"file", fileName,
		"fiscal_year", fiscalYear,
		"total", res.Total,
		"success", res.Success,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return res, nil
}

// importRow upserts one service record and its financial row atomically.
func (s *Service) importRow(ctx context.Context, row NormalizedRow, fiscalYear, user string) error {
	return s.store.InTx(ctx, func(tx Store) error {
		rec, err := tx.GetServiceByUID(ctx, row.UID)
		switch {
		case err == nil:
			// Existing record: overwrite the mutable fields present in
			// the sheet.
		case errors.Is(err, ErrNotFound):
			rec = &ServiceRecord{UID: row.UID}
		default:
			return err
		}

		isNew := rec.ID == 0
		fin := &FiscalYearFinancial{ServiceID: rec.ID, FiscalYear: fiscalYear}
		if !isNew {
			if existing, err := tx.GetFinancial(ctx, rec.ID, fiscalYear); err == nil {
				fin = existing
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		for name, v := range row.Values {
			f, ok := FieldByName(name)
			if !ok {
				continue
			}
			f.Set(rec, fin, v)
		}

		if isNew {
			if err := tx.CreateService(ctx, rec); err != nil {
				return err
			}
			fin.ServiceID = rec.ID
		} else if err := tx.UpdateService(ctx, rec); err != nil {
			return err
		}
		return tx.UpsertFinancial(ctx, fin)
	})
}
