package core

// export.go reconstructs the tracker and staged-diff views as xlsx byte
// streams. Headers are deterministic; an export that would drop every row of
// a non-empty result fails loudly instead of shipping a header-only file.

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// trackerExportHeader is the fixed column order of a tracker export.
var trackerExportHeader = []string{
	"UID", "Vendor", "Service", "Description", "Tower", "Budget Head",
	"Contract", "PO Entity", "Allocation Basis", "Initiative Type",
	"Service Type", "Currency", "Start Date", "End Date", "Renewal Date",
	"Remarks", "Budget", "Actuals", "Variance",
}

// ExportTracker writes every tracker row matching the query to a workbook.
// A genuinely empty result produces a header-only file; losing rows that the
// query returned is an error.
func (s *Service) ExportTracker(ctx context.Context, q TrackerQuery) ([]byte, error) {
	q.Page = 1
	q.PageSize = 500

	var rows []TrackerRow
	var totalRows int64
	for {
		page, err := s.store.QueryTracker(ctx, q)
		if err != nil {
			return nil, Storagef("export query", err)
		}
		totalRows = page.TotalRows
		rows = append(rows, page.Rows...)
		if q.Page >= page.TotalPages {
			break
		}
		q.Page++
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	if err := writeRow(f, sheet, 1, headerCells(trackerExportHeader)); err != nil {
		return nil, err
	}

	written := 0
	for i, r := range rows {
		cells := []any{
			r.UID, r.Vendor, r.Service, r.Description, r.Tower, r.BudgetHead,
			r.Contract, r.POEntity, r.AllocationBasis, r.InitiativeType,
			r.ServiceType, r.Currency,
			dateCell(r.StartDate), dateCell(r.EndDate), dateCell(r.RenewalDate),
			r.Remarks, r.Budget, r.Actuals, r.Variance,
		}
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return nil, err
		}
		written++
	}

	if written == 0 && totalRows > 0 {
		return nil, ErrEmptyExport
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.log.Info("tracker exported", "fiscal_year", q.FiscalYear, "rows", written)
	return buf.Bytes(), nil
}

// ExportBatchDiff writes a batch's staged changes to a workbook: one row per
// change, one column pair per differing field.
func (s *Service) ExportBatchDiff(ctx context.Context, batchID string) ([]byte, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	changes, err := s.store.GetChanges(ctx, batchID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := []any{"UID", "Change", "Field", "Old Value", "New Value"}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return nil, err
	}

	line := 2
	for _, ch := range changes {
		if len(ch.ChangedFields) == 0 {
			if err := writeRow(f, sheet, line, []any{ch.UID, string(ch.Kind), "", "", ""}); err != nil {
				return nil, err
			}
			line++
			continue
		}
		for _, field := range ch.ChangedFields {
			fd := ch.Diff[field]
			if err := writeRow(f, sheet, line, []any{
				ch.UID, string(ch.Kind), field, strPtr(fd.Old), strPtr(fd.New),
			}); err != nil {
				return nil, err
			}
			line++
		}
	}

	if line == 2 && len(changes) > 0 {
		return nil, ErrEmptyExport
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.log.Info("batch diff exported", "batch_id", batchID, "fiscal_year", batch.FiscalYear, "rows", line-2)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, line int, cells []any) error {
	addr, err := excelize.JoinCellName("A", line)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, addr, &cells)
}

func headerCells(h []string) []any {
	out := make([]any, len(h))
	for i, c := range h {
		out[i] = c
	}
	return out
}

func dateCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
