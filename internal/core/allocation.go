package core

// allocation.go implements basis-of-allocation (BOA) splits: how one
// service's cost is divided across entities. The source of truth is a
// fixed-layout workbook: column A identifies the service, column B is the
// allocation basis, column C the declared total, and every header from
// column D on names an entity whose cell holds that entity's share.

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
)

// EntityAllocation is one entity's share of a service's cost.
type EntityAllocation struct {
	Entity string  `json:"entity"`
	Count  float64 `json:"count"`
}

// ServiceAllocation is the full BOA record for one service: the basis, the
// reconciled total, and the per-entity split. One allocation exists per
// service; re-imports replace it wholesale.
type ServiceAllocation struct {
	ServiceID  int64              `json:"serviceId"`
	UID        string             `json:"uid"`
	Basis      string             `json:"basis"`
	TotalCount float64            `json:"totalCount"`
	Entities   []EntityAllocation `json:"entities"`
}

// AllocationRow is one parsed sheet row before service resolution.
type AllocationRow struct {
	Line   int
	Key    string
	Basis  string
	Total  float64
	Counts map[string]float64
}

// AllocationSheet is a parsed BOA workbook: the entity columns found in the
// header and the data rows, in sheet order.
type AllocationSheet struct {
	Entities []string
	Rows     []AllocationRow
	Skipped  int
}

// ParseAllocationSheet reads a fixed-layout BOA workbook. Rows without a
// service identifier in column A are counted as skipped, matching the
// blank-uid rule of the tracker import.
func ParseAllocationSheet(r io.Reader) (*AllocationSheet, error) {
	data, err := ParseSheet(r)
	if err != nil {
		return nil, err
	}

	header := data.Header
	if len(header) < 3 || CleanCell(header[0]) == "" || CleanCell(header[1]) == "" || CleanCell(header[2]) == "" {
		return nil, Validationf("allocation sheet needs columns A (service), B (basis) and C (total count)")
	}

	sheet := &AllocationSheet{}
	entityCols := map[int]string{}
	for i := 3; i < len(header); i++ {
		name := CleanCell(header[i])
		if name == "" {
			continue
		}
		entityCols[i] = name
		sheet.Entities = append(sheet.Entities, name)
	}
	if len(sheet.Entities) == 0 {
		return nil, Validationf("no entity columns found from column D onward")
	}

	for i, row := range data.Rows {
		line := i + 2
		key := CleanCell(cellAt(row, 0))
		if key == "" {
			sheet.Skipped++
			continue
		}

		out := AllocationRow{
			Line:   line,
			Key:    key,
			Basis:  CleanCell(cellAt(row, 1)),
			Counts: make(map[string]float64, len(entityCols)),
		}
		if v := ParseNumber(cellAt(row, 2)); v.Valid {
			out.Total = v.Number
		}
		for col, entity := range entityCols {
			v := ParseNumber(cellAt(row, col))
			if v.Valid && v.Number > 0 {
				out.Counts[entity] = v.Number
			}
		}
		sheet.Rows = append(sheet.Rows, out)
	}
	if len(sheet.Rows) == 0 {
		return nil, Validationf("the sheet contains no data rows below the header")
	}
	return sheet, nil
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// ReadAllocationUpload parses an uploaded BOA workbook, taking an import
// slot for the duration of the parse.
func (s *Service) ReadAllocationUpload(ctx context.Context, r io.Reader) (*AllocationSheet, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()
	return ParseAllocationSheet(io.LimitReader(r, MaxUploadBytes+1))
}

// ImportAllocations applies a parsed BOA sheet row by row. Column A is
// matched against the service master by uid first, then by service name,
// then by vendor; an unmatched row is recorded as a failure without
// aborting the rest.
//
// When the declared total disagrees with the sum of the entity shares by
// more than 0.01, the computed sum wins and is stored rounded.
func (s *Service) ImportAllocations(ctx context.Context, sheet *AllocationSheet, user, fileName string) (*ImportResult, error) {
	res := &ImportResult{Total: len(sheet.Rows) + sheet.Skipped, Skipped: sheet.Skipped}

	for _, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		uid, err := s.importAllocationRow(ctx, row)
		if err != nil {
			res.Failed++
			res.Failures = append(res.Failures, RowFailure{
				Line:   row.Line,
				UID:    uid,
				Reason: MapError(err).Message,
			})
			s.log.Warn("allocation row failed", "key", row.Key, "error", err)
			continue
		}
		res.Success++
	}

	logErr := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.AppendImportLog(ctx, &ImportLogEntry{
			FileName:   fileName,
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
			Action:   ActivityImportBOA,
			Details:  fmt.Sprintf("imported %s: %d ok, %d failed, %d skipped, %d entities", fileName, res.Success, res.Failed, res.Skipped, len(sheet.Entities)),
		})
	})
	if logErr != nil {
		s.log.Error("allocation import log write failed", "file", fileName, "error", logErr)
	}

	s.log.Info("allocation import finished",
		"file", fileName,
		"total", res.Total,
		"success", res.Success,
		"failed", res.Failed,
		"entities", len(sheet.Entities),
	)
	return res, nil
}

func (s *Service) importAllocationRow(ctx context.Context, row AllocationRow) (string, error) {
	rec, err := s.store.FindServiceByKey(ctx, row.Key)
	if err != nil {
		return "", fmt.Errorf("service %q: %w", row.Key, err)
	}

	var sum float64
	alloc := &ServiceAllocation{
		ServiceID:  rec.ID,
		UID:        rec.UID,
		Basis:      row.Basis,
		TotalCount: row.Total,
	}
	for _, entity := range sortedKeys(row.Counts) {
		count := row.Counts[entity]
		alloc.Entities = append(alloc.Entities, EntityAllocation{Entity: entity, Count: count})
		sum += count
	}
	if row.Total <= 0 || math.Abs(row.Total-sum) > 0.01 {
		alloc.TotalCount = math.Round(sum)
	}

	err = s.store.InTx(ctx, func(tx Store) error {
		return tx.UpsertAllocation(ctx, alloc)
	})
	if err != nil {
		return rec.UID, err
	}
	return rec.UID, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Allocation returns the BOA record for one service.
func (s *Service) Allocation(ctx context.Context, serviceID int64) (*ServiceAllocation, error) {
	return s.store.GetAllocation(ctx, serviceID)
}

// ListAllocations returns every service's BOA record, ordered by uid.
func (s *Service) ListAllocations(ctx context.Context) ([]ServiceAllocation, error) {
	return s.store.ListAllocations(ctx)
}
