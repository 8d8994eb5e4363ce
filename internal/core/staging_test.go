package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestService(t *testing.T) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore()
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store
}

func seedRecord(t *testing.T, store *MemStore, uid, vendor, fy string, budget, actuals float64) *ServiceRecord {
	t.Helper()
	ctx := context.Background()
	rec := &ServiceRecord{UID: uid, Vendor: vendor}
	if err := store.CreateService(ctx, rec); err != nil {
		t.Fatal(err)
	}
	fin := &FiscalYearFinancial{ServiceID: rec.ID, FiscalYear: fy, Budget: budget, Actuals: actuals}
	if err := store.UpsertFinancial(ctx, fin); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestStageUpload(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)
	seedRecord(t, store, "S2", "Apex", "FY25", 500, 0)

	rows := []NormalizedRow{
		{UID: "S1", Values: map[string]Value{"vendor": TextValue("Acme"), "budget": NumberValue(1200)}},
		{UID: "S3", Values: map[string]Value{"vendor": TextValue("Nimbus"), "budget": NumberValue(300)}},
	}

	batch, err := svc.StageUpload(ctx, rows, "FY25", "admin", "budget.xlsx")
	if err != nil {
		t.Fatalf("StageUpload: %v", err)
	}

	if batch.Status != BatchStaged {
		t.Errorf("status = %s, want STAGED", batch.Status)
	}
	want := DiffSummary{New: 1, Modified: 1, Removed: 1}
	if batch.Summary != want {
		t.Errorf("summary = %+v, want %+v", batch.Summary, want)
	}

	changes, err := svc.GetChanges(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetChanges: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("got %d staged changes, want 3 (unchanged rows are not stored)", len(changes))
	}

	// Staging must not touch the live table.
	rec, err := store.GetServiceByUID(ctx, "S1")
	if err != nil {
		t.Fatal(err)
	}
	fin, err := store.GetFinancial(ctx, rec.ID, "FY25")
	if err != nil {
		t.Fatal(err)
	}
	if fin.Budget != 1000 {
		t.Errorf("live budget = %v after staging, want 1000", fin.Budget)
	}
	if _, err := store.GetServiceByUID(ctx, "S3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("staged NEW row reached the live table: %v", err)
	}
}

func TestStageUploadTwiceIsReadOnly(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)

	rows := []NormalizedRow{
		{UID: "S1", Values: map[string]Value{"budget": NumberValue(1200)}},
	}

	first, err := svc.StageUpload(ctx, rows, "FY25", "admin", "a.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.StageUpload(ctx, rows, "FY25", "admin", "a.xlsx")
	if err != nil {
		t.Fatal(err)
	}

	if first.Summary != second.Summary {
		t.Errorf("summaries differ: %+v vs %+v", first.Summary, second.Summary)
	}
	rec, _ := store.GetServiceByUID(ctx, "S1")
	fin, _ := store.GetFinancial(ctx, rec.ID, "FY25")
	if fin.Budget != 1000 {
		t.Errorf("live budget = %v after double staging, want 1000", fin.Budget)
	}
}

func TestStageUploadValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.StageUpload(ctx, nil, "FY25", "admin", "a.xlsx"); !IsValidation(err) {
		t.Errorf("empty rows: err = %v, want validation error", err)
	}
	rows := []NormalizedRow{{UID: "S1", Values: map[string]Value{}}}
	if _, err := svc.StageUpload(ctx, rows, "", "admin", "a.xlsx"); !IsValidation(err) {
		t.Errorf("missing fiscal year: err = %v, want validation error", err)
	}
}

func TestGetChangesUnknownBatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	if _, err := svc.GetChanges(ctx, "no-such-batch"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCancelBatch(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)

	rows := []NormalizedRow{
		{UID: "S1", Values: map[string]Value{"budget": NumberValue(1200)}},
	}
	batch, err := svc.StageUpload(ctx, rows, "FY25", "admin", "a.xlsx")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.CancelBatch(ctx, batch.ID, "admin"); err != nil {
		t.Fatalf("CancelBatch: %v", err)
	}
	got, _ := svc.GetBatch(ctx, batch.ID)
	if got.Status != BatchCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}

	// Cancelling again is an invalid state, not a no-op.
	if err := svc.CancelBatch(ctx, batch.ID, "admin"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second cancel: err = %v, want ErrInvalidState", err)
	}
	if err := svc.CancelBatch(ctx, "no-such-batch", "admin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown batch: err = %v, want ErrNotFound", err)
	}
}

func TestListBatches(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)

	rows := []NormalizedRow{
		{UID: "S1", Values: map[string]Value{"budget": NumberValue(1200)}},
	}
	first, _ := svc.StageUpload(ctx, rows, "FY25", "admin", "a.xlsx")
	second, _ := svc.StageUpload(ctx, rows, "FY25", "admin", "b.xlsx")

	batches, err := svc.ListBatches(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if batches[0].ID != second.ID || batches[1].ID != first.ID {
		t.Errorf("order = %s, %s; want newest first", batches[0].FileName, batches[1].FileName)
	}
}
