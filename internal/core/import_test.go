package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestImportRowsCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)

	rows := []NormalizedRow{
		{UID: "S1", Values: map[string]Value{"budget": NumberValue(1200)}},
		{UID: "S2", Values: map[string]Value{"vendor": TextValue("Apex"), "budget": NumberValue(500)}},
	}

	res, err := svc.ImportRows(ctx, rows, 1, "FY25", "user", "budget.xlsx")
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if res.Total != 3 || res.Success != 2 || res.Failed != 0 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}

	rec1, _ := store.GetServiceByUID(ctx, "S1")
	fin1, _ := store.GetFinancial(ctx, rec1.ID, "FY25")
	if fin1.Budget != 1200 {
		t.Errorf("S1 budget = %v, want 1200", fin1.Budget)
	}
	if fin1.Actuals != 800 {
		t.Errorf("S1 actuals = %v, want untouched 800", fin1.Actuals)
	}

	rec2, err := store.GetServiceByUID(ctx, "S2")
	if err != nil {
		t.Fatalf("S2 not created: %v", err)
	}
	fin2, _ := store.GetFinancial(ctx, rec2.ID, "FY25")
	if rec2.Vendor != "Apex" || fin2.Budget != 500 {
		t.Errorf("S2 = %+v / %+v", rec2, fin2)
	}

	logs, _ := store.ListImportLogs(ctx, 10)
	if len(logs) != 1 {
		t.Fatalf("got %d import logs, want 1", len(logs))
	}
	if logs[0].Success != 2 || logs[0].FileName != "budget.xlsx" {
		t.Errorf("import log = %+v", logs[0])
	}
	activity, _ := store.ListActivity(ctx, 10)
	if len(activity) == 0 || activity[0].Action != ActivityImportBudget {
		t.Errorf("activity = %+v", activity)
	}
}

// brokenUIDStore fails any write touching one poisoned uid.
type brokenUIDStore struct {
	*MemStore
	poison string
}

func (b *brokenUIDStore) InTx(ctx context.Context, fn func(Store) error) error {
	return b.MemStore.InTx(ctx, func(Store) error {
		return fn(b)
	})
}

func (b *brokenUIDStore) CreateService(ctx context.Context, rec *ServiceRecord) error {
	if rec.UID == b.poison {
		return errors.New("deadlock detected")
	}
	return b.MemStore.CreateService(ctx, rec)
}

func TestImportRowsContinueOnError(t *testing.T) {
	ctx := context.Background()
	mem := NewMemStore()
	store := &brokenUIDStore{MemStore: mem, poison: "S2"}
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rows := []NormalizedRow{
		{UID: "S1", Values: map[string]Value{"vendor": TextValue("Acme")}},
		{UID: "S2", Values: map[string]Value{"vendor": TextValue("Broken")}},
		{UID: "S3", Values: map[string]Value{"vendor": TextValue("Apex")}},
	}

	res, err := svc.ImportRows(ctx, rows, 0, "FY25", "user", "budget.xlsx")
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if res.Success != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 2 ok / 1 failed", res)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %+v", res.Failures)
	}
	f := res.Failures[0]
	if f.UID != "S2" || f.Line != 3 {
		t.Errorf("failure = %+v, want S2 at line 3", f)
	}
	if f.Reason == "" {
		t.Error("failure reason is empty")
	}

	// The failed row's partial writes are rolled back; the others stand.
	if _, err := mem.GetServiceByUID(ctx, "S1"); err != nil {
		t.Errorf("S1 missing: %v", err)
	}
	if _, err := mem.GetServiceByUID(ctx, "S2"); !errors.Is(err, ErrNotFound) {
		t.Error("poisoned row left data behind")
	}
	if _, err := mem.GetServiceByUID(ctx, "S3"); err != nil {
		t.Errorf("S3 missing: %v", err)
	}

	logs, _ := mem.ListImportLogs(ctx, 10)
	if len(logs) != 1 || logs[0].Failed != 1 {
		t.Errorf("import log = %+v", logs)
	}
}

func TestImportRowsRequiresFiscalYear(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ImportRows(context.Background(), nil, 0, "", "user", "a.xlsx")
	if !IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}
