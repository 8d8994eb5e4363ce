package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func stageRows(t *testing.T, svc *Service, rows []NormalizedRow) *ImportBatch {
	t.Helper()
	batch, err := svc.StageUpload(context.Background(), rows, "FY25", "admin", "budget.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	return batch
}

func TestConfirmBatchAppliesNew(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	batch := stageRows(t, svc, []NormalizedRow{
		{UID: "S1", Values: map[string]Value{
			"vendor":  TextValue("Acme"),
			"budget":  NumberValue(1000),
			"actuals": NumberValue(800),
		}},
	})

	confirmed, err := svc.ConfirmBatch(ctx, batch.ID, "admin")
	if err != nil {
		t.Fatalf("ConfirmBatch: %v", err)
	}
	if confirmed.Status != BatchConfirmed {
		t.Errorf("status = %s, want CONFIRMED", confirmed.Status)
	}

	rec, err := store.GetServiceByUID(ctx, "S1")
	if err != nil {
		t.Fatalf("created record not found: %v", err)
	}
	if rec.Vendor != "Acme" {
		t.Errorf("vendor = %q, want Acme", rec.Vendor)
	}
	fin, err := store.GetFinancial(ctx, rec.ID, "FY25")
	if err != nil {
		t.Fatal(err)
	}
	if fin.Budget != 1000 || fin.Actuals != 800 {
		t.Errorf("financial = %+v, want budget 1000 actuals 800", fin)
	}

	// NEW rows produce an activity marker, not per-field audit entries.
	audit, _ := store.ListAudit(ctx, AuditFilter{Limit: 100})
	if len(audit) != 0 {
		t.Errorf("got %d audit entries for NEW row, want 0", len(audit))
	}
	activity, _ := store.ListActivity(ctx, 10)
	if len(activity) == 0 || activity[0].Action != ActivityReuploadConfirm {
		t.Errorf("activity = %+v, want %s marker", activity, ActivityReuploadConfirm)
	}
}

func TestConfirmBatchAppliesModifiedWithAudit(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)

	batch := stageRows(t, svc, []NormalizedRow{
		{UID: "S1", Values: map[string]Value{"budget": NumberValue(1200)}},
	})

	if _, err := svc.ConfirmBatch(ctx, batch.ID, "admin"); err != nil {
		t.Fatalf("ConfirmBatch: %v", err)
	}

	rec, _ := store.GetServiceByUID(ctx, "S1")
	fin, _ := store.GetFinancial(ctx, rec.ID, "FY25")
	if fin.Budget != 1200 {
		t.Errorf("budget = %v, want 1200", fin.Budget)
	}

	audit, _ := store.ListAudit(ctx, AuditFilter{Limit: 100})
	if len(audit) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(audit))
	}
	e := audit[0]
	if e.Field != "budget" || e.OldValue != "1000" || e.NewValue != "1200" {
		t.Errorf("audit entry = %+v, want budget 1000 -> 1200", e)
	}
	if e.Entity != EntityFinancial || e.ChangedBy != "admin" {
		t.Errorf("audit entry = %+v", e)
	}
}

func TestConfirmBatchNeverDeletesRemoved(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)
	seedRecord(t, store, "S2", "Apex", "FY25", 500, 0)

	batch := stageRows(t, svc, []NormalizedRow{
		{UID: "S1", Values: map[string]Value{"budget": NumberValue(1200)}},
	})
	if batch.Summary.Removed != 1 {
		t.Fatalf("summary = %+v", batch.Summary)
	}

	if _, err := svc.ConfirmBatch(ctx, batch.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetServiceByUID(ctx, "S2"); err != nil {
		t.Errorf("REMOVED record was deleted by confirm: %v", err)
	}
}

func TestConfirmTerminalBatchFails(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)

	t.Run("after cancel", func(t *testing.T) {
		batch := stageRows(t, svc, []NormalizedRow{
			{UID: "S1", Values: map[string]Value{"budget": NumberValue(1200)}},
		})
		if err := svc.CancelBatch(ctx, batch.ID, "admin"); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.ConfirmBatch(ctx, batch.ID, "admin"); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("err = %v, want ErrInvalidState", err)
		}
		rec, _ := store.GetServiceByUID(ctx, "S1")
		fin, _ := store.GetFinancial(ctx, rec.ID, "FY25")
		if fin.Budget != 1000 {
			t.Errorf("budget = %v after refused confirm, want 1000", fin.Budget)
		}
	})

	t.Run("double confirm", func(t *testing.T) {
		batch := stageRows(t, svc, []NormalizedRow{
			{UID: "S1", Values: map[string]Value{"budget": NumberValue(1300)}},
		})
		if _, err := svc.ConfirmBatch(ctx, batch.ID, "admin"); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.ConfirmBatch(ctx, batch.ID, "admin"); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("err = %v, want ErrInvalidState", err)
		}
		audit, _ := store.ListAudit(ctx, AuditFilter{Limit: 100})
		if len(audit) != 1 {
			t.Errorf("got %d audit entries after double confirm, want 1", len(audit))
		}
	})

	t.Run("unknown batch", func(t *testing.T) {
		if _, err := svc.ConfirmBatch(ctx, "no-such-batch", "admin"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

// flakyStore injects an audit write failure mid-commit to prove the whole
// confirm rolls back.
type flakyStore struct {
	*MemStore
	failAudit bool
}

func (f *flakyStore) InTx(ctx context.Context, fn func(Store) error) error {
	return f.MemStore.InTx(ctx, func(Store) error {
		return fn(f)
	})
}

func (f *flakyStore) AppendAudit(ctx context.Context, e *AuditLogEntry) error {
	if f.failAudit {
		return errors.New("connection reset")
	}
	return f.MemStore.AppendAudit(ctx, e)
}

func TestConfirmBatchRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	mem := NewMemStore()
	store := &flakyStore{MemStore: mem}
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	seedRecord(t, mem, "S1", "Acme", "FY25", 1000, 800)
	seedRecord(t, mem, "S2", "Apex", "FY25", 500, 0)

	batch := stageRows(t, svc, []NormalizedRow{
		{UID: "S1", Values: map[string]Value{"budget": NumberValue(1200)}},
		{UID: "S2", Values: map[string]Value{"budget": NumberValue(900)}},
		{UID: "S3", Values: map[string]Value{"vendor": TextValue("Nimbus")}},
	})

	store.failAudit = true
	_, err := svc.ConfirmBatch(ctx, batch.ID, "admin")
	if err == nil {
		t.Fatal("ConfirmBatch succeeded despite audit failure")
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Errorf("err = %v, want StorageError", err)
	}

	// Nothing may be half-applied: budgets untouched, no new record, batch
	// still STAGED and confirmable after the fault clears.
	rec1, _ := mem.GetServiceByUID(ctx, "S1")
	fin1, _ := mem.GetFinancial(ctx, rec1.ID, "FY25")
	if fin1.Budget != 1000 {
		t.Errorf("S1 budget = %v, want 1000", fin1.Budget)
	}
	if _, err := mem.GetServiceByUID(ctx, "S3"); !errors.Is(err, ErrNotFound) {
		t.Error("NEW record survived the rollback")
	}
	got, _ := mem.GetBatch(ctx, batch.ID)
	if got.Status != BatchStaged {
		t.Errorf("status = %s after rollback, want STAGED", got.Status)
	}

	store.failAudit = false
	if _, err := svc.ConfirmBatch(ctx, batch.ID, "admin"); err != nil {
		t.Errorf("retry after fault: %v", err)
	}
}

func TestConfirmBatchUIDCreatedSinceStaging(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	batch := stageRows(t, svc, []NormalizedRow{
		{UID: "OPX-FY25-9", Values: map[string]Value{
			"vendor": TextValue("Acme"),
			"budget": NumberValue(100),
		}},
	})

	// The uid appears through another path between staging and confirm.
	seedRecord(t, store, "OPX-FY25-9", "Someone", "FY25", 50, 0)

	if _, err := svc.ConfirmBatch(ctx, batch.ID, "admin"); err != nil {
		t.Fatalf("ConfirmBatch: %v", err)
	}
	rec, _ := store.GetServiceByUID(ctx, "OPX-FY25-9")
	if rec.Vendor != "Acme" {
		t.Errorf("vendor = %q, want staged value applied", rec.Vendor)
	}
	fin, _ := store.GetFinancial(ctx, rec.ID, "FY25")
	if fin.Budget != 100 {
		t.Errorf("budget = %v, want 100", fin.Budget)
	}
}
