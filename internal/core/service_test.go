package core

import (
	"context"
	"errors"
	"testing"
)

func TestCreateRecord(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	got, err := svc.CreateRecord(ctx, "OPX-FY25-001", RecordUpdate{
		FiscalYear: "FY25",
		Fields: map[string]string{
			"vendor":     "Acme",
			"budget":     "$1,000",
			"start_date": "2025-04-01",
		},
		User: "editor",
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if got.Service.Vendor != "Acme" {
		t.Errorf("vendor = %q", got.Service.Vendor)
	}
	if got.Service.StartDate == nil || got.Service.StartDate.Format("2006-01-02") != "2025-04-01" {
		t.Errorf("start date = %v", got.Service.StartDate)
	}
	if got.Financial == nil || got.Financial.Budget != 1000 {
		t.Errorf("financial = %+v", got.Financial)
	}

	// Creation is logged as activity, not as field audit.
	audit, _ := store.ListAudit(ctx, AuditFilter{Limit: 10})
	if len(audit) != 0 {
		t.Errorf("got %d audit entries for create, want 0", len(audit))
	}
}

func TestCreateRecordValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.CreateRecord(ctx, "", RecordUpdate{FiscalYear: "FY25"}); !IsValidation(err) {
		t.Errorf("blank uid: err = %v", err)
	}
	if _, err := svc.CreateRecord(ctx, "S1", RecordUpdate{}); !IsValidation(err) {
		t.Errorf("missing fiscal year: err = %v", err)
	}
	if _, err := svc.CreateRecord(ctx, "S1", RecordUpdate{
		FiscalYear: "FY25",
		Fields:     map[string]string{"bogus": "x"},
	}); !IsValidation(err) {
		t.Errorf("unknown field: err = %v", err)
	}

	if _, err := svc.CreateRecord(ctx, "S1", RecordUpdate{FiscalYear: "FY25"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateRecord(ctx, "S1", RecordUpdate{FiscalYear: "FY25"}); !IsValidation(err) {
		t.Errorf("duplicate uid: err = %v", err)
	}
}

func TestUpdateRecordSkipsNoOpFields(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	rec := seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)

	if _, err := svc.UpdateRecord(ctx, rec.ID, RecordUpdate{
		FiscalYear: "FY25",
		Fields: map[string]string{
			"vendor": "  Acme  ", // trims equal, no change
			"budget": "1000",     // equal, no change
			"tower":  "Infra",    // actual change
		},
		User: "editor",
	}); err != nil {
		t.Fatal(err)
	}

	audit, _ := store.ListAudit(ctx, AuditFilter{Limit: 10})
	if len(audit) != 1 {
		t.Fatalf("got %d audit entries, want 1 (only the real change)", len(audit))
	}
	if audit[0].Field != "tower" || audit[0].NewValue != "Infra" {
		t.Errorf("audit = %+v", audit[0])
	}
}

func TestUpdateRecordLazyFinancial(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	rec := seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)

	// First write for FY26 creates the financial row on the fly.
	got, err := svc.UpdateRecord(ctx, rec.ID, RecordUpdate{
		FiscalYear: "FY26",
		Fields:     map[string]string{"budget": "2000"},
		User:       "editor",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Financial == nil || got.Financial.Budget != 2000 {
		t.Fatalf("financial = %+v", got.Financial)
	}

	fy25, _ := store.GetFinancial(ctx, rec.ID, "FY25")
	if fy25.Budget != 1000 {
		t.Errorf("FY25 budget = %v, want untouched 1000", fy25.Budget)
	}

	// A text-only edit scoped to a year with no financial row must not
	// create one, or the record would leak into that year's tracker view.
	if _, err := svc.UpdateRecord(ctx, rec.ID, RecordUpdate{
		FiscalYear: "FY27",
		Fields:     map[string]string{"vendor": "Apex"},
		User:       "editor",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetFinancial(ctx, rec.ID, "FY27"); !errors.Is(err, ErrNotFound) {
		t.Errorf("text-only update created a FY27 financial row: %v", err)
	}
	page, err := store.QueryTracker(ctx, TrackerQuery{FiscalYear: "FY27", PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalRows != 0 {
		t.Errorf("FY27 tracker rows = %d, want 0", page.TotalRows)
	}
}

func TestDeleteRecord(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	rec := seedRecord(t, store, "S1", "Acme", "FY25", 1000, 800)

	if err := svc.DeleteRecord(ctx, rec.ID, "admin"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := store.GetServiceByUID(ctx, "S1"); !errors.Is(err, ErrNotFound) {
		t.Error("record still present")
	}
	if _, err := store.GetFinancial(ctx, rec.ID, "FY25"); !errors.Is(err, ErrNotFound) {
		t.Error("financial rows survived delete")
	}
	if err := svc.DeleteRecord(ctx, rec.ID, "admin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestTrackerFiscalYearMatch(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	// Matched through its FY25 financial row.
	seedRecord(t, store, "SVC-001", "Acme", "FY25", 1000, 800)
	// Matched through the year label in its uid, no financial row yet.
	if err := store.CreateService(ctx, &ServiceRecord{UID: "OPX-FY25-002", Vendor: "Apex"}); err != nil {
		t.Fatal(err)
	}
	// Different year entirely.
	seedRecord(t, store, "SVC-003", "Nimbus", "FY24", 700, 0)

	page, err := svc.Tracker(ctx, TrackerQuery{FiscalYear: "FY25"})
	if err != nil {
		t.Fatalf("Tracker: %v", err)
	}
	if page.TotalRows != 2 {
		t.Fatalf("TotalRows = %d, want 2: %+v", page.TotalRows, page.Rows)
	}

	byUID := make(map[string]TrackerRow)
	for _, r := range page.Rows {
		byUID[r.UID] = r
	}
	if r := byUID["SVC-001"]; r.Budget != 1000 || r.Variance != 200 {
		t.Errorf("SVC-001 = %+v", r)
	}
	if r := byUID["OPX-FY25-002"]; r.Budget != 0 {
		t.Errorf("uid-matched row = %+v, want zero financials", r)
	}
}

func TestTrackerSearchAndPaging(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedRecord(t, store, "S1", "Acme Corp", "FY25", 1000, 800)
	seedRecord(t, store, "S2", "Apex Ltd", "FY25", 500, 100)
	seedRecord(t, store, "S3", "Acme Cloud", "FY25", 300, 0)

	page, err := svc.Tracker(ctx, TrackerQuery{FiscalYear: "FY25", Search: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalRows != 2 {
		t.Errorf("search matched %d rows, want 2", page.TotalRows)
	}

	paged, err := svc.Tracker(ctx, TrackerQuery{FiscalYear: "FY25", Page: 2, PageSize: 2, SortField: "budget"})
	if err != nil {
		t.Fatal(err)
	}
	if len(paged.Rows) != 1 || paged.TotalPages != 2 {
		t.Errorf("page 2 = %+v", paged)
	}
	if paged.Rows[0].Budget != 1000 {
		t.Errorf("budget sort: last row = %+v", paged.Rows[0])
	}
}
