package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagan2k22/OPEX-Manager/internal/config"
	"github.com/gagan2k22/OPEX-Manager/internal/core"
	"github.com/xuri/excelize/v2"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: time.Minute,
		},
		Import: config.ImportConfig{
			MaxFileSize:   25 << 20,
			MaxConcurrent: 5,
			MaxWaitTime:   time.Second,
			Timeout:       time.Minute,
		},
		Rate: config.RateLimitConfig{
			Enabled: false,
		},
		Security: config.SecurityConfig{
			EnableCSP: true,
		},
	}
}

func newTestServer(t *testing.T) (*Server, *core.MemStore) {
	t.Helper()
	store := core.NewMemStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := core.NewService(store, log)
	return NewServer(svc, testConfig()), store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", "tester")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestTrackerRequiresFiscalYear(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/tracker", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "VAL000" {
		t.Errorf("code = %q, want VAL000", resp.Code)
	}
}

func TestRecordLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	create := doJSON(t, srv, http.MethodPost, "/api/records", recordRequest{
		UID:        "FY25-SVC-001",
		FiscalYear: "FY25",
		Fields: map[string]string{
			"vendor": "Acme Corp",
			"budget": "1,000",
		},
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", create.Code, create.Body.String())
	}
	var created core.ServiceWithFinancial
	decodeBody(t, create, &created)
	if created.Service.Vendor != "Acme Corp" {
		t.Errorf("vendor = %q, want Acme Corp", created.Service.Vendor)
	}
	if created.Financial == nil || created.Financial.Budget != 1000 {
		t.Errorf("financial = %+v, want budget 1000", created.Financial)
	}

	id := created.Service.ID

	update := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/records/%d", id), recordRequest{
		FiscalYear: "FY25",
		Fields:     map[string]string{"vendor": "Beta LLC"},
	})
	if update.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", update.Code, update.Body.String())
	}

	get := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/records/%d?fy=FY25", id), nil)
	if get.Code != http.StatusOK {
		t.Fatalf("get status = %d", get.Code)
	}
	var fetched core.ServiceWithFinancial
	decodeBody(t, get, &fetched)
	if fetched.Service.Vendor != "Beta LLC" {
		t.Errorf("vendor after update = %q, want Beta LLC", fetched.Service.Vendor)
	}

	tracker := doJSON(t, srv, http.MethodGet, "/api/tracker?fy=FY25", nil)
	if tracker.Code != http.StatusOK {
		t.Fatalf("tracker status = %d", tracker.Code)
	}
	var page core.TrackerPage
	decodeBody(t, tracker, &page)
	if page.TotalRows != 1 {
		t.Errorf("tracker rows = %d, want 1", page.TotalRows)
	}

	del := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/records/%d", id), nil)
	if del.Code != http.StatusOK {
		t.Fatalf("delete status = %d", del.Code)
	}

	gone := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/records/%d?fy=FY25", id), nil)
	if gone.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", gone.Code)
	}
	var resp ErrorResponse
	decodeBody(t, gone, &resp)
	if resp.Code != "NF001" {
		t.Errorf("code = %q, want NF001", resp.Code)
	}
}

func TestUpdateUnknownFieldRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	create := doJSON(t, srv, http.MethodPost, "/api/records", recordRequest{
		UID: "FY25-SVC-002", FiscalYear: "FY25",
		Fields: map[string]string{"vendor": "Acme"},
	})
	var created core.ServiceWithFinancial
	decodeBody(t, create, &created)

	rec := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/records/%d", created.Service.ID), recordRequest{
		FiscalYear: "FY25",
		Fields:     map[string]string{"Bogus Column": "x"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// buildUpload creates a multipart body carrying a small xlsx workbook.
func buildUpload(t *testing.T, fiscalYear string, rows [][]any) (io.Reader, string) {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, _ := excelize.JoinCellName("A", i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var wb bytes.Buffer
	if err := f.Write(&wb); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fiscalYear != "" {
		mw.WriteField("fiscal_year", fiscalYear)
	}
	fw, err := mw.CreateFormFile("file", "upload.xlsx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(wb.Bytes()); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func postUpload(t *testing.T, srv *Server, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User", "tester")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestDirectImport(t *testing.T) {
	srv, store := newTestServer(t)

	body, ct := buildUpload(t, "FY25", [][]any{
		{"UID", "Vendor", "Budget", "Actuals"},
		{"FY25-A-1", "Acme", 1000, 400},
		{"FY25-A-2", "Beta", 2000, 0},
		{"", "NoKey", 5, 5},
	})

	rec := postUpload(t, srv, "/api/import", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result core.ImportResult
	decodeBody(t, rec, &result)
	if result.Success != 2 || result.Skipped != 1 {
		t.Errorf("result = %+v, want 2 success 1 skipped", result)
	}

	if _, err := store.GetServiceByUID(context.Background(), "FY25-A-1"); err != nil {
		t.Errorf("imported record missing: %v", err)
	}
}

func TestStagedReuploadFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	// Seed one record so the re-upload produces a MODIFIED row.
	doJSON(t, srv, http.MethodPost, "/api/records", recordRequest{
		UID: "FY25-S-1", FiscalYear: "FY25",
		Fields: map[string]string{"vendor": "Acme", "budget": "100"},
	})

	body, ct := buildUpload(t, "FY25", [][]any{
		{"UID", "Vendor", "Budget"},
		{"FY25-S-1", "Acme", 250},
		{"FY25-S-2", "Gamma", 50},
	})

	stage := postUpload(t, srv, "/api/reupload", body, ct)
	if stage.Code != http.StatusCreated {
		t.Fatalf("stage status = %d, body %s", stage.Code, stage.Body.String())
	}
	var batch core.ImportBatch
	decodeBody(t, stage, &batch)
	if batch.Status != core.BatchStaged {
		t.Fatalf("batch status = %s, want STAGED", batch.Status)
	}
	if batch.Summary.New != 1 || batch.Summary.Modified != 1 {
		t.Errorf("summary = %+v, want 1 new 1 modified", batch.Summary)
	}

	changes := doJSON(t, srv, http.MethodGet, "/api/reupload/"+batch.ID+"/changes", nil)
	if changes.Code != http.StatusOK {
		t.Fatalf("changes status = %d", changes.Code)
	}
	var diff []core.StagingChange
	decodeBody(t, changes, &diff)
	if len(diff) != 2 {
		t.Fatalf("changes = %d, want 2", len(diff))
	}

	confirm := doJSON(t, srv, http.MethodPost, "/api/reupload/"+batch.ID+"/confirm", nil)
	if confirm.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body %s", confirm.Code, confirm.Body.String())
	}

	// Terminal batch: cancelling now must conflict, not cancel.
	cancel := doJSON(t, srv, http.MethodPost, "/api/reupload/"+batch.ID+"/cancel", nil)
	if cancel.Code != http.StatusConflict {
		t.Fatalf("cancel after confirm status = %d, want 409", cancel.Code)
	}
	var resp ErrorResponse
	decodeBody(t, cancel, &resp)
	if resp.Code != "ST001" {
		t.Errorf("code = %q, want ST001", resp.Code)
	}

	tracker := doJSON(t, srv, http.MethodGet, "/api/tracker?fy=FY25", nil)
	var page core.TrackerPage
	decodeBody(t, tracker, &page)
	if page.TotalRows != 2 {
		t.Errorf("tracker rows after confirm = %d, want 2", page.TotalRows)
	}
}

func TestUnknownBatchGives404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/reupload/no-such-batch", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestInvalidWorkbookRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "legacy.xls")
	fw.Write([]byte("this is not a zip archive"))
	mw.Close()

	rec := postUpload(t, srv, "/api/import", &body, mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "VAL000" && resp.Code != "VAL001" {
		t.Errorf("code = %q, want a validation code", resp.Code)
	}
}

func TestAuditAndRestore(t *testing.T) {
	srv, _ := newTestServer(t)

	create := doJSON(t, srv, http.MethodPost, "/api/records", recordRequest{
		UID: "FY25-R-1", FiscalYear: "FY25",
		Fields: map[string]string{"vendor": "Original"},
	})
	var created core.ServiceWithFinancial
	decodeBody(t, create, &created)

	doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/records/%d", created.Service.ID), recordRequest{
		FiscalYear: "FY25",
		Fields:     map[string]string{"vendor": "Changed"},
	})

	audit := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/audit?recordId=%d", created.Service.ID), nil)
	if audit.Code != http.StatusOK {
		t.Fatalf("audit status = %d", audit.Code)
	}
	var entries []core.AuditLogEntry
	decodeBody(t, audit, &entries)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].OldValue != "Original" || entries[0].NewValue != "Changed" {
		t.Errorf("entry = %+v, want Original -> Changed", entries[0])
	}

	restore := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/audit/%d/restore", entries[0].ID), nil)
	if restore.Code != http.StatusOK {
		t.Fatalf("restore status = %d, body %s", restore.Code, restore.Body.String())
	}

	get := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/records/%d?fy=FY25", created.Service.ID), nil)
	var fetched core.ServiceWithFinancial
	decodeBody(t, get, &fetched)
	if fetched.Service.Vendor != "Original" {
		t.Errorf("vendor after restore = %q, want Original", fetched.Service.Vendor)
	}
}

func TestAllocationImport(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	rec := doJSON(t, srv, http.MethodPost, "/api/records", recordRequest{
		UID:        "OPX-001",
		FiscalYear: "FY25",
		Fields:     map[string]string{"vendor": "Acme"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body.String())
	}

	body, ct := buildUpload(t, "", [][]any{
		{"Vendor/Service", "Basis of Allocation", "Total Count", "Entity A", "Entity B"},
		{"OPX-001", "Headcount", 10, 6, 4},
		{"Ghost", "Usage", 2, 2, 0},
	})
	rec = postUpload(t, srv, "/api/allocations/import", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: status = %d: %s", rec.Code, rec.Body.String())
	}
	var result core.ImportResult
	decodeBody(t, rec, &result)
	if result.Success != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v", result)
	}

	svc, err := store.GetServiceByUID(ctx, "OPX-001")
	if err != nil {
		t.Fatal(err)
	}
	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/allocations/%d", svc.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var alloc core.ServiceAllocation
	decodeBody(t, rec, &alloc)
	if alloc.Basis != "Headcount" || alloc.TotalCount != 10 || len(alloc.Entities) != 2 {
		t.Errorf("allocation = %+v", alloc)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/allocations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var allocs []core.ServiceAllocation
	decodeBody(t, rec, &allocs)
	if len(allocs) != 1 || allocs[0].UID != "OPX-001" {
		t.Errorf("allocations = %+v", allocs)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/allocations/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown service: status = %d", rec.Code)
	}
}

func TestLookups(t *testing.T) {
	srv, _ := newTestServer(t)

	create := doJSON(t, srv, http.MethodPost, "/api/lookups/tower", map[string]string{"name": "Infrastructure"})
	if create.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", create.Code, create.Body.String())
	}

	bad := doJSON(t, srv, http.MethodPost, "/api/lookups/nonsense", map[string]string{"name": "X"})
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("bad kind status = %d, want 400", bad.Code)
	}

	list := doJSON(t, srv, http.MethodGet, "/api/lookups/tower", nil)
	var values []core.Lookup
	decodeBody(t, list, &values)
	if len(values) != 1 || values[0].Name != "Infrastructure" {
		t.Errorf("lookups = %+v, want one Infrastructure entry", values)
	}
}

func TestExportTracker(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/api/records", recordRequest{
		UID: "FY25-X-1", FiscalYear: "FY25",
		Fields: map[string]string{"vendor": "Acme", "budget": "100"},
	})

	rec := doJSON(t, srv, http.MethodGet, "/api/tracker/export?fy=FY25", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "tracker_FY25_") {
		t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("exported bytes are not a workbook: %v", err)
	}
	defer f.Close()
}

func TestRateLimitMiddleware(t *testing.T) {
	store := core.NewMemStore()
	svc := core.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 2
	cfg.Rate.ImportLimit = 1
	srv := NewServer(svc, cfg)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}
