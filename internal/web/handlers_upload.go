package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleImport applies an uploaded spreadsheet directly: every row with a uid
// is upserted, failures are collected per row, and the remaining rows still
// go through. The response carries the aggregate counts and per-row reasons.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.uploadFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	rows, skipped, fiscalYear, err := s.service.ReadUpload(ctx, file, r.FormValue("fiscal_year"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.ImportRows(ctx, rows, skipped, fiscalYear, requestUser(r), header.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, result)
}

// handleStageUpload normalizes and diffs an uploaded spreadsheet against the
// live records and persists the result as a STAGED batch. Nothing is applied
// until the batch is confirmed.
func (s *Server) handleStageUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.uploadFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	rows, _, fiscalYear, err := s.service.ReadUpload(ctx, file, r.FormValue("fiscal_year"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	batch, err := s.service.StageUpload(ctx, rows, fiscalYear, requestUser(r), header.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, r, batch)
}

// handleListBatches returns recent staged batches, newest first.
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.service.ListBatches(r.Context(), parseIntParam(r, "limit", 50))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, batches)
}

// handleGetBatch returns one batch's metadata and diff summary.
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.service.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, batch)
}

// handleBatchChanges returns the per-key diff rows of a batch for review.
func (s *Server) handleBatchChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := s.service.GetChanges(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, changes)
}

// handleConfirmBatch applies a staged batch in one transaction.
func (s *Server) handleConfirmBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.service.ConfirmBatch(r.Context(), chi.URLParam(r, "batchID"), requestUser(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, batch)
}

// handleCancelBatch discards a staged batch without touching record data.
func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if err := s.service.CancelBatch(r.Context(), batchID, requestUser(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]string{"status": "cancelled"})
}

// handleImportLogs returns recent direct import runs.
func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.service.ImportLogs(r.Context(), parseIntParam(r, "limit", 50))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, logs)
}

// handleImportQueue reports the current state of the import slot limiter,
// for monitoring and to check if the system can accept more uploads.
func (s *Server) handleImportQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"active": s.service.Limiter().ActiveCount(),
		"max":    s.cfg.Import.MaxConcurrent,
	})
}
