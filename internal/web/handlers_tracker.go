package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleTracker returns one page of the tracker grid for a fiscal year.
func (s *Server) handleTracker(w http.ResponseWriter, r *http.Request) {
	q := trackerQuery(r)
	if q.FiscalYear == "" {
		s.respondError(w, r, core.Validationf("fy query parameter is required"))
		return
	}

	page, err := s.service.Tracker(r.Context(), q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, page)
}

// recordRequest is the JSON body for record create and update calls. Fields
// maps registry field names to raw values, coerced server-side like import
// cells.
type recordRequest struct {
	UID        string            `json:"uid"`
	FiscalYear string            `json:"fiscalYear"`
	Fields     map[string]string `json:"fields"`
}

// handleCreateRecord creates a service record plus its initial financial row.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, core.Validationf("invalid request body: %v", err))
		return
	}

	rec, err := s.service.CreateRecord(r.Context(), req.UID, core.RecordUpdate{
		FiscalYear: req.FiscalYear,
		Fields:     req.Fields,
		User:       requestUser(r),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, r, rec)
}

// handleGetRecord returns one record with its financial row for the fiscal
// year in the fy query parameter.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.service.GetRecord(r.Context(), id, r.URL.Query().Get("fy"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, rec)
}

// handleUpdateRecord applies a partial field update, writing one audit entry
// per field that actually changed.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, core.Validationf("invalid request body: %v", err))
		return
	}

	rec, err := s.service.UpdateRecord(r.Context(), id, core.RecordUpdate{
		FiscalYear: req.FiscalYear,
		Fields:     req.Fields,
		User:       requestUser(r),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, rec)
}

// handleDeleteRecord removes a record and its financial rows. Deletion is
// always explicit; no import path ever reaches this.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.DeleteRecord(r.Context(), id, requestUser(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]string{"status": "deleted"})
}

// recordID parses the {id} route parameter.
func recordID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, core.Validationf("invalid record id %q", raw)
	}
	return id, nil
}
