package web

import (
	"net/http"
	"strconv"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleAuditLog lists audit entries, newest first. Filters: entity,
// recordId, field, limit, offset.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	f := core.AuditFilter{
		Entity: core.Entity(r.URL.Query().Get("entity")),
		Field:  r.URL.Query().Get("field"),
		Limit:  parseIntParam(r, "limit", 100),
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.Offset = n
		}
	}
	if raw := r.URL.Query().Get("recordId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(w, r, core.Validationf("invalid recordId %q", raw))
			return
		}
		f.RecordID = id
	}

	entries, err := s.service.AuditTrail(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, entries)
}

// handleRestoreAudit re-applies the old value of an audit entry to its field.
// The restore itself is audited, so it can in turn be undone.
func (s *Server) handleRestoreAudit(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		s.respondError(w, r, core.Validationf("invalid audit entry id %q", raw))
		return
	}

	if err := s.service.RestoreAuditEntry(r.Context(), id, requestUser(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]string{"status": "restored"})
}

// handleActivity lists recent coarse activity entries.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.Activity(r.Context(), parseIntParam(r, "limit", 100))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, entries)
}
