package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleListLookups returns the merged value list for one lookup kind:
// user-defined rows plus values observed in tracker data.
func (s *Server) handleListLookups(w http.ResponseWriter, r *http.Request) {
	values, err := s.service.Lookups(r.Context(), core.LookupKind(chi.URLParam(r, "kind")))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, values)
}

// handleCreateLookup adds a user-defined value to a lookup list.
func (s *Server) handleCreateLookup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, core.Validationf("invalid request body: %v", err))
		return
	}

	lookup, err := s.service.CreateLookup(r.Context(), core.LookupKind(chi.URLParam(r, "kind")), req.Name, requestUser(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, r, lookup)
}

// handleDeleteLookup removes a user-defined lookup value. Derived values have
// no stored row and cannot be deleted.
func (s *Server) handleDeleteLookup(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		s.respondError(w, r, core.Validationf("invalid lookup id %q", raw))
		return
	}

	if err := s.service.DeleteLookup(r.Context(), id, requestUser(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]string{"status": "deleted"})
}
