package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleImportAllocations ingests a basis-of-allocation workbook: column A
// identifies the service, column B the basis, column C the declared total,
// and every header from column D on names an entity with its share. Rows
// that match no service are reported as failures; the rest still apply.
func (s *Server) handleImportAllocations(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.uploadFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	sheet, err := s.service.ReadAllocationUpload(ctx, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.ImportAllocations(ctx, sheet, requestUser(r), header.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, result)
}

// handleListAllocations returns every service's allocation split.
func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	allocs, err := s.service.ListAllocations(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, allocs)
}

// handleGetAllocation returns the allocation split for one service.
func (s *Server) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "serviceID"), 10, 64)
	if err != nil || id < 1 {
		s.respondError(w, r, core.Validationf("invalid service id"))
		return
	}
	alloc, err := s.service.Allocation(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, alloc)
}
