package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExportTracker streams the tracker grid for a fiscal year as an xlsx
// workbook. Search and sort parameters apply, pagination does not: the export
// always covers the full filtered result set.
func (s *Server) handleExportTracker(w http.ResponseWriter, r *http.Request) {
	q := trackerQuery(r)
	if q.FiscalYear == "" {
		s.respondError(w, r, core.Validationf("fy query parameter is required"))
		return
	}

	data, err := s.service.ExportTracker(r.Context(), q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sendWorkbook(w, fmt.Sprintf("tracker_%s_%s.xlsx", q.FiscalYear, time.Now().Format("20060102_150405")), data)
}

// handleExportBatchDiff streams a staged batch's diff as an xlsx workbook for
// offline review.
func (s *Server) handleExportBatchDiff(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	data, err := s.service.ExportBatchDiff(r.Context(), batchID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sendWorkbook(w, fmt.Sprintf("reupload_diff_%s.xlsx", batchID), data)
}

func sendWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(data)
}
