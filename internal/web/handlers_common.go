package web

// handlers_common.go holds shared helpers used across the handler files.

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
)

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// requestUser resolves the acting username for audit and activity entries.
// Authentication is handled upstream; the gateway forwards the identity in
// X-User. Form submissions may carry it as a field instead.
func requestUser(r *http.Request) string {
	if u := r.Header.Get("X-User"); u != "" {
		return u
	}
	if u := r.FormValue("user"); u != "" {
		return u
	}
	return "system"
}

// uploadFile extracts the spreadsheet from a multipart request, capping the
// body at the configured maximum file size.
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		return nil, nil, core.Validationf("file too large or invalid form data")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, core.Validationf("no file provided")
	}
	return file, header, nil
}

// trackerQuery builds a TrackerQuery from request parameters.
func trackerQuery(r *http.Request) core.TrackerQuery {
	return core.TrackerQuery{
		FiscalYear: r.URL.Query().Get("fy"),
		Search:     r.URL.Query().Get("search"),
		SortField:  r.URL.Query().Get("sort"),
		SortDesc:   r.URL.Query().Get("dir") == "desc",
		Page:       parseIntParam(r, "page", 1),
		PageSize:   parseIntParam(r, "pageSize", 50),
	}
}
