package web

// errors.go provides unified error response handling for the web layer.
//
// Every handler error goes through respondError:
//  1. The error is classified into an HTTP status from its kind.
//  2. Technical details are logged with the request ID for correlation.
//  3. The client receives a JSON envelope built by core.MapError, carrying a
//     user-facing message, a suggested action, and a support code.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
	"github.com/gagan2k22/OPEX-Manager/internal/logging"
)

// ErrorResponse is the JSON structure for API error responses. Code is the
// machine-readable field; Message and Action are written for the user.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the user-facing envelope
// with a status derived from the error kind.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusFor(err)
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor maps an error kind to an HTTP status code. NotFound and
// InvalidState stay distinct: a missing batch is 404, a terminal one is 409.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case core.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON. Encoding errors are logged since headers are
// already sent by then.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode failed", "error", err)
	}
}
