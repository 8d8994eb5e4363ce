package core

// errors.go defines the error kinds the rest of the application branches on
// and the mapping from technical errors to user-facing messages.
//
// Error codes are grouped by category:
//
//	NF001          - Not found (batch, record, lookup, audit entry)
//	ST001-ST002    - Invalid state (terminal batch, vanished field)
//	VAL001-VAL005  - Validation (bad file, bad row, bad value)
//	DB001-DB003    - Storage failures (surfaced as server-side errors)
//	RATE001        - Rate limited
//	EXP001         - Export produced no rows for a non-empty result
//
// Patterns are matched case-insensitively using strings.Contains; the first
// match wins, so more specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a batch, record, field, or log entry does not
// exist. The web layer surfaces it as 404.
var ErrNotFound = errors.New("not found")

// ErrInvalidState is returned when an operation is attempted against a
// terminal batch or a field that no longer exists. Surfaced as 409,
// distinctly from ErrNotFound.
var ErrInvalidState = errors.New("invalid state")

// ErrEmptyExport is returned when an export would emit a header-only file
// even though the underlying query returned rows.
var ErrEmptyExport = errors.New("export produced no data rows for a non-empty result set")

// ErrTooManyImports is returned when all import slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// ValidationError describes malformed input: a bad file, a bad row, or a bad
// value. It is reported per-row or per-request and is never fatal to a whole
// bulk import.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a *ValidationError with a formatted message.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a persistence failure. The unit of work that produced
// it has been rolled back in full; the web layer surfaces it as 500.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Storagef wraps err as a StorageError for operation op. Returns nil when
// err is nil so call sites can wrap unconditionally.
func Storagef(op string, err error) error {
	if err == nil {
		return nil
	}
	// Domain errors pass through untouched; only infrastructure failures
	// become storage errors.
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) || IsValidation(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "field no longer exists",
		msg: UserMessage{
			Message: "The audited field is no longer part of the data model",
			Action:  "This entry cannot be restored automatically",
			Code:    "ST002",
		},
	},
	{
		pattern: "invalid state",
		msg: UserMessage{
			Message: "This batch has already been confirmed or cancelled",
			Action:  "Stage a new upload to make further changes",
			Code:    "ST001",
		},
	},
	{
		pattern: "not found",
		msg: UserMessage{
			Message: "The requested batch, record, or entry does not exist",
			Action:  "Verify the identifier and try again",
			Code:    "NF001",
		},
	},
	{
		pattern: "not a valid xlsx workbook",
		msg: UserMessage{
			Message: "The file could not be read as an Excel workbook",
			Action:  "Save the sheet as .xlsx and upload again",
			Code:    "VAL001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "The file exceeds the maximum upload size",
			Action:  "Split the spreadsheet into smaller files",
			Code:    "VAL002",
		},
	},
	{
		pattern: "uid column",
		msg: UserMessage{
			Message: "No UID column was found in the header row",
			Action:  "Ensure the sheet has a UID column",
			Code:    "VAL003",
		},
	},
	{
		pattern: "export produced no data rows",
		msg: UserMessage{
			Message: "Export failed: the file would have been empty",
			Action:  "Please retry; contact support if this persists",
			Code:    "EXP001",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The sheet contains no data rows below the header",
			Action:  "Upload a sheet with at least one record",
			Code:    "VAL004",
		},
	},
	{
		pattern: "invalid value",
		msg: UserMessage{
			Message: "A value could not be converted to the field's type",
			Action:  "Check number and date formats in the sheet",
			Code:    "VAL005",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "Too many imports are running right now",
			Action:  "Please wait a moment and try again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "The database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection",
		msg: UserMessage{
			Message: "Unable to reach the database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "storage:",
		msg: UserMessage{
			Message: "Saving your changes failed and nothing was applied",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
}

// defaultUserMessage is the fallback when no pattern matches.
var defaultUserMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message with a
// support code. Validation errors keep their own text since it is already
// written for the user.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return UserMessage{Message: ve.Msg, Action: "Correct the input and retry", Code: "VAL000"}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}
	return defaultUserMessage
}
