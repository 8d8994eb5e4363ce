package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error", err: nil, wantCode: ""},
		{name: "not found", err: ErrNotFound, wantCode: "NF001"},
		{name: "wrapped not found", err: fmt.Errorf("get batch: %w", ErrNotFound), wantCode: "NF001"},
		{name: "invalid state", err: fmt.Errorf("%w: batch b1 is CONFIRMED", ErrInvalidState), wantCode: "ST001"},
		{name: "vanished field", err: fmt.Errorf("%w: field no longer exists: ServiceRecord.legacy", ErrInvalidState), wantCode: "ST002"},
		{name: "bad workbook", err: Validationf("not a valid xlsx workbook: zip: not a valid zip file"), wantCode: "VAL000"},
		{name: "empty export", err: ErrEmptyExport, wantCode: "EXP001"},
		{name: "empty export wrapped", err: fmt.Errorf("tracker export: %w", ErrEmptyExport), wantCode: "EXP001"},
		{name: "empty sheet", err: errors.New("the sheet contains no data rows below the header"), wantCode: "VAL004"},
		{name: "too many imports", err: ErrTooManyImports, wantCode: "RATE001"},
		{name: "deadlock", err: errors.New("deadlock detected"), wantCode: "DB002"},
		{name: "connection", err: errors.New("connection refused"), wantCode: "DB003"},
		{name: "storage wrap", err: &StorageError{Op: "confirm batch", Err: errors.New("tx aborted")}, wantCode: "DB001"},
		{name: "unknown", err: errors.New("something odd"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("empty user message")
			}
		})
	}
}

func TestMapErrorKeepsValidationText(t *testing.T) {
	err := Validationf("unknown field %q", "bogus")
	got := MapError(err)
	if got.Message != `unknown field "bogus"` {
		t.Errorf("Message = %q, want validation text preserved", got.Message)
	}
}

func TestStoragef(t *testing.T) {
	if Storagef("op", nil) != nil {
		t.Error("Storagef(nil) != nil")
	}
	// Domain errors pass through unwrapped.
	if err := Storagef("op", ErrNotFound); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	var se *StorageError
	if err := Storagef("op", ErrInvalidState); errors.As(err, &se) {
		t.Error("domain error was wrapped as StorageError")
	}
	if err := Storagef("op", Validationf("bad")); !IsValidation(err) {
		t.Error("validation error was swallowed")
	}

	err := Storagef("confirm batch", errors.New("tx aborted"))
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	if se.Op != "confirm batch" {
		t.Errorf("Op = %q", se.Op)
	}
}
