package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestXcatError_Error(t *testing.T) {
	err := New(ErrCategoryStorage, CodeStoreUnavailable, "put failed")
	expected := "[STORAGE:STORE_UNAVAILABLE] put failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestXcatError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeStoreUnavailable, "put failed", cause)
	expected := "[STORAGE:STORE_UNAVAILABLE] put failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestXcatError_ErrorWithDetails(t *testing.T) {
	err := NewMalformedRecord("no separator", nil).WithDetails(map[string]interface{}{
		DetailOperation: "analyze",
		DetailLine:      3,
	})
	expected := "[RECORD:MALFORMED_RECORD] no separator (line=3, operation=analyze)"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestXcatError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryEngine, CodeEngineFailure, "analyze failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestXcatError_Is(t *testing.T) {
	err1 := New(ErrCategoryRecord, CodeMalformedRecord, "first")
	err2 := New(ErrCategoryRecord, CodeMalformedRecord, "second")
	err3 := New(ErrCategoryRecord, CodeUnrepresentable, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", err1), ErrMalformedRecord) {
		t.Error("sentinel should match through fmt wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeStoreUnavailable, true},
		{ErrCategoryStorage, CodeCheckpointExists, false},
		{ErrCategoryContext, CodeContextLoadFailed, false},
		{ErrCategoryDispatch, CodeUnknownOperation, false},
		{ErrCategoryRecord, CodeMalformedRecord, false},
		{ErrCategoryEngine, CodeEngineFailure, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewUnknownOperation("frobnicate")
	if GetCategory(err) != ErrCategoryDispatch {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryDispatch)
	}
	if GetCode(err) != CodeUnknownOperation {
		t.Errorf("got %q, want %q", GetCode(err), CodeUnknownOperation)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" || GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-XcatError should return empty category and code")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewContextError("bad table", nil)
	detailed := err.WithDetails(map[string]interface{}{"path": "table.json"})

	if detailed.Details["path"] != "table.json" {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}

	merged := detailed.WithDetails(map[string]interface{}{DetailLine: 2})
	if merged.Details["path"] != "table.json" || merged.Details[DetailLine] != 2 {
		t.Errorf("WithDetails should merge, got %v", merged.Details)
	}
}

func TestAnnotate(t *testing.T) {
	foreign := fmt.Errorf("singular matrix")
	annotated := Annotate(foreign, map[string]interface{}{DetailLine: 7})
	if annotated.Category != ErrCategoryEngine || !errors.Is(annotated, foreign) {
		t.Errorf("foreign errors should become engine failures, got %v", annotated)
	}

	store := NewStoreUnavailable("s3 down", foreign)
	annotated = Annotate(store, map[string]interface{}{DetailLine: 7})
	if annotated.Code != CodeStoreUnavailable || annotated.Details[DetailLine] != 7 {
		t.Errorf("XcatErrors should keep their code, got %v", annotated)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	c := NewContextError("missing table", cause)
	if c.Category != ErrCategoryContext || !errors.Is(c, ErrContextLoad) || !errors.Is(c, cause) {
		t.Error("NewContextError mismatch")
	}

	u := NewUnknownOperation("bogus")
	if !errors.Is(u, ErrUnknownOperation) {
		t.Error("NewUnknownOperation mismatch")
	}

	s := NewStoreUnavailable("gcs down", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, ErrStoreUnavailable) {
		t.Error("NewStoreUnavailable mismatch")
	}

	x := NewCheckpointExists("p_seed_1_chunk_0")
	if !errors.Is(x, ErrCheckpointExists) {
		t.Error("NewCheckpointExists mismatch")
	}

	e := NewEngineError("diverged", cause)
	if !errors.Is(e, ErrEngineFailure) {
		t.Error("NewEngineError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
