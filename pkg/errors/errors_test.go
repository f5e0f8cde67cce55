package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "row error",
			category:   CategoryRow,
			code:       CodeInvalidAmount,
			message:    "invalid amount",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "source error",
			category:   CategorySource,
			code:       CodeSourceUnavailable,
			message:    "shopify unavailable",
			cause:      errors.New("connection refused"),
			expectCode: 5,
		},
		{
			name:       "timeout error",
			category:   CategoryTimeout,
			code:       CodeDeadlineExceeded,
			message:    "timed out",
			cause:      context.DeadlineExceeded,
			expectCode: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryPersistence, CodeWriteFailed, "test error").
		WithContext("table", "Reconciliation").
		WithContext("rows", 42).
		WithSuggestion("check sheet access")

	if err.Context["table"] != "Reconciliation" {
		t.Errorf("expected table context 'Reconciliation', got %v", err.Context["table"])
	}
	if err.Context["rows"] != 42 {
		t.Errorf("expected rows context 42, got %v", err.Context["rows"])
	}

	expected := "test error (suggestion: check sheet access)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("SourceError keeps upstream message", func(t *testing.T) {
		cause := errors.New("503 Service Unavailable")
		err := SourceError(CodeSourceUnavailable, "shiprocket", cause)

		if err.Category != CategorySource {
			t.Errorf("expected category %s, got %s", CategorySource, err.Category)
		}
		if !strings.Contains(err.Message, "503 Service Unavailable") {
			t.Errorf("expected upstream message in %q", err.Message)
		}
		if err.Context["source"] != "shiprocket" {
			t.Errorf("expected source context, got %v", err.Context["source"])
		}
	})

	t.Run("AuthError is distinguishable from SourceError", func(t *testing.T) {
		err := AuthError(CodeInvalidCredentials, "shopify", errors.New("401"))

		if err.Category != CategoryAuth {
			t.Errorf("expected category %s, got %s", CategoryAuth, err.Category)
		}
		if !strings.Contains(err.Suggestion, "credentials") {
			t.Errorf("expected credentials hint, got %q", err.Suggestion)
		}
		if err.GetExitCode() == SourceError(CodeSourceUnavailable, "shopify", nil).GetExitCode() {
			t.Error("expected auth and source errors to have different exit codes")
		}
	})

	t.Run("RowError", func(t *testing.T) {
		err := RowError(CodeInvalidAmount, "1001", "orderTotal", "not-a-number", nil)

		if err.Category != CategoryRow {
			t.Errorf("expected category %s, got %s", CategoryRow, err.Category)
		}
		if err.Context["record_id"] != "1001" {
			t.Errorf("expected record_id context 1001, got %v", err.Context["record_id"])
		}
		if !strings.Contains(err.Message, "orderTotal") {
			t.Errorf("expected field name in message, got %q", err.Message)
		}
	})

	t.Run("PersistenceError", func(t *testing.T) {
		err := PersistenceError(CodePermissionDenied, "Reconciliation", errors.New("403"))

		if err.Category != CategoryPersistence {
			t.Errorf("expected category %s, got %s", CategoryPersistence, err.Category)
		}
		if err.Context["table"] != "Reconciliation" {
			t.Errorf("expected table context, got %v", err.Context["table"])
		}
	})

	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeInvalidFormat, "orders.csv", 10, "total", "abc", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected category %s, got %s", CategoryParse, err.Category)
		}
		if err.Context["line"] != 10 {
			t.Errorf("expected line context 10, got %v", err.Context["line"])
		}
	})
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"classified timeout", TimeoutError("fetch", nil), true},
		{"raw deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("fetch orders: %w", context.DeadlineExceeded), true},
		{"source wrapping deadline", SourceError(CodeSourceUnavailable, "shopify", context.DeadlineExceeded), true},
		{"plain source error", SourceError(CodeSourceUnavailable, "shopify", errors.New("boom")), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		RowError(CodeInvalidAmount, "1", "orderTotal", "x", nil),
		RowError(CodeInvalidAmount, "2", "netAmount", "y", nil),
		RowError(CodeMissingField, "3", "orderId", "", nil),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 3 {
		t.Errorf("expected total 3, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryRow] != 3 {
		t.Errorf("expected 3 row errors, got %d", summary.ByCategory[CategoryRow])
	}
	if summary.ByCode[CodeInvalidAmount] != 2 || summary.ByCode[CodeMissingField] != 1 {
		t.Errorf("unexpected code counts %v", summary.ByCode)
	}
	if summary.ByCategory[CategorySource] != 0 {
		t.Error("expected summary to not contain source errors")
	}
	if summary.Error() != "3 errors occurred (row: 3)" {
		t.Errorf("unexpected summary message %q", summary.Error())
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary(nil)

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got %s", summary.Error())
	}
}

func TestAsReconcilerError(t *testing.T) {
	original := PersistenceError(CodeWriteFailed, "Orders", nil)
	wrapped := fmt.Errorf("persist: %w", original)

	extracted, ok := AsReconcilerError(wrapped)
	if !ok {
		t.Fatal("expected to extract ReconcilerError from chain")
	}
	if extracted != original {
		t.Error("expected extracted error to be the original")
	}

	if _, ok := AsReconcilerError(errors.New("plain")); ok {
		t.Error("expected plain error to not be a ReconcilerError")
	}
	if !IsCategory(wrapped, CategoryPersistence) {
		t.Error("expected IsCategory to see through wrapping")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	original := New(CategoryAuth, CodeInvalidCredentials, "original")
	if result := WrapIfNeeded(original, CategoryInternal, CodeUnexpectedError, "wrapped"); result != original {
		t.Error("expected WrapIfNeeded to return original ReconcilerError")
	}

	plain := errors.New("plain error")
	result := WrapIfNeeded(plain, CategoryInternal, CodeUnexpectedError, "wrapped")
	if result.Cause != plain {
		t.Error("expected wrapped error to have plain error as cause")
	}

	if WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryRow, 3},
		{CategoryConfiguration, 4},
		{CategorySource, 5},
		{CategoryAuth, 6},
		{CategoryPersistence, 7},
		{CategoryTimeout, 8},
		{CategoryInternal, 9},
		{"unknown", 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}
