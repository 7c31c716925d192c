package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeStateConflict, http.StatusUnprocessableEntity},
		{CodeConflict, http.StatusConflict},
		{CodeNotFound, http.StatusNotFound},
		{CodeDependency, http.StatusServiceUnavailable},
		{CodeProviderNotConfigured, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		if got := MetadataFor(tc.code).HTTPStatus; got != tc.status {
			t.Fatalf("MetadataFor(%s) = %d, want %d", tc.code, got, tc.status)
		}
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("WHO_KNOWS"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("socket closed")
	err := Wrap(CodeDependency, cause, "stripe call failed")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	if got := err.Error(); got != fmt.Sprintf("%s: stripe call failed", CodeDependency) {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestAsUnwrapsThroughChains(t *testing.T) {
	inner := New(CodeStateConflict, "refund not allowed")
	wrapped := fmt.Errorf("handling request: %w", inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeStateConflict {
		t.Fatalf("unexpected code %s", typed.Code())
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeConflict, "version changed"))
	if !HasCode(err, CodeConflict) {
		t.Fatal("expected HasCode to match")
	}
	if HasCode(err, CodeValidation) {
		t.Fatal("unexpected code match")
	}
	if HasCode(nil, CodeConflict) {
		t.Fatal("nil error should not match")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(CodeValidation, "amount required").WithDetails(map[string]any{"field": "amount.gross"})
	details, ok := err.Details().(map[string]any)
	if !ok || details["field"] != "amount.gross" {
		t.Fatalf("unexpected details %v", err.Details())
	}
}
