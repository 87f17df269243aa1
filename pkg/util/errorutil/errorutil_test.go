package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"domain error passes through", NewForbidden("nope"), CodeForbidden, http.StatusForbidden},
		{"wrapped domain error", fmt.Errorf("ctx: %w", NewMissingEvidence("i1")), CodeMissingEvidence, http.StatusUnprocessableEntity},
		{"no rows is not found", pgx.ErrNoRows, CodeNotFound, http.StatusNotFound},
		{"unknown is internal", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ToDomainError(tc.err)
			if got.Code != tc.wantCode || got.HTTPStatus != tc.wantStatus {
				t.Fatalf("got %s/%d, want %s/%d", got.Code, got.HTTPStatus, tc.wantCode, tc.wantStatus)
			}
		})
	}
}

func TestMapErrorNil(t *testing.T) {
	if err := MapError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if ToDomainError(nil) != nil {
		t.Fatal("expected nil domain error")
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("assign: %w", NewIneligibleAssignee("ward mismatch", nil))
	if !errors.Is(err, ErrIneligibleAssignee) {
		t.Fatal("expected ineligible assignee match")
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("unexpected forbidden match")
	}
}

func TestConflictIsRetryable(t *testing.T) {
	if !IsRetryable(NewConflict("stale", nil)) {
		t.Fatal("conflict should be retryable")
	}
	if IsRetryable(NewInvalidTransition("OPEN", "verify")) {
		t.Fatal("invalid transition should not be retryable")
	}
}

func TestInvalidRoleBindingCarriesAllViolations(t *testing.T) {
	err := ToDomainError(NewInvalidRoleBinding([]string{"a", "b"}))
	violations, ok := err.Details["violations"].([]string)
	if !ok || len(violations) != 2 {
		t.Fatalf("expected two violations, got %#v", err.Details)
	}
}
