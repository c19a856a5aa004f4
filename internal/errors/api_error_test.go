package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("start: %w", ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{ErrNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("pause: %w", ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{ErrOperationInFlight, http.StatusConflict, "operation_in_flight"},
		{ErrConflict, http.StatusConflict, "session_conflict"},
		{fmt.Errorf("update session: %w: %w", ErrStoreUnavailable, errors.New("disk I/O error")), http.StatusServiceUnavailable, "store_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		apiErr := FromError(tt.err, "failed")
		if apiErr.Status != tt.status || apiErr.Code != tt.code {
			t.Errorf("FromError(%v) = %d %s, want %d %s", tt.err, apiErr.Status, apiErr.Code, tt.status, tt.code)
		}
	}

	if FromError(nil, "") != nil {
		t.Error("expected nil for nil error")
	}
}
