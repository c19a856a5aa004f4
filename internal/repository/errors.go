package repository

import (
	"fmt"
	"strings"

	apperrors "studyplan/backend/internal/errors"
)

var ErrNotFound = apperrors.ErrNotFound

type scanner interface {
	Scan(dest ...interface{}) error
}

// storeErr marks a driver failure as a retryable store outage.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
