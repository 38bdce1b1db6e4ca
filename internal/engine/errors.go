package engine

import (
	"errors"

	"compliancekit/internal/domain"
	"compliancekit/internal/repo"
)

// Error taxonomy surfaced by every engine operation. Callers inspect errors with errors.As.
type (
	ValidationError  = domain.ValidationError
	AuthError        = domain.AuthError
	NotFoundError    = domain.NotFoundError
	PersistenceError = domain.PersistenceError
	UpstreamError    = domain.UpstreamError
)

// storeErr maps a store failure: a missing row becomes NotFoundError, anything else is wrapped as
// PersistenceError.
func storeErr(op, kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError{Kind: kind, ID: id}
	}
	return PersistenceError{Op: op, Err: err}
}
