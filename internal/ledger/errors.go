package ledger

import "errors"

// Ledger error kinds. Handlers translate these to HTTP status codes at the
// boundary; the ledger itself never maps transport concerns.
var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a missing user, binding or AuthMe account.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a state conflict such as a duplicate binding.
	ErrConflict = errors.New("conflict")
	// ErrExternalUnavailable indicates the AuthMe store or permissions
	// service could not be reached on a path that requires it.
	ErrExternalUnavailable = errors.New("external dependency unavailable")
)
