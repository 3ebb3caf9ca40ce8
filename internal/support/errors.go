package support

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain taxonomy. Transport maps these to protocol
// status codes; callers test with errors.Is.
var (
	// ErrDuplicateEmail is returned when creating a customer whose email is
	// already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrUnknownCustomer is returned when creating an incident whose
	// customer id does not resolve.
	ErrUnknownCustomer = errors.New("customer does not exist")

	// ErrNotFound is returned on reads and updates addressing an absent id.
	ErrNotFound = errors.New("not found")

	// ErrOrphanedIncident is returned when an incident's customer reference
	// is missing. It should not occur under the store invariants.
	ErrOrphanedIncident = errors.New("incident references a missing customer")
)

// ValidationError reports a malformed or missing required field. It is
// user-correctable and maps to a 400 at the transport boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
