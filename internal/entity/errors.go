package entity

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity does not exist, or when a lifecycle
// transition does not apply to the entity's current state.
var ErrNotFound = errors.New("not found")

// ValidationError reports a rejected rule or config field. Validation failures
// are surfaced synchronously and are never partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError for a field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DispatchError reports a failed delivery to one notification channel.
// Deliveries are best-effort; a DispatchError never rolls back the alert that
// triggered it.
type DispatchError struct {
	Channel string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s: %v", e.Channel, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
