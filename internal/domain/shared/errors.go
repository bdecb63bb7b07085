package shared

import (
	"errors"
	"fmt"
)

// Error kinds, checked with errors.Is. Every application-layer error wraps
// one of these so transports can map errors without knowing the operation.
var (
	// ErrNotFound marks a missing entity: no current season, unknown user.
	ErrNotFound = errors.New("entity not found")

	// ErrValidation marks rejected input, such as an unknown matchmaking
	// type.
	ErrValidation = errors.New("validation error")

	// ErrExternalService marks a backing store failure (rating store or
	// rankings cache).
	ErrExternalService = errors.New("external service error")
)

// DomainError carries an operation's context along with its error kind.
type DomainError struct {
	Domain  string // "ladder", "rankings", "query"
	Op      string // operation that failed, e.g. "GetCurrentLadder"
	Kind    error  // one of the kinds above, for errors.Is
	Message string
	Err     error // underlying cause, optional
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches against both the kind and the underlying cause, so callers
// can check either the category or a specific sentinel.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// WrapError attaches domain context to an existing error.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}
