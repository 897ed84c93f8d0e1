package repositories

import (
	"errors"
	"fmt"
)

// ErrNoEffect is returned when a write matched its target document but changed nothing.
var ErrNoEffect = errors.New("repositories: write matched but changed nothing")

// Error is a backend-neutral RepositoryError used by in-process stores.
type Error struct {
	Op          string
	Err         error
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.NotFound }

// IsConflict reports whether the error represents a uniqueness violation.
func (e *Error) IsConflict() bool { return e != nil && e.Conflict }

// IsUnavailable reports whether the error represents a transient outage.
func (e *Error) IsUnavailable() bool { return e != nil && e.Unavailable }

// NewNotFoundError builds a not-found repository error.
func NewNotFoundError(op string, subject string) *Error {
	return &Error{Op: op, Err: fmt.Errorf("%s not found", subject), NotFound: true}
}

// NewConflictError builds a conflict repository error.
func NewConflictError(op string, subject string) *Error {
	return &Error{Op: op, Err: fmt.Errorf("%s already exists", subject), Conflict: true}
}

// IsNotFound reports whether err is a RepositoryError describing a missing document.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError describing a conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

var _ RepositoryError = (*Error)(nil)
