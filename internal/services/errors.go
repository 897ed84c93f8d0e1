package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gemvault/api/internal/repositories"
)

// ErrorKind classifies service failures for transport mapping.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindUnauthorized ErrorKind = "unauthorized"
	KindPersistence  ErrorKind = "persistence"
)

// Error is the typed failure returned by every aggregate operation.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

var (
	// ErrValidation matches any validation failure via errors.Is.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrNotFound matches any not-found failure via errors.Is.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrConflict matches any uniqueness failure via errors.Is.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrUnauthorized matches credential failures via errors.Is.
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	// ErrPersistence matches any storage failure via errors.Is.
	ErrPersistence = &Error{Kind: KindPersistence}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches kind sentinels: errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Message == "" && t.Op == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return e == t
}

// HTTPStatus returns the status code hint for the error kind.
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func validationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func conflictError(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

func unauthorizedError(op, message string) *Error {
	return &Error{Kind: KindUnauthorized, Op: op, Message: message}
}

func persistenceError(op, message string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Message: message, Err: err}
}

// translateRepoError maps repository failures onto service kinds. Context errors pass through.
func translateRepoError(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, repositories.ErrNoEffect) {
		return persistenceError(op, fmt.Sprintf("failed to update %s", subject), err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return &Error{Kind: KindNotFound, Op: op, Message: subject + " not found", Err: err}
		case repoErr.IsConflict():
			return &Error{Kind: KindConflict, Op: op, Message: subject + " already exists", Err: err}
		}
	}
	return persistenceError(op, fmt.Sprintf("%s storage failure", subject), err)
}
