package firestore

import (
	"context"
	"errors"

	"github.com/gemvault/api/internal/repositories"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// WrapError classifies Firestore failures as repository errors. Context cancellations and
// errors that already carry a classification are passed through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var classified repositories.RepositoryError
	if errors.As(err, &classified) {
		return err
	}

	wrapped := &repositories.Error{Op: op, Err: err}
	switch code {
	case codes.NotFound:
		wrapped.NotFound = true
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		wrapped.Conflict = true
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		wrapped.Unavailable = true
	}
	return wrapped
}
