package mongodb

import (
	"context"
	"errors"

	"github.com/gemvault/api/internal/repositories"
	"go.mongodb.org/mongo-driver/mongo"
)

// WrapError classifies driver failures as repository errors. Context cancellations and
// errors that already carry a classification are passed through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified repositories.RepositoryError
	if errors.As(err, &classified) {
		return err
	}

	wrapped := &repositories.Error{Op: op, Err: err}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		wrapped.NotFound = true
	case mongo.IsDuplicateKeyError(err):
		wrapped.Conflict = true
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		wrapped.Unavailable = true
	}
	return wrapped
}
