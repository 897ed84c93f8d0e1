package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/httpx"
	"github.com/gemvault/api/internal/platform/requestctx"
	"github.com/gemvault/api/internal/services"
	"go.uber.org/zap"
)

const maxJSONBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSONResponse(w, status, map[string]string{"message": message})
}

// decodeJSONBody reads a bounded JSON body into dst and runs its validate tags.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodySize+1))
	switch {
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		return false
	case int64(len(data)) > maxJSONBodySize:
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", errBodyTooLarge.Error(), http.StatusRequestEntityTooLarge))
		return false
	case len(strings.TrimSpace(string(data))) == 0:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errEmptyBody.Error(), http.StatusBadRequest))
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeValidationError(ctx, w, err)
		return false
	}
	return true
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, err error) {
	apiErr := httpx.NewError("validation_failed", "request validation failed", http.StatusBadRequest)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		httpx.WriteError(ctx, w, apiErr)
		return
	}
	for _, fe := range fieldErrs {
		apiErr = apiErr.WithField(fe.Field(), fieldMessage(fe))
	}
	httpx.WriteError(ctx, w, apiErr)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "eqfield":
		return fmt.Sprintf("must match %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	default:
		return "is invalid"
	}
}

// writeServiceError maps service failures onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}

	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		requestctx.Logger(ctx).Error("unclassified service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
		return
	}

	status := svcErr.HTTPStatus()
	message := svcErr.Message
	if svcErr.Kind == services.KindPersistence {
		requestctx.Logger(ctx).Error("persistence failure", zap.String("op", svcErr.Op), zap.Error(err))
		if message == "" {
			message = "internal server error"
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}
	httpx.WriteError(ctx, w, httpx.NewError(string(svcErr.Kind), message, status))
}

func optionalString(value *string) domain.Optional[string] {
	if value == nil {
		return domain.None[string]()
	}
	return domain.Some(*value)
}
