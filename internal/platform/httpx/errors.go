// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-finance/internal/allocation"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
)

// coded is implemented by business rule rejections that carry a stable code.
type coded interface {
	Code() string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		verr     *shared.ValidationError
		rounding *allocation.RoundingInvariantViolation
		rule     coded
	)
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Type:   "validation",
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: err.Error(),
			Errors: verr.Messages,
		})
	case errors.As(err, &rule):
		JSON(w, http.StatusConflict, ProblemDetail{
			Type:   rule.Code(),
			Title:  "Conflict",
			Status: http.StatusConflict,
			Detail: err.Error(),
		})
	case errors.Is(err, shared.ErrIdempotencyConflict):
		JSON(w, http.StatusConflict, ProblemDetail{
			Type:   "duplicate_request",
			Title:  "Duplicate",
			Status: http.StatusConflict,
			Detail: err.Error(),
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrOwnerMissing), errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.As(err, &rounding):
		logError(logger, "allocation rounding invariant violated", err)
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	default:
		logError(logger, "request failed", err)
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func logError(logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(msg, slog.Any("error", err))
}
