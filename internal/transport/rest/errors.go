package rest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/heartmarshall/curation-backend/internal/domain"
	"github.com/heartmarshall/curation-backend/internal/transport/middleware"
)

// respondError maps typed domain errors to HTTP statuses and stable codes.
func respondError(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classifyError(err)

	switch status {
	case http.StatusServiceUnavailable:
		log.WarnContext(r.Context(), "store unavailable", slog.String("error", err.Error()))
		w.Header().Set("Retry-After", "1")
	case http.StatusInternalServerError:
		log.ErrorContext(r.Context(), "internal error", slog.String("error", err.Error()))
	}

	writeProblem(w, r, status, resp)
}

// writeProblem writes an error body and records its code on the request log.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, resp errorResponse) {
	middleware.NoteErrorCode(r.Context(), resp.Code)
	writeJSON(w, status, resp)
}

func classifyError(err error) (int, errorResponse) {
	var (
		conflict     *domain.ConflictError
		precondition *domain.PreconditionError
		validation   *domain.ValidationError
	)

	switch {
	case errors.As(err, &conflict):
		if conflict.Holder == "" {
			return http.StatusConflict, errorResponse{Code: "CONFLICT", Message: "item already exists"}
		}
		return http.StatusConflict, errorResponse{
			Code:    "CONFLICT",
			Message: "item is held by another user",
			Details: map[string]any{"holder": conflict.Holder},
		}
	case errors.As(err, &precondition):
		status, msg := http.StatusPreconditionFailed, "item version does not match"
		if precondition.Expected.IsZero() {
			status, msg = http.StatusPreconditionRequired, "expected version is required"
		}
		return status, errorResponse{
			Code:    "PRECONDITION_FAILED",
			Message: msg,
			Details: map[string]any{"current_version": precondition.Current.String()},
		}
	case errors.As(err, &validation):
		fields := make([]fieldErrorResponse, len(validation.Errors))
		for i, fe := range validation.Errors {
			fields[i] = fieldErrorResponse{Field: fe.Field, Message: fe.Message}
		}
		return http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION",
			Message: validation.Error(),
			Details: map[string]any{"fields": fields},
		}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, errorResponse{Code: "VALIDATION", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorResponse{Code: "CONFLICT", Message: "conflict"}
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, errorResponse{Code: "PRECONDITION_FAILED", Message: "item version does not match"}
	case errors.Is(err, domain.ErrOwnershipViolation):
		return http.StatusForbidden, errorResponse{Code: "OWNERSHIP_VIOLATION", Message: "item is not assigned to the caller"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "item not found"}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "operation not permitted"}
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Code: "STORE_UNAVAILABLE", Message: "store temporarily unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal server error"}
	}
}
