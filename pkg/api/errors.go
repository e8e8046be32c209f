package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/aboerstra/fraud-adjudicator/pkg/errs"
	"github.com/aboerstra/fraud-adjudicator/pkg/ingress"
)

// mapServiceError maps an ingress.Service error to an HTTP response,
// mirroring the classification table in spec §7: auth/replay/payload
// failures are 400, an unknown job is 404, transient/breaker/timeout
// failures are 503, and anything unclassified is a 500 without leaking
// internals.
func mapServiceError(err error) error {
	var payloadErr *ingress.PayloadError
	if errors.As(err, &payloadErr) {
		fieldErrors := make(map[string]string, len(payloadErr.FieldErrors))
		for _, fe := range payloadErr.FieldErrors {
			fieldErrors[fe.Field] = fe.Message
		}
		return echo.NewHTTPError(http.StatusBadRequest, &FieldErrorResponse{
			Error:       string(errs.KindInvalidPayload),
			Message:     err.Error(),
			FieldErrors: fieldErrors,
		})
	}

	var classified *errs.Error
	if errors.As(err, &classified) {
		switch classified.Kind {
		case errs.KindAuthMissing, errs.KindStale, errs.KindReplay, errs.KindBadSignature, errs.KindInvalidPayload:
			return echo.NewHTTPError(http.StatusBadRequest, &ErrorResponse{
				Error:   string(classified.Kind),
				Message: classified.Message,
			})
		case errs.KindTransient, errs.KindTimeout, errs.KindBreakerOpen:
			return echo.NewHTTPError(http.StatusServiceUnavailable, &ErrorResponse{
				Error:   string(classified.Kind),
				Message: "temporarily unavailable, retry later",
			})
		case errs.KindNotFound:
			return echo.NewHTTPError(http.StatusNotFound, &ErrorResponse{
				Error:   string(classified.Kind),
				Message: classified.Message,
			})
		default:
			slog.Error("api: unclassified service error", "kind", classified.Kind, "error", classified.Error())
			return echo.NewHTTPError(http.StatusInternalServerError, &ErrorResponse{
				Error:   "internal",
				Message: "internal server error",
			})
		}
	}

	slog.Error("api: unexpected error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, &ErrorResponse{
		Error:   "internal",
		Message: "internal server error",
	})
}
