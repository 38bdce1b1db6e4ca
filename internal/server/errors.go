package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	"compliancekit/internal/domain"
	"compliancekit/internal/engine"
	"compliancekit/internal/export"
)

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"invalid input: industry: required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the {"error":{code,message,details}} envelope every failure is rendered as.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusInternalServerError: "internal_error",
	http.StatusNotImplemented:      "not_implemented",
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = statusCodes[status]
	}
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

var installErrorModel = sync.OnceFunc(func() {
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return humaError(status, msg, errs)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return humaError(status, msg, errs)
	}
})

// humaError renders request decoding and schema failures. Schema failures become 400
// validation_failed with the same field list engine validation errors carry.
func humaError(status int, msg string, errs []error) huma.StatusError {
	if status != http.StatusUnprocessableEntity {
		return newAPIError(status, "", msg, nil)
	}
	fields := make([]domain.FieldError, 0, len(errs))
	for _, err := range errs {
		var detail *huma.ErrorDetail
		if errors.As(err, &detail) {
			fields = append(fields, domain.FieldError{Field: strings.TrimPrefix(detail.Location, "body."), Reason: detail.Message})
			continue
		}
		fields = append(fields, domain.FieldError{Reason: err.Error()})
	}
	return newAPIError(http.StatusBadRequest, "validation_failed", msg, map[string]any{"fields": fields})
}

// fail maps engine errors onto the HTTP error envelope.
func (h *handlers) fail(err error) huma.StatusError {
	var (
		verr engine.ValidationError
		aerr engine.AuthError
		nerr engine.NotFoundError
		uerr engine.UpstreamError
		perr engine.PersistenceError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr):
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"fields": verr.Fields})
	case errors.As(err, &aerr):
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	case errors.As(err, &nerr):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": nerr.Kind, "id": nerr.ID})
	case errors.Is(err, export.ErrArchiveDisabled):
		return newAPIError(http.StatusServiceUnavailable, "archive_disabled", err.Error(), nil)
	case errors.As(err, &uerr):
		h.log.Warn().Err(err).Str("source", uerr.Source).Msg("checklist source failed")
		return newAPIError(http.StatusBadGateway, "upstream_error", "checklist source failed", map[string]any{"source": uerr.Source})
	case errors.As(err, &perr):
		h.log.Error().Err(err).Str("op", perr.Op).Msg("store failure")
		return newAPIError(http.StatusInternalServerError, "persistence_error", "store failure", map[string]any{"op": perr.Op})
	default:
		h.log.Error().Err(err).Msg("unhandled error")
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
