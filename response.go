package gabriel

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const (
	TextCodeInternal = "INTERNAL_ERROR"
	TextCodeUpstream = "UPSTREAM_ERROR"

	genericServerError = "An unexpected server error occurred"
)

// ErrorResponse is the body of every error the API returns
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// NewUpstreamError is returned when a hosted dependency fails, the
// upstream message is kept
func NewUpstreamError(service, message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeUpstream).
		WithMetadata(map[string]any{"service": service})
}

// NewValidationError turns ozzo validation errors into a 400 carrying the
// field map
func NewValidationError(err error) *goerrors.Error {
	fields := FieldErrors(err)
	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		meta[k] = v
	}
	return goerrors.New("Validation failed", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation).
		WithMetadata(map[string]any{"fields": meta})
}

// FieldErrors flattens ozzo validation errors into field -> message
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if goerrors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["_"] = err.Error()
	return out
}

// StatusFromError prefers the explicit code and falls back to the category
func StatusFromError(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code > 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody builds the response payload. Internal errors never expose their
// message.
func ErrorBody(err error) (int, ErrorResponse) {
	status := StatusFromError(err)

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category == goerrors.CategoryInternal {
		return status, ErrorResponse{
			Error: genericServerError,
			Code:  TextCodeInternal,
		}
	}

	body := ErrorResponse{
		Error: richErr.Message,
		Code:  richErr.TextCode,
	}

	if raw, ok := richErr.Metadata["fields"].(map[string]any); ok && len(raw) > 0 {
		body.Fields = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				body.Fields[k] = s
			}
		}
	}

	return status, body
}

// RenderError logs and writes the JSON error response
func RenderError(ctx router.Context, logger Logger, err error) error {
	status, body := ErrorBody(err)
	logger = ensureLogger(logger)

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"path", ctx.Path(),
			"status", status,
			"error", err,
		)
	} else {
		logger.Debug("request rejected",
			"path", ctx.Path(),
			"status", status,
			"code", body.Code,
		)
	}

	return ctx.JSON(status, body)
}
