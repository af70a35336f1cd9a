package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// mapError turns an SDK failure into a domain error. Square error codes take
// precedence over the HTTP status.
func mapError(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op+" failed")
	}
	code := statusCode(apiErr.StatusCode)
	for _, detail := range apiErrors(apiErr) {
		if c, ok := errorCode(detail); ok {
			code = c
			break
		}
	}
	return pkgerrors.Wrap(code, err, "square "+op+" failed").
		WithDetails(map[string]any{"status": apiErr.StatusCode})
}

func errorCode(detail *sq.Error) (pkgerrors.Code, bool) {
	switch {
	case detail == nil:
		return "", false
	case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
		return pkgerrors.CodeIdempotency, true
	case detail.Category == sq.ErrorCategoryAuthenticationError:
		return pkgerrors.CodeUnauthorized, true
	case detail.Category == sq.ErrorCategoryRateLimitError:
		return pkgerrors.CodeRateLimit, true
	}
	return "", false
}

// apiErrors decodes the {"errors": [...]} body the SDK keeps as the wrapped error.
func apiErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	return body.Errors
}

func statusCode(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case status >= 400 && status < 500:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}
