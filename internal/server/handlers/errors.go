package handlers

import (
	"net/http"

	"github.com/3leaps/s3handler/internal/server/middleware"
	"github.com/3leaps/s3handler/pkg/output"
)

// HTTPErrorResponder writes the reply for a failed request.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var httpErrorResponder HTTPErrorResponder = defaultErrorResponder

// SetHTTPErrorResponder replaces the error responder. nil restores the default.
func SetHTTPErrorResponder(fn HTTPErrorResponder) {
	if fn == nil {
		fn = defaultErrorResponder
	}
	httpErrorResponder = fn
}

// ResetHTTPErrorResponder restores the default error responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultErrorResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

func defaultErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	code := output.ErrorCode(err)
	middleware.WriteError(w, r, StatusForCode(code), code, err.Error(), nil)
}

// StatusForCode maps an error code onto an HTTP status.
func StatusForCode(code string) int {
	switch code {
	case output.ErrCodeNotFound:
		return http.StatusNotFound
	case output.ErrCodeAccessDenied:
		return http.StatusForbidden
	case output.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case output.ErrCodeThrottled:
		return http.StatusTooManyRequests
	case output.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case output.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
