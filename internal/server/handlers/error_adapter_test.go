package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/s3handler/internal/server/middleware"
	"github.com/3leaps/s3handler/pkg/provider"
)

func TestSetHTTPErrorResponder(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	t.Run("sets custom responder", func(t *testing.T) {
		called := false
		SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		})

		rec := httptest.NewRecorder()
		respondWithError(rec, httptest.NewRequest("GET", "/test", nil), assert.AnError)

		assert.True(t, called)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("nil resets to default", func(t *testing.T) {
		SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
			w.WriteHeader(http.StatusTeapot)
		})
		SetHTTPErrorResponder(nil)

		rec := httptest.NewRecorder()
		respondWithError(rec, httptest.NewRequest("GET", "/test", nil), assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestResetHTTPErrorResponder(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	customCalled := false
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		customCalled = true
	})
	ResetHTTPErrorResponder()

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest("GET", "/test", nil), assert.AnError)
	assert.False(t, customCalled)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDefaultErrorResponder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		status   int
	}{
		{"not found", &provider.ProviderError{Op: "HeadObject", Bucket: "b", Key: "k", Err: provider.ErrNotFound}, "NOT_FOUND", http.StatusNotFound},
		{"bucket not found", provider.ErrBucketNotFound, "NOT_FOUND", http.StatusNotFound},
		{"access denied", provider.ErrAccessDenied, "ACCESS_DENIED", http.StatusForbidden},
		{"invalid argument", fmt.Errorf("%w: bad", provider.ErrInvalidArgument), "INVALID_ARGUMENT", http.StatusBadRequest},
		{"throttled", provider.ErrThrottled, "THROTTLED", http.StatusTooManyRequests},
		{"unavailable", provider.ErrProviderUnavailable, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
		{"other", assert.AnError, "INTERNAL", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			defaultErrorResponder(rec, httptest.NewRequest("GET", "/x", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body middleware.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestStatusForCode_Timeout(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, StatusForCode("TIMEOUT"))
	assert.Equal(t, http.StatusInternalServerError, StatusForCode("SOMETHING_ELSE"))
}
