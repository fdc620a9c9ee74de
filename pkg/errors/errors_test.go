package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewExternalError("identity provider unavailable", cause)

	assert.Equal(t, "external: identity provider unavailable (connection refused)", err.Error())
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, http.StatusBadGateway, err.StatusCode)

	plain := NewAuthenticationError("Invalid login credentials")
	assert.Equal(t, "authentication: Invalid login credentials", plain.Error())
}

func TestNewProviderError(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorType
	}{
		{status: http.StatusBadRequest, expected: ErrorTypeValidation},
		{status: http.StatusUnprocessableEntity, expected: ErrorTypeValidation},
		{status: http.StatusUnauthorized, expected: ErrorTypeAuthentication},
		{status: http.StatusForbidden, expected: ErrorTypeAuthorization},
		{status: http.StatusTooManyRequests, expected: ErrorTypeRateLimit},
		{status: http.StatusInternalServerError, expected: ErrorTypeExternal},
	}

	for _, tt := range tests {
		err := NewProviderError(tt.status, "Email rate limit exceeded")
		assert.Equal(t, tt.expected, err.Type, "status %d", tt.status)
		assert.Equal(t, "Email rate limit exceeded", err.Message)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, NewAuthenticationError("Not signed in"), "req-1"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrorTypeAuthentication, body.Error.Type)
	assert.Equal(t, "Not signed in", body.Error.Message)
	assert.Equal(t, "req-1", body.Error.RequestID)
	assert.NotEmpty(t, body.Error.Timestamp)
}
