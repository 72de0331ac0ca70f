package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "emicli/internal/errors"
)

func newTestValidation(t *testing.T) *ValidationMiddleware {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewValidationMiddleware(logger, apierrors.NewErrorHandler(logger, false))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestValidateRequestAllowsGet(t *testing.T) {
	m := newTestValidation(t)
	handler := m.ValidateRequest(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidateRequestRejectsInvalidJSON(t *testing.T) {
	m := newTestValidation(t)
	handler := m.ValidateRequest(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INVALID_JSON", body["error_code"])
}

func TestValidateRequestRestoresBody(t *testing.T) {
	m := newTestValidation(t)

	var got string
	handler := m.ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		got = string(b)
		w.WriteHeader(http.StatusOK)
	}))

	payload := `{"force":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, got)
}

func TestValidateRequestCapsBodySize(t *testing.T) {
	m := newTestValidation(t)
	m.maxBodySize = 16
	handler := m.ValidateRequest(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(strings.Repeat("x", 100)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", body["error_code"])
}

func TestContentTypeValidatorAllowsJSON(t *testing.T) {
	handler := ContentTypeValidator("application/json")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContentTypeValidatorAllowsEmptyBody(t *testing.T) {
	handler := ContentTypeValidator("application/json")(okHandler())

	// Plain refresh trigger sends no body and no content type
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContentTypeValidatorRejectsUnsupported(t *testing.T) {
	handler := ContentTypeValidator("application/json")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader("force=true"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", body["error_code"])
}

func TestContentTypeValidatorRequiresHeaderWithBody(t *testing.T) {
	handler := ContentTypeValidator("application/json")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "MISSING_CONTENT_TYPE", body["error_code"])
}
