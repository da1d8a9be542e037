package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/service"
	"github.com/perimetra/projects-service/internal/storage"
)

func writeError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()

	writer := NewErrorWriter(zap.NewNop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/tenants/t1/projects", nil)
	req.Header.Set("X-Request-ID", "req-123")

	writer.WriteError(rec, req, err)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteError_NoChanges(t *testing.T) {
	rec := writeError(t, storage.ErrNoChanges)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestWriteError_VersionConflict(t *testing.T) {
	rec := writeError(t, &storage.ConcurrencyError{Attempted: 3, Current: 4})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, ErrorCodeVersionConflict, body.ErrorCode)
	assert.Equal(t, "req-123", body.RequestID)
}

func TestWriteError_ConstraintViolation(t *testing.T) {
	rec := writeError(t, &storage.ConstraintError{Field: storage.FieldName})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, ErrorCodeConstraintViolation, body.ErrorCode)
}

func TestWriteError_NotFound(t *testing.T) {
	rec := writeError(t, storage.ErrNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, ErrorCodeNotFound, body.ErrorCode)
}

func TestWriteError_SubscriptionGates(t *testing.T) {
	for _, err := range []error{service.ErrSubscriptionInactive, service.ErrProjectLimitReached} {
		rec := writeError(t, err)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, ErrorCodeSubscriptionLimit, decodeError(t, rec).ErrorCode)
	}
}

func TestWriteError_InvalidKeyPrefix(t *testing.T) {
	rec := writeError(t, service.ErrInvalidKeyPrefix)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorCodeInvalidKeyPrefix, decodeError(t, rec).ErrorCode)
}

func TestWriteError_Unclassified(t *testing.T) {
	rec := writeError(t, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, ErrorCodeInternalError, body.ErrorCode)
	// Internal details never leak to the caller.
	assert.NotContains(t, body.Message, "boom")
}

func TestWriteError_WrappedErrorsClassify(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), storage.ErrNotFound)
	rec := writeError(t, wrapped)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
