package apperrors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(http.StatusBadRequest, StatusCode(NewValidationError("bad %s", "input")))
	assert.Equal(http.StatusNotFound, StatusCode(NewNotFoundError("task")))
	assert.Equal(http.StatusForbidden, StatusCode(NewForbiddenError("nope")))
	assert.Equal(http.StatusUnauthorized, StatusCode(NewUnauthorizedError("who")))
	assert.Equal(http.StatusBadGateway, StatusCode(NewUpstreamError("github", errors.New("boom"))))
	assert.Equal(http.StatusInternalServerError, StatusCode(errors.New("boom")))

	// Wrapping keeps the classification.
	wrapped := errors.Wrap(NewNotFoundError("meeting"), "unable to load meeting")
	assert.Equal(http.StatusNotFound, StatusCode(wrapped))
	assert.True(IsNotFound(wrapped))
}

func TestWriteErrorValidationFields(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NewValidationError("invalid notification").WithField("title", "is required"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid notification", body["error"])
	assert.Equal(t, map[string]interface{}{"title": "is required"}, body["fields"])
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("connection string leaked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "leaked")
}
