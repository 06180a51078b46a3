package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusConflict, ErrorResponse("Hold rejected", "hold limit exceeded")))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Hold rejected", body.Message)
	assert.Equal(t, "hold limit exceeded", body.Error)
	assert.False(t, body.Timestamp.IsZero())
}

func TestSuccessResponse(t *testing.T) {
	resp := SuccessResponse("ok", map[string]int{"held": 2})
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.Equal(t, map[string]int{"held": 2}, resp.Data)
}
