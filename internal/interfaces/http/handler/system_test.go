package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edubill/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func() error

func (f pingerFunc) PingContext(context.Context) error { return f() }

func serveSystem(t *testing.T, h *SystemHandler, path string, fn gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	router := gin.New()
	router.GET(path, fn)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]any)
	return w, data
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("edubill", "1.2.0", nil)
	w, data := serveSystem(t, h, "/system/info", h.GetSystemInfo)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "edubill", data["name"])
	assert.Equal(t, "1.2.0", data["version"])
	assert.NotEmpty(t, data["go_version"])
}

func TestSystemHandler_Ping(t *testing.T) {
	h := NewSystemHandler("edubill", "dev", nil)
	w, data := serveSystem(t, h, "/system/ping", h.Ping)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", data["message"])
}

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name     string
		db       Pinger
		status   int
		database string
	}{
		{"no database", nil, http.StatusOK, "unconfigured"},
		{"database up", pingerFunc(func() error { return nil }), http.StatusOK, "ok"},
		{"database down", pingerFunc(func() error { return errors.New("connection refused") }), http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("edubill", "dev", tt.db)
			w, data := serveSystem(t, h, "/health", h.Health)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.database, data["database"])
		})
	}
}
