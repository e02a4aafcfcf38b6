package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/manimate/internal/config"
	"github.com/xiaot623/manimate/internal/hub"
	"github.com/xiaot623/manimate/internal/service"
	"github.com/xiaot623/manimate/internal/transport/ws"
)

func newTestServer(t *testing.T) (http.Handler, string) {
	t.Helper()
	out := t.TempDir()
	cfg := &config.Config{OutputDir: out, MaxRenderAttempts: 1}
	h := hub.NewHub(nil)
	go h.Run()
	svc := service.New(cfg, service.NewSessionRegistry(), nil, nil, nil, nil, h, nil)
	return NewServer(cfg, svc, h, ws.NewServer(cfg, h, svc)), out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["connections"])
}

func TestOutputIsServed(t *testing.T) {
	srv, out := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(out, "Demo_1234.mp4"), []byte("video"), 0o644))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/output/Demo_1234.mp4", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/output/missing.mp4", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutesAreMounted(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run_x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "run not found")
}
