package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/config"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInitAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coyoacan.yaml")

	// 1. init writes the defaults
	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	// 2. A second init refuses to overwrite
	_, err = execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// 3. check accepts the written file
	out, err = execute(t, "config", "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
}

func TestConfigCheckRejects(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("source:\n  kind: postgres\n"), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid file", []string{"config", "check", "--config", bad}, "Kind"},
		{"invalid flag override", []string{"config", "check", "--log-level", "loud"}, "Level"},
		{"missing file", []string{"config", "check", "--config", bad + ".missing"}, "read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigInitNeedsPath(t *testing.T) {
	_, err := execute(t, "config", "init")
	assert.Error(t, err)
}

func TestNewEchoMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	cfg := config.Default().Server
	cfg.AllowOrigins = []string{"https://tablero.example"}
	cfg.RateLimit = 1

	e := newEcho(cfg, logger)
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// 1. Request id, CORS and request log on a normal request
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "https://tablero.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	id := rec.Header().Get(echo.HeaderXRequestID)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "request id %q", id)
	assert.Equal(t, "https://tablero.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlExposeHeaders), "X-Total-Count")
	assert.Contains(t, logs.String(), "status=200")
	assert.Contains(t, logs.String(), "request_id="+id)

	// 2. The limiter allows one request per second per client
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestNewEchoRecoversPanics(t *testing.T) {
	var logs bytes.Buffer
	cfg := config.Default().Server
	cfg.RateLimit = 0

	e := newEcho(cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	e.GET("/panic", func(c echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(logs.String(), "level=ERROR"), logs.String())
}
