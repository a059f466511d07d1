package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yn-academia/mcp-proxy/internal/registry"
	"github.com/yn-academia/mcp-proxy/internal/router"
)

func TestStatusEndpoint(t *testing.T) {
	reg := registry.New(nil, zerolog.Nop())
	rt := router.New(reg, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestUnknownNamedServerReturns404(t *testing.T) {
	descriptors, err := registry.LoadFromCLI([][2]string{{"a", "cat"}}, nil)
	require.NoError(t, err)
	reg := registry.New(descriptors, zerolog.Nop())
	rt := router.New(reg, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/servers/b/sse", nil)
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflightAllowedOrigin(t *testing.T) {
	reg := registry.New(nil, zerolog.Nop())
	rt := router.New(reg, zerolog.Nop(), router.WithAllowOrigins([]string{"https://ex.com"}))

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "https://ex.com")
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ex.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightDisallowedOriginOmitsHeader(t *testing.T) {
	reg := registry.New(nil, zerolog.Nop())
	rt := router.New(reg, zerolog.Nop(), router.WithAllowOrigins([]string{"https://ex.com"}))

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "https://other.com")
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteReturns404(t *testing.T) {
	reg := registry.New(nil, zerolog.Nop())
	rt := router.New(reg, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/nonsense", nil)
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
