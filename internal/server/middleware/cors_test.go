package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Contains(t, cfg.AllowedHeaders, "X-Demo-Secret")
	assert.Contains(t, cfg.AllowedHeaders, "X-Admin-Key")
	assert.Contains(t, cfg.AllowedMethods, http.MethodDelete)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		wantAllowed string
	}{
		{"allowed origin echoed", []string{"http://localhost:5173"}, "http://localhost:5173", "http://localhost:5173"},
		{"trailing slash in config", []string{"http://localhost:5173/"}, "http://localhost:5173", "http://localhost:5173"},
		{"unknown origin", []string{"http://localhost:5173"}, "http://evil.example", ""},
		{"no origin", []string{"http://localhost:5173"}, "", ""},
		{"wildcard", []string{"*"}, "http://anything.example", "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.origins

			req := httptest.NewRequest(http.MethodGet, "/api/events/history", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			CORS(cfg)(okHandler()).ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantAllowed, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantAllowed != "" {
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Demo-Secret")
			}
		})
	}
}

func TestCORS_PreflightShortCircuit(t *testing.T) {
	called := false
	h := CORS(DefaultCORSConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/events/capture", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORS_PlainOptionsPassesThrough(t *testing.T) {
	called := false
	h := CORS(DefaultCORSConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.True(t, called)
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:5173", "https://demo.example.com"}
	assert.True(t, IsOriginAllowed("http://localhost:5173", allowed))
	assert.True(t, IsOriginAllowed("https://DEMO.example.com", allowed))
	assert.False(t, IsOriginAllowed("http://localhost:3000", allowed))
	assert.False(t, IsOriginAllowed("http://localhost:5173", nil))
	assert.True(t, IsOriginAllowed("http://x", []string{"*"}))
}
