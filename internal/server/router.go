package server

import (
	"net/http"
	"slices"
	"sort"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentstation/authrelay/internal/server/handlers"
	"github.com/agentstation/authrelay/internal/server/middleware"
	"github.com/agentstation/authrelay/internal/server/response"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(
		s.ingress,
		s.broker,
		s.cache,
		s.upgrader,
		handlers.Info{
			Environment: s.config.Environment,
			Version:     s.app.Version(),
			StartedAt:   s.startTime,
		},
		s.logger,
		handlers.WithSecretHeader(s.config.SecretHeader),
		handlers.WithMaxBodyBytes(s.config.MaxBodyBytes),
	)

	s.registerRoutes(mux, h)
	return s.applyMiddleware(mux)
}

// methods dispatches by HTTP method and answers anything else with 405.
func methods(routes map[string]http.HandlerFunc) http.HandlerFunc {
	allowed := make([]string, 0, len(routes))
	for m := range routes {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	return func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := routes[r.Method]; ok {
			handler(w, r)
			return
		}
		response.MethodNotAllowed(w, allowed...)
	}
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	// Favicon handler (return 204 No Content to avoid 404 logs)
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Liveness and readiness
	mux.HandleFunc("/health", methods(map[string]http.HandlerFunc{http.MethodGet: h.HandleHealth}))
	mux.HandleFunc("/ready", methods(map[string]http.HandlerFunc{http.MethodGet: h.HandleReady}))

	// Ingress
	mux.HandleFunc(prefix+"/capture", methods(map[string]http.HandlerFunc{
		http.MethodPost: h.HandleCapture,
	}))

	adminAuth := middleware.DefaultAuthConfig()
	adminAuth.Key = s.config.AdminKey
	clearHistory := middleware.Auth(adminAuth, s.logger)(http.HandlerFunc(h.HandleClearHistory))

	mux.HandleFunc(prefix+"/history", methods(map[string]http.HandlerFunc{
		http.MethodGet:    h.HandleHistory,
		http.MethodDelete: clearHistory.ServeHTTP,
	}))

	// Push channels
	mux.HandleFunc(prefix+"/ws", methods(map[string]http.HandlerFunc{http.MethodGet: h.HandleWebSocket}))
	mux.HandleFunc(prefix+"/stream", methods(map[string]http.HandlerFunc{http.MethodGet: h.HandleSSE}))

	// Everything else
	mux.HandleFunc("/", h.HandleNotFound)
}

// applyMiddleware wraps handler with the middleware chain. The first entry
// is outermost.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	// Validate already accepted the proxy list.
	proxies, _ := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	chain := append(middleware.Base(s.logger), middleware.RealIP(proxies), middleware.CORS(s.corsConfig()))
	if cfg.RateLimit > 0 {
		chain = append(chain, middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit, s.logger)))
	}
	handler = middleware.Chain(chain...)(handler)

	if cfg.Trace {
		handler = otelhttp.NewHandler(handler, "authrelay",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return handler
}

func (s *Server) corsConfig() middleware.CORSConfig {
	cfg := middleware.DefaultCORSConfig()
	cfg.AllowedOrigins = s.config.AllowedOrigins
	if s.config.SecretHeader != "" && !slices.Contains(cfg.AllowedHeaders, s.config.SecretHeader) {
		cfg.AllowedHeaders = append(cfg.AllowedHeaders, s.config.SecretHeader)
	}
	return cfg
}
