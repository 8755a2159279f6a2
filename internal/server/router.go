package server

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentstation/ecomap/internal/server/handlers"
	"github.com/agentstation/ecomap/internal/server/middleware"
	"github.com/agentstation/ecomap/internal/server/response"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()
	h := handlers.New(
		s.client,
		s.cache,
		s.broker,
		s.wsHub,
		s.sseBroadcaster,
		s.upgrader,
		s.logger,
	)
	s.registerRoutes(mux, h)
	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	p := s.config.PathPrefix

	mux.HandleFunc("GET /health", h.HandleHealth)
	if p != "" {
		mux.HandleFunc("GET "+p+"/health", h.HandleHealth)
	}
	mux.HandleFunc("GET "+p+"/ready", h.HandleReady)
	mux.HandleFunc("GET "+p+"/stats", h.HandleStats)

	// catalog
	mux.HandleFunc("GET "+p+"/entities", h.HandleListEntities)
	mux.HandleFunc("GET "+p+"/entities/{id}", h.HandleGetEntity)
	mux.HandleFunc("GET "+p+"/entities/{id}/members", h.HandleGetMembers)
	mux.HandleFunc("POST "+p+"/entities/{id}/score", h.HandleScoreEntity)
	mux.HandleFunc("POST "+p+"/records", h.HandleSubmitRecords)

	// feedback
	mux.HandleFunc("POST "+p+"/entities/{id}/corrections", h.HandleCorrect)
	mux.HandleFunc("POST "+p+"/entities/{id}/reports", h.HandleReport)
	mux.HandleFunc("POST "+p+"/entities/{id}/review", h.HandleReview)

	// jobs
	mux.HandleFunc("GET "+p+"/jobs", h.HandleListJobs)
	mux.HandleFunc("POST "+p+"/jobs/{class}/trigger", h.HandleTriggerJob)
	mux.HandleFunc("POST "+p+"/jobs/{class}/cancel", h.HandleCancelJob)
	mux.HandleFunc("GET "+p+"/runs", h.HandleListRuns)
	mux.HandleFunc("GET "+p+"/runs/{id}", h.HandleGetRun)

	// realtime
	mux.HandleFunc("GET "+p+"/updates/ws", h.HandleWebSocket)
	mux.HandleFunc("GET "+p+"/updates/stream", h.HandleSSE)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "no route for "+r.Method+" "+r.URL.Path, "")
	})
}

// applyMiddleware wraps handler with the middleware chain. Recovery runs
// first so it also covers the other middleware.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config
	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.Logger(s.logger),
	}
	if len(cfg.CORSOrigins) > 0 {
		corsConfig := middleware.DefaultCORSConfig()
		corsConfig.AllowedOrigins = cfg.CORSOrigins
		corsConfig.AllowedHeaders = append(corsConfig.AllowedHeaders, cfg.AuthHeader)
		chain = append(chain, middleware.CORS(corsConfig))
	}
	if cfg.RateLimit > 0 {
		chain = append(chain, middleware.RateLimit(middleware.NewRateLimiter(s.ctx, cfg.RateLimit, s.logger)))
	}
	if cfg.APIKey != "" {
		chain = append(chain, middleware.Auth(middleware.AuthConfig{
			APIKey:       cfg.APIKey,
			HeaderName:   cfg.AuthHeader,
			PublicPaths:  []string{"/health", cfg.PathPrefix + "/health", cfg.PathPrefix + "/ready"},
			ProtectReads: cfg.ProtectReads,
		}, s.logger))
	}

	handler = middleware.Chain(chain...)(handler)
	if cfg.Tracing {
		handler = otelhttp.NewHandler(handler, "ecomap.api")
	}
	return handler
}
