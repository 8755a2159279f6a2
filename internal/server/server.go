// Package server serves the ecomap catalog over HTTP. It exposes ranked
// entity reads, user feedback, job control and realtime pipeline events
// over WebSocket and Server-Sent Events.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/ecomap"
	"github.com/agentstation/ecomap/internal/server/cache"
	"github.com/agentstation/ecomap/internal/server/events"
	"github.com/agentstation/ecomap/internal/server/sse"
	ws "github.com/agentstation/ecomap/internal/server/websocket"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/scheduler"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	client         ecomap.Client
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	config         Config
	http           *http.Server

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
}

// New creates a server over client and subscribes to its hooks.
func New(client ecomap.Client, cfg Config, logger *zerolog.Logger) (*Server, error) {
	if client == nil {
		return nil, errors.NewConfigError("server", "client is required", nil)
	}
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = defaults.AuthHeader
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		client:         client,
		cache:          cache.New(cfg.CacheTTL),
		broker:         events.NewBroker(logger),
		wsHub:          ws.NewHub(logger),
		sseBroadcaster: sse.NewBroadcaster(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.CORSOrigins),
		},
		logger: logger,
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	s.broker.Subscribe(s.wsHub)
	s.broker.Subscribe(s.sseBroadcaster)
	s.connectHooks()

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.setupRouter(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s, nil
}

// checkOrigin allows WebSocket upgrades from the CORS origins. Without CORS
// configured every origin is accepted.
func checkOrigin(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(origins) == 0 || origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// connectHooks publishes client events to the broker. Every entity change
// invalidates the response cache.
func (s *Server) connectHooks() {
	publish := func(t events.EventType, data any) {
		if s.ctx.Err() != nil {
			return
		}
		if t != events.RunFinished {
			s.cache.Invalidate()
		}
		s.broker.Publish(t, data)
	}

	s.client.OnEntityCreated(func(e entity.Entity) {
		publish(events.EntityCreated, e)
	})
	s.client.OnEntityUpdated(func(e entity.Entity) {
		publish(events.EntityUpdated, e)
	})
	s.client.OnEntityAbsorbed(func(absorbed, into string) {
		publish(events.EntityAbsorbed, map[string]string{"entity_id": absorbed, "merged_into": into})
	})
	s.client.OnTransition(func(ev entity.AuditEvent) {
		publish(events.EntityTransition, ev)
	})
	s.client.OnRunFinished(func(run scheduler.Run) {
		publish(events.RunFinished, run)
	})
}

// Start starts the broker and the realtime transports. It is idempotent.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		go s.broker.Run(s.ctx)
		go s.wsHub.Run(s.ctx)
		go s.sseBroadcaster.Run(s.ctx)
	})
}

// Handler returns the API handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve starts the background services and serves HTTP until Shutdown.
func (s *Server) Serve() error {
	s.Start()
	s.logger.Info().Str("addr", s.config.Addr).Str("prefix", s.config.PathPrefix).Msg("API server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown ends the realtime streams and stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}

// Broker returns the event broker.
func (s *Server) Broker() *events.Broker {
	return s.broker
}
