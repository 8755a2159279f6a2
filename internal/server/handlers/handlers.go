// Package handlers implements the HTTP endpoints of the ecomap API.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/ecomap"
	"github.com/agentstation/ecomap/internal/server/cache"
	"github.com/agentstation/ecomap/internal/server/events"
	"github.com/agentstation/ecomap/internal/server/sse"
	ws "github.com/agentstation/ecomap/internal/server/websocket"
	"github.com/agentstation/ecomap/pkg/errors"
)

// maxBodySize caps request bodies.
const maxBodySize = 16 << 20

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	client         ecomap.Client
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	startTime      time.Time
}

// New creates a new Handlers instance.
func New(
	client ecomap.Client,
	cache *cache.Cache,
	broker *events.Broker,
	wsHub *ws.Hub,
	sseBroadcaster *sse.Broadcaster,
	upgrader websocket.Upgrader,
	logger *zerolog.Logger,
) *Handlers {
	return &Handlers{
		client:         client,
		cache:          cache,
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader:       upgrader,
		logger:         logger,
		startTime:      time.Now(),
	}
}

// decodeBody reads a JSON request body into v. Unknown fields are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.NewValidationError("body", nil, "request body is empty")
		}
		return errors.NewValidationError("body", nil, err.Error())
	}
	return nil
}
