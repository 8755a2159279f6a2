// Package sse streams pipeline events as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/ecomap/internal/server/events"
)

type client struct {
	filter events.Filter
	ch     chan events.Event
}

// Broadcaster manages Server-Sent Events connections. It is an
// events.Subscriber.
type Broadcaster struct {
	clients    map[*client]bool
	newClients chan *client
	closed     chan *client
	events     chan events.Event
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zerolog.Logger
}

var _ events.Subscriber = (*Broadcaster)(nil)

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients:    make(map[*client]bool),
		newClients: make(chan *client, 16),
		closed:     make(chan *client, 16),
		events:     make(chan events.Event, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the broadcaster until ctx is canceled, then ends every stream.
func (b *Broadcaster) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for c := range b.clients {
				close(c.ch)
			}
			b.clients = make(map[*client]bool)
			b.mu.Unlock()
			return

		case c := <-b.newClients:
			b.mu.Lock()
			b.clients[c] = true
			n := len(b.clients)
			b.mu.Unlock()
			b.logger.Info().Int("total_clients", n).Msg("SSE client connected")

		case c := <-b.closed:
			b.mu.Lock()
			if b.clients[c] {
				delete(b.clients, c)
				close(c.ch)
			}
			n := len(b.clients)
			b.mu.Unlock()
			b.logger.Info().Int("total_clients", n).Msg("SSE client disconnected")

		case event := <-b.events:
			b.mu.RLock()
			for c := range b.clients {
				if !c.filter.Match(event.Type) {
					continue
				}
				select {
				case c.ch <- event:
				default:
					b.logger.Warn().Msg("SSE client buffer full, event skipped")
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Send queues an event for every matching client.
func (b *Broadcaster) Send(event events.Event) error {
	select {
	case b.events <- event:
	default:
		b.logger.Warn().Str("event_type", string(event.Type)).Msg("SSE broadcast queue full, event dropped")
	}
	return nil
}

// Close is a no-op. The broadcaster stops with the context passed to Run.
func (b *Broadcaster) Close() error {
	return nil
}

// ClientCount returns the number of connected SSE clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP streams events to one client until it disconnects. The types
// query parameter filters event types, see events.ParseFilter.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := &client{
		filter: events.ParseFilter(r.URL.Query().Get("types")),
		ch:     make(chan events.Event, 256),
	}
	select {
	case b.newClients <- c:
	case <-b.done:
		return
	}
	defer func() {
		select {
		case b.closed <- c:
		case <-b.done:
		}
	}()

	b.writeEvent(w, flusher, events.Event{
		Type:      events.ClientConnected,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"message": "Connected to ecomap event stream"},
	})

	for {
		select {
		case event, ok := <-c.ch:
			if !ok {
				return
			}
			b.writeEvent(w, flusher, event)
		case <-r.Context().Done():
			return
		}
	}
}

func (b *Broadcaster) writeEvent(w http.ResponseWriter, flusher http.Flusher, event events.Event) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal SSE event data")
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	if event.ID != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", event.ID)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
