// Package events fans pipeline events out to realtime transports.
//
// Client hooks publish into a Broker, which delivers every event to its
// subscribers (the WebSocket hub and the SSE broadcaster). Subscribers
// filter events per connection.
package events

import (
	"strings"
	"time"
)

// EventType names a pipeline event.
type EventType string

// Event types.
const (
	EntityCreated    EventType = "entity.created"
	EntityUpdated    EventType = "entity.updated"
	EntityAbsorbed   EventType = "entity.absorbed"
	EntityTransition EventType = "entity.transition"

	RunFinished EventType = "run.finished"

	ClientConnected EventType = "client.connected"
)

// Event is one pipeline event with its payload.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Filter selects event types. An empty filter matches everything. An entry
// without a dot matches a whole family, so "entity" matches
// "entity.created".
type Filter []string

// ParseFilter parses a comma separated filter such as "entity,run.finished".
func ParseFilter(s string) Filter {
	var f Filter
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			f = append(f, strings.ToLower(part))
		}
	}
	return f
}

// Match reports whether t passes the filter.
func (f Filter) Match(t EventType) bool {
	if len(f) == 0 || t == ClientConnected {
		return true
	}
	for _, want := range f {
		if string(t) == want || strings.HasPrefix(string(t), want+".") {
			return true
		}
	}
	return false
}

// Subscriber consumes events. Send must not block.
type Subscriber interface {
	Send(Event) error
	Close() error
}
