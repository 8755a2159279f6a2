package quality

import (
	"context"
	"sync"

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/logging"
)

// Sink receives the audit log stream of state transitions.
type Sink interface {
	Emit(ctx context.Context, event entity.AuditEvent)
}

// LogSink writes every event to the context logger.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(ctx context.Context, ev entity.AuditEvent) {
	logging.Ctx(ctx).Info().
		Str("entity_id", ev.EntityID).
		Str("transition", ev.Transition).
		Str("reason", ev.Reason).
		Time("at", ev.At.Time).
		Msg("Quality transition")
}

// ChannelSink forwards events to a channel for external monitoring. Emit
// blocks while the channel is full unless ctx is done.
type ChannelSink struct {
	C chan entity.AuditEvent
}

// NewChannelSink creates a ChannelSink with a buffered channel.
func NewChannelSink() *ChannelSink {
	return &ChannelSink{C: make(chan entity.AuditEvent, constants.AuditBufferSize)}
}

// Emit implements Sink.
func (s *ChannelSink) Emit(ctx context.Context, ev entity.AuditEvent) {
	select {
	case s.C <- ev:
	case <-ctx.Done():
		logging.Ctx(ctx).Warn().Str("entity_id", ev.EntityID).Msg("Audit event dropped")
	}
}

// SliceSink collects events in memory.
type SliceSink struct {
	mu     sync.Mutex
	events []entity.AuditEvent
}

// Emit implements Sink.
func (s *SliceSink) Emit(_ context.Context, ev entity.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of the collected events.
func (s *SliceSink) Events() []entity.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.AuditEvent(nil), s.events...)
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ctx context.Context, ev entity.AuditEvent) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
