package quality

import (
	"context"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/logging"
)

func event(id string) entity.AuditEvent {
	return entity.NewAuditEvent(id, entity.StatusActive, entity.StatusFlagged, FlagMissingFields, utc.New(created))
}

func TestSinks(t *testing.T) {
	ctx := context.Background()

	t.Run("channel sink forwards", func(t *testing.T) {
		s := NewChannelSink()
		s.Emit(ctx, event("a"))
		got := <-s.C
		assert.Equal(t, "active->flagged", got.Transition)
	})

	t.Run("full channel drops on cancel", func(t *testing.T) {
		logging.DisableLoggingForTest(t)
		s := &ChannelSink{C: make(chan entity.AuditEvent)}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		s.Emit(ctx, event("a"))
		assert.Empty(t, s.C)
	})

	t.Run("multi sink fans out", func(t *testing.T) {
		a, b := &SliceSink{}, &SliceSink{}
		MultiSink{a, b}.Emit(ctx, event("a"))
		MultiSink{a}.Emit(ctx, event("b"))
		require.Len(t, a.Events(), 2)
		require.Len(t, b.Events(), 1)
		assert.Equal(t, "a", b.Events()[0].EntityID)
	})

	t.Run("log sink writes the transition", func(t *testing.T) {
		buf := logging.CaptureLoggingForTest(t)
		LogSink{}.Emit(ctx, event("a"))
		assert.Contains(t, buf.Output(), `"transition":"active->flagged"`)
		assert.Contains(t, buf.Output(), `"entity_id":"a"`)
	})
}
