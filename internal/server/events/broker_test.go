package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (r *recorder) Send(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) snapshot() ([]Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...), r.closed
}

func newBroker(t *testing.T) (*Broker, context.CancelFunc) {
	t.Helper()
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return b, cancel
}

func TestBrokerDelivers(t *testing.T) {
	b, _ := newBroker(t)
	r1, r2 := &recorder{}, &recorder{}
	b.Subscribe(r1)
	b.Subscribe(r2)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 2 }, time.Second, 5*time.Millisecond)

	b.Publish(EntityCreated, map[string]any{"id": "e1"})
	b.Publish(RunFinished, map[string]any{"id": "r1"})

	for _, r := range []*recorder{r1, r2} {
		require.Eventually(t, func() bool {
			got, _ := r.snapshot()
			return len(got) == 2
		}, time.Second, 5*time.Millisecond)
		got, _ := r.snapshot()
		assert.Equal(t, EntityCreated, got[0].Type)
		assert.Equal(t, "1", got[0].ID)
		assert.Equal(t, RunFinished, got[1].Type)
		assert.Equal(t, "2", got[1].ID)
	}
	assert.Equal(t, uint64(2), b.Stats().Published)
}

func TestBrokerUnsubscribe(t *testing.T) {
	b, _ := newBroker(t)
	r := &recorder{}
	b.Subscribe(r)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	b.Unsubscribe(r)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
	_, closed := r.snapshot()
	assert.True(t, closed)
}

func TestBrokerShutdownClosesSubscribers(t *testing.T) {
	b, cancel := newBroker(t)
	r := &recorder{}
	b.Subscribe(r)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		_, closed := r.snapshot()
		return closed
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, b.SubscriberCount())
}

func TestBrokerSubscribeBeforeRun(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger)

	done := make(chan struct{})
	go func() {
		for range 5 {
			b.Subscribe(&recorder{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe blocked before Run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 5 }, time.Second, 5*time.Millisecond)
}

func TestBrokerDropsWhenFull(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	for range queueSize + 3 {
		b.Publish(EntityUpdated, nil)
	}
	stats := b.Stats()
	assert.Equal(t, uint64(queueSize), stats.Published)
	assert.Equal(t, uint64(3), stats.Dropped)
	assert.Equal(t, queueSize, stats.QueueDepth)
}

func TestFilter(t *testing.T) {
	tests := []struct {
		filter string
		event  EventType
		want   bool
	}{
		{"", EntityCreated, true},
		{"entity", EntityCreated, true},
		{"entity", EntityTransition, true},
		{"entity", RunFinished, false},
		{"run.finished", RunFinished, true},
		{"entity.created, RUN", RunFinished, true},
		{"entity.created", EntityUpdated, false},
		{"ent", EntityCreated, false},
		{"run", ClientConnected, true},
	}
	for _, tt := range tests {
		t.Run(tt.filter+"/"+string(tt.event), func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilter(tt.filter).Match(tt.event))
		})
	}
}
