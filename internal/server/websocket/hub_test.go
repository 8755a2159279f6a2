package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/ecomap/internal/server/events"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(r.RemoteAddr, hub, conn, events.ParseFilter(r.URL.Query().Get("types")))
		hub.Register(c)
		go c.WritePump()
		go c.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub, url := startHub(t)
	all := dial(t, url)
	runs := dial(t, url+"?types=run")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Send(events.Event{ID: "1", Type: events.EntityCreated, Data: map[string]any{"id": "e1"}}))
	require.NoError(t, hub.Send(events.Event{ID: "2", Type: events.RunFinished, Data: map[string]any{"id": "r1"}}))

	var got events.Event
	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, events.EntityCreated, got.Type)
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, events.RunFinished, got.Type)

	_ = runs.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, runs.ReadJSON(&got))
	assert.Equal(t, events.RunFinished, got.Type)
	assert.Equal(t, "2", got.ID)
}

func TestHubDisconnect(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubShutdown(t *testing.T) {
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := NewClient("c1", hub, nil, nil)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case _, ok := <-c.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("client channel not closed on shutdown")
	}
	assert.Zero(t, hub.ClientCount())

	// registering after shutdown must not block
	late := NewClient("c2", hub, nil, nil)
	hub.Register(late)
	_, ok := <-late.send
	assert.False(t, ok)
}
