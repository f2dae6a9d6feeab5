package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sidereusnuntius/fedhost/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, h *Hub, namespace string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.Handler(namespace))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	require.Eventually(t, func() bool { return h.Count(namespace) == 1 }, time.Second, 5*time.Millisecond)
	return ws
}

func read(t *testing.T, ws *websocket.Conn) events.Event {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	var e events.Event
	require.NoError(t, json.Unmarshal(msg, &e))
	return e
}

func start(t *testing.T) (*Hub, *events.Bus) {
	h := New()
	bus := events.New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx, bus)
	t.Cleanup(cancel)
	// let Run subscribe before anything is published
	time.Sleep(20 * time.Millisecond)
	return h, bus
}

func TestSiteNamespaces(t *testing.T) {
	h, bus := start(t)
	alice := dial(t, h, "alice")
	bob := dial(t, h, "bob")

	bus.Publish(events.Event{Type: events.Notification, Site: "alice", Payload: map[string]string{"kind": "follow"}})
	bus.Publish(events.Event{Type: events.StatusChanged, Site: "bob"})

	e := read(t, alice)
	assert.Equal(t, events.Notification, e.Type)
	assert.Equal(t, "alice", e.Site)

	e = read(t, bob)
	assert.Equal(t, events.StatusChanged, e.Type)
}

func TestAdminFeed(t *testing.T) {
	h, bus := start(t)
	admin := dial(t, h, Admin)

	bus.Publish(events.Event{Type: events.Notification, Site: "alice"})
	bus.Publish(events.Event{Type: events.SiteMaterialized, Site: "alice"})

	// notifications are private to the site
	e := read(t, admin)
	assert.Equal(t, events.SiteMaterialized, e.Type)
}

func TestDemolitionClosesNamespace(t *testing.T) {
	h, bus := start(t)
	alice := dial(t, h, "alice")

	bus.Publish(events.Event{Type: events.SiteDemolished, Site: "alice"})

	e := read(t, alice)
	assert.Equal(t, events.SiteDemolished, e.Type)

	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := alice.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)
	assert.Zero(t, h.Count("alice"))
}
