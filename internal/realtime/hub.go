// Package realtime pushes events to WebSocket clients. Every site has its own namespace; the admin namespace sees
// the dispatcher level events of all sites.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
	maxMessage = 512
)

// Admin is the namespace of the administrative feed.
const Admin = ""

var connections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "fedhost_websocket_connections",
	Help: "Open WebSocket connections over every namespace.",
})

// siteEvents reach the namespace of their site; adminEvents reach the admin namespace.
var (
	siteEvents  = []events.Type{events.StatusChanged, events.Notification, events.SiteDemolished}
	adminEvents = []events.Type{events.StatusChanged, events.SiteMaterialized, events.SiteDemolished}
)

type client struct {
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func New() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		rooms: map[string]map[*client]struct{}{},
	}
}

// Run forwards bus events to the namespaces until ctx is done.
func (h *Hub) Run(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			h.CloseAll()
			return
		case e, ok := <-ch:
			if !ok {
				h.CloseAll()
				return
			}
			h.dispatch(e)
		}
	}
}

func has(types []events.Type, t events.Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (h *Hub) dispatch(e events.Event) {
	if e.Site != "" && has(siteEvents, e.Type) {
		h.Broadcast(e.Site, e)
	}
	if has(adminEvents, e.Type) {
		h.Broadcast(Admin, e)
	}
	if e.Type == events.SiteDemolished && e.Site != "" {
		h.Close(e.Site)
	}
}

// Broadcast sends e to every client of namespace. Clients whose buffer is full are disconnected.
func (h *Hub) Broadcast(namespace string, e events.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type)).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.rooms[namespace] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("namespace", namespace).Msg("websocket client too slow, disconnecting")
		h.leave(namespace, c)
	}
}

// Handler upgrades requests to a connection in namespace. Clients only receive; what they send is discarded.
func (h *Hub) Handler(namespace string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader already answered
			log.Debug().Err(err).Str("namespace", namespace).Msg("websocket upgrade failed")
			return
		}

		c := &client{ws: ws, send: make(chan []byte, sendBuffer)}
		h.join(namespace, c)
		go h.writePump(c)
		h.readPump(namespace, c)
	})
}

func (h *Hub) join(namespace string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[namespace]
	if !ok {
		room = map[*client]struct{}{}
		h.rooms[namespace] = room
	}
	room[c] = struct{}{}
	connections.Inc()
}

func (h *Hub) leave(namespace string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[namespace]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, namespace)
	}
	c.close()
	connections.Dec()
}

// Close disconnects every client of namespace.
func (h *Hub) Close(namespace string) {
	h.mu.Lock()
	room := h.rooms[namespace]
	delete(h.rooms, namespace)
	for c := range room {
		c.close()
		connections.Dec()
	}
	h.mu.Unlock()
}

func (h *Hub) CloseAll() {
	h.mu.RLock()
	namespaces := make([]string, 0, len(h.rooms))
	for ns := range h.rooms {
		namespaces = append(namespaces, ns)
	}
	h.mu.RUnlock()
	for _, ns := range namespaces {
		h.Close(ns)
	}
}

// Count is the number of clients connected to namespace.
func (h *Hub) Count(namespace string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[namespace])
}

func (h *Hub) readPump(namespace string, c *client) {
	defer func() {
		h.leave(namespace, c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessage)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("namespace", namespace).Msg("websocket closed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
