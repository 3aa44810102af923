// Package notify fans committed case status changes out to websocket clients
package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/models"
)

// EventCaseStatusChanged is the event name of every status log broadcast
const EventCaseStatusChanged = "case_status_changed"

// DefaultBuffer is the number of pending events a hub holds before dropping
const DefaultBuffer = 256

const writeWait = 10 * time.Second

// Message is the frame written to clients
type Message struct {
	Event string                `json:"event"`
	Data  models.StatusLogEntry `json:"data"`
}

// Hub keeps the connected clients and broadcasts queued events to them
type Hub struct {
	upgrader websocket.Upgrader
	events   chan models.StatusLogEntry

	mutex   sync.Mutex
	clients map[*websocket.Conn]string
}

// NewHub creates a hub holding up to buffer pending events. allowedOrigins
// restricts the websocket handshake; empty accepts any origin.
func NewHub(buffer int, allowedOrigins []string) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
		events:  make(chan models.StatusLogEntry, buffer),
		clients: make(map[*websocket.Conn]string),
	}
}

// Publish queues entries for broadcast without blocking. Entries that do not
// fit in the buffer are dropped and logged. It returns how many were queued.
func (h *Hub) Publish(entries ...models.StatusLogEntry) int {
	queued := 0
	for _, e := range entries {
		select {
		case h.events <- e:
			queued++
		default:
			zap.S().Warnw("notification buffer full, dropping event", "caseId", e.CaseID, "toStatus", e.ToStatus)
		}
	}
	return queued
}

// Run broadcasts queued events until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e := <-h.events:
			h.broadcast(Message{Event: EventCaseStatusChanged, Data: e})
		}
	}
}

func (h *Hub) broadcast(msg Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn, userID := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			zap.S().Warnw("failed to deliver notification", "userId", userID, "error", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and keeps userID's connection registered
// until the client goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "userId", userID, "error", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = userID
	h.mutex.Unlock()
	zap.S().Infow("client connected to notifications", "userId", userID)

	// clients only listen, reads just detect the disconnect
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	h.mutex.Lock()
	delete(h.clients, conn)
	h.mutex.Unlock()
	conn.Close()
	zap.S().Infow("client disconnected from notifications", "userId", userID)
}
