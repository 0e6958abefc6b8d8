// Package sse streams dispatcher events to web clients as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/elastask/internal/events"
)

// Handler streams events from the EventBus to connected SSE clients.
type Handler struct {
	bus           *events.EventBus
	mu            sync.RWMutex
	clients       map[*client]struct{}
	heartbeatFreq time.Duration
}

type client struct {
	id      string
	done    chan struct{}
	events  chan []byte
	subject string // optional filter on the event subject (task ID)
	closed  bool
}

// NewHandler creates a new SSE handler connected to the given EventBus.
func NewHandler(bus *events.EventBus) *Handler {
	return &Handler{
		bus:           bus,
		clients:       make(map[*client]struct{}),
		heartbeatFreq: 30 * time.Second,
	}
}

// SetHeartbeatFrequency sets the interval between heartbeat messages.
func (h *Handler) SetHeartbeatFrequency(d time.Duration) {
	h.heartbeatFreq = d
}

// ServeHTTP implements http.Handler for SSE connections.
//
// Query parameters:
//   - task: only events about this task ID
//   - types: comma-separated event types, e.g. task_claimed,task_error
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	q := r.URL.Query()
	types := splitTypes(q.Get("types"))
	c := &client{
		id:      uuid.NewString(),
		done:    make(chan struct{}),
		events:  make(chan []byte, 100),
		subject: q.Get("task"),
	}

	h.addClient(c)
	defer h.removeClient(c)

	eventCh := h.bus.Subscribe(types...)
	defer h.bus.Unsubscribe(eventCh)

	h.sendEvent(w, flusher, "connected", map[string]interface{}{
		"client_id": c.id,
		"task":      c.subject,
		"types":     types,
	})

	heartbeat := time.NewTicker(h.heartbeatFreq)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			h.sendComment(w, flusher, "heartbeat")
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if c.subject != "" && event.Subject() != c.subject {
				continue
			}
			h.sendEvent(w, flusher, event.EventType(), event)
		case data := <-c.events:
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func splitTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (h *Handler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	flusher.Flush()
}

func (h *Handler) sendComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	fmt.Fprintf(w, ": %s\n\n", comment)
	flusher.Flush()
}

func (h *Handler) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Handler) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// ClientCount returns the number of connected clients.
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to all connected clients. Clients whose buffer
// is full miss it.
func (h *Handler) Broadcast(eventType string, data interface{}) {
	jsonData, err := json.Marshal(map[string]interface{}{
		"event": eventType,
		"data":  data,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.events <- jsonData:
		default:
		}
	}
}

// Shutdown disconnects all clients.
func (h *Handler) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !c.closed {
			c.closed = true
			close(c.done)
		}
	}
	h.clients = make(map[*client]struct{})
	return nil
}
