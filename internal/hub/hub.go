// ABOUTME: In-process fan-out of realtime events to connected clients
// ABOUTME: Subscriber registry keyed by connection id with send-to-all and all-except primitives

package hub

import (
	"log/slog"
	"sync"

	"github.com/2389/corkboard/internal/protocol"
)

// connBufferSize is the channel buffer for each connection. A connection
// that falls this far behind starts losing events; live-typing is lossy
// by contract and committed state can be refetched.
const connBufferSize = 64

// Hub is the local half of the broadcast bus: an explicit registry of
// connected clients with SendAll and SendAllExcept primitives. It knows
// nothing about the transport or the cross-process relay.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]chan *protocol.Event
	logger *slog.Logger
}

// New creates a hub. Pass nil logger for the default.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[string]chan *protocol.Event),
		logger: logger.With("component", "hub"),
	}
}

// Register adds a connection and returns its event channel. The channel
// is closed by Unregister or Close.
func (h *Hub) Register(connID string) <-chan *protocol.Event {
	ch := make(chan *protocol.Event, connBufferSize)

	h.mu.Lock()
	h.conns[connID] = ch
	h.mu.Unlock()

	h.logger.Debug("connection registered", "conn_id", connID)
	return ch
}

// Unregister removes a connection and closes its channel. Safe to call
// for an unknown id.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	ch, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
	}
	h.mu.Unlock()

	if ok {
		close(ch)
		h.logger.Debug("connection unregistered", "conn_id", connID)
	}
}

// SendAll delivers the event to every registered connection.
func (h *Hub) SendAll(ev *protocol.Event) {
	h.send(ev, "")
}

// SendAllExcept delivers the event to every registered connection except
// the sender. Used for all-except-sender scoped events such as
// live-typing.
func (h *Hub) SendAllExcept(senderID string, ev *protocol.Event) {
	h.send(ev, senderID)
}

// Deliver routes an event according to its scope.
func (h *Hub) Deliver(ev *protocol.Event, scope protocol.Scope, senderID string) {
	if scope == protocol.ScopeAllExceptSender {
		h.SendAllExcept(senderID, ev)
		return
	}
	h.SendAll(ev)
}

// send fans the event out, skipping excludeID if non-empty. Non-blocking:
// events are dropped for connections whose channels are full, preserving
// FIFO order for everyone else.
func (h *Hub) send(ev *protocol.Event, excludeID string) {
	h.mu.RLock()
	targets := make([]chan *protocol.Event, 0, len(h.conns))
	for id, ch := range h.conns {
		if excludeID != "" && id == excludeID {
			continue
		}
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("dropped event for slow connection", "event_type", ev.Type)
		}
	}
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close unregisters every connection and closes all channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.conns {
		close(ch)
		delete(h.conns, id)
	}
	h.logger.Debug("hub closed")
}
