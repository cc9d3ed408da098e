// ABOUTME: Websocket realtime channel: connect handshake, event pumps, disconnect cleanup
// ABOUTME: Each connection gets a globally unique id and an identity from the token verifier

package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/corkboard/internal/presence"
	"github.com/2389/corkboard/internal/protocol"
)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead. Pings go out at pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients are served from a separate origin; the token query
	// parameter is the access control, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades GET /ws to a websocket connection. The client
// receives a hello event carrying its assigned connection id, the full
// board, and the current presence view, then the live event stream.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	user, err := s.identify(r)
	if err != nil {
		s.sendJSONError(w, http.StatusUnauthorized, "invalid identity token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.New().String()
	logger := s.logger.With("conn_id", connID, "user", user.Name)
	logger.Info("client connected")

	ch := s.hub.Register(connID)

	// Snapshot after registering so nothing committed in between is lost:
	// anything newer than the snapshot is waiting in the hub channel.
	items, order := s.board.Snapshot()
	hello := &protocol.Event{
		Type:    protocol.TypeHello,
		ConnID:  connID,
		Items:   items,
		Order:   order,
		Editors: s.presence.Editors(),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		logger.Error("hello write failed", "error", err)
		s.hub.Unregister(connID)
		_ = conn.Close()
		return
	}

	go s.writePump(conn, ch, logger)
	s.readLoop(conn, connID, user, logger)

	// Teardown runs synchronously before the handler returns: presence
	// left behind by an abrupt disconnect is cleaned up here and nowhere
	// else.
	s.disconnect(connID, user)
	_ = conn.Close()
	logger.Info("client disconnected")
}

// identify resolves the connecting user's identity. With a verifier
// configured the token query parameter (or bearer header) must carry a
// valid signed assertion; otherwise the client self-reports a name.
func (s *Server) identify(r *http.Request) (presence.User, error) {
	if s.verifier == nil {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "anonymous"
		}
		return presence.User{Name: name, Photo: r.URL.Query().Get("photo")}, nil
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return s.verifier.Verify(token)
}

// writePump forwards hub events to the socket until the hub closes the
// channel or a write fails, pinging to keep the connection alive.
func (s *Server) writePump(conn *websocket.Conn, ch <-chan *protocol.Event, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client events until the connection drops.
func (s *Server) readLoop(conn *websocket.Conn, connID string, user presence.User, logger *slog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev protocol.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("read failed", "error", err)
			}
			return
		}
		s.dispatchClientEvent(connID, user, &ev)
	}
}

// dispatchClientEvent handles one client-originated event. Presence
// transitions are announced to everyone; live-typing previews go to
// everyone except the sender.
func (s *Server) dispatchClientEvent(connID string, user presence.User, ev *protocol.Event) {
	switch ev.Type {
	case protocol.TypeEditStart:
		if _, ok := s.board.Get(ev.ItemID); !ok {
			s.logger.Debug("edit-start for unknown item", "item_id", ev.ItemID, "conn_id", connID)
			return
		}
		s.commitMu.Lock()
		if s.presence.BeginEdit(ev.ItemID, connID, user) {
			s.broadcast(protocol.EditingStarted(ev.ItemID, connID, user), protocol.ScopeAll, "")
		}
		s.commitMu.Unlock()

	case protocol.TypeEditStop:
		s.commitMu.Lock()
		if s.presence.EndEdit(ev.ItemID, connID) {
			s.broadcast(protocol.EditingStopped(ev.ItemID, connID, user), protocol.ScopeAll, "")
		}
		s.commitMu.Unlock()

	case protocol.TypeLiveTyping:
		if ev.ItemID <= 0 || ev.Fields == nil {
			return
		}
		s.broadcast(protocol.LiveTyping(ev.ItemID, ev.Fields), protocol.ScopeAllExceptSender, connID)

	default:
		s.logger.Debug("unknown client event", "type", ev.Type, "conn_id", connID)
	}
}

// disconnect tears a connection down: it leaves the hub, and every item
// it was still editing gets exactly one editing-stopped event.
func (s *Server) disconnect(connID string, user presence.User) {
	s.hub.Unregister(connID)
	s.commitMu.Lock()
	for _, itemID := range s.presence.Disconnect(connID) {
		s.broadcast(protocol.EditingStopped(itemID, connID, user), protocol.ScopeAll, "")
	}
	s.commitMu.Unlock()
}
