// ABOUTME: HTTP mutation and read API for the board
// ABOUTME: Create, partial update, delete, and reorder, each committed then broadcast

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/corkboard/internal/board"
	"github.com/2389/corkboard/internal/protocol"
)

// BoardResponse is the JSON response for GET /api/board.
type BoardResponse struct {
	Items []*board.Item `json:"items"`
	Order []int64       `json:"order"`
}

// CreateItemRequest is the JSON request body for POST /api/items.
type CreateItemRequest struct {
	Kind  board.Kind `json:"kind"`
	Title string     `json:"title"`
	Body  string     `json:"body"`
}

// ReorderRequest is the JSON request body for PUT /api/order.
type ReorderRequest struct {
	Order []int64 `json:"order"`
}

// OrderResponse is the JSON response for PUT /api/order.
type OrderResponse struct {
	Order []int64 `json:"order"`
}

// handleBoard handles GET /api/board: the full committed state.
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	items, order := s.board.Snapshot()
	s.writeJSON(w, http.StatusOK, BoardResponse{Items: items, Order: order})
}

// handleItems handles POST /api/items. The created item is committed,
// broadcast to every connection, and scheduled for persistence before the
// response is written.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.commitMu.Lock()
	it, err := s.board.Create(req.Kind, req.Title, req.Body)
	if err == nil {
		s.scheduleSave()
		s.broadcast(protocol.ItemCreated(it), protocol.ScopeAll, "")
	}
	s.commitMu.Unlock()
	if err != nil {
		s.sendJSONError(w, statusForError(err), err.Error())
		return
	}
	s.logger.Info("item created", "id", it.ID, "kind", it.Kind)

	s.writeJSON(w, http.StatusCreated, it)
}

// handleItemByID handles PATCH and DELETE on /api/items/{id}.
func (s *Server) handleItemByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/items/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		s.sendJSONError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		s.updateItem(w, r, id)
	case http.MethodDelete:
		s.deleteItem(w, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// updateItem applies a partial update. Only fields present in the body
// change; the committed result is broadcast as item-updated.
func (s *Server) updateItem(w http.ResponseWriter, r *http.Request, id int64) {
	var patch board.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.commitMu.Lock()
	it, err := s.board.Update(id, patch)
	if err == nil {
		s.scheduleSave()
		s.broadcast(protocol.ItemUpdated(it), protocol.ScopeAll, "")
	}
	s.commitMu.Unlock()
	if err != nil {
		s.sendJSONError(w, statusForError(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, it)
}

// deleteItem removes an item and broadcasts item-deleted with the removed
// item as payload.
func (s *Server) deleteItem(w http.ResponseWriter, id int64) {
	s.commitMu.Lock()
	it, err := s.board.Delete(id)
	if err == nil {
		s.scheduleSave()
		s.broadcast(protocol.ItemDeleted(it), protocol.ScopeAll, "")
	}
	s.commitMu.Unlock()
	if err != nil {
		s.sendJSONError(w, statusForError(err), err.Error())
		return
	}
	s.logger.Info("item deleted", "id", it.ID)

	s.writeJSON(w, http.StatusOK, it)
}

// handleOrder handles PUT /api/order. The new order must be an exact
// permutation of the current item ids; otherwise nothing changes and the
// caller gets a 400.
func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.commitMu.Lock()
	order, err := s.board.Reorder(req.Order)
	if err == nil {
		s.scheduleSave()
		s.broadcast(protocol.OrderChanged(order), protocol.ScopeAll, "")
	}
	s.commitMu.Unlock()
	if err != nil {
		s.sendJSONError(w, statusForError(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, OrderResponse{Order: order})
}

// statusForError maps board errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, board.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, board.ErrValidation), errors.Is(err, board.ErrInvalidOrder):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
