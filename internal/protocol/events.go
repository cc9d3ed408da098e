// ABOUTME: Wire-level event types exchanged between server, clients, and peer processes
// ABOUTME: Defines event kinds, delivery scopes, and the relay envelope

package protocol

import (
	"github.com/2389/corkboard/internal/board"
	"github.com/2389/corkboard/internal/presence"
)

// Type identifies an event kind on the realtime channel.
type Type string

// Server-to-client events. item-created, item-updated, item-deleted, and
// order-changed announce committed mutations and are authoritative.
// live-typing is a best-effort preview of uncommitted input and may be
// dropped or superseded at any point.
const (
	TypeHello          Type = "hello"
	TypeItemCreated    Type = "item-created"
	TypeItemUpdated    Type = "item-updated"
	TypeItemDeleted    Type = "item-deleted"
	TypeOrderChanged   Type = "order-changed"
	TypeEditingStarted Type = "editing-started"
	TypeEditingStopped Type = "editing-stopped"
	TypeLiveTyping     Type = "live-typing"
)

// Client-to-server events. live-typing is reused in both directions.
const (
	TypeEditStart Type = "edit-start"
	TypeEditStop  Type = "edit-stop"
)

// Scope controls which connections an event is delivered to.
type Scope string

const (
	// ScopeAll delivers to every connection, including the sender.
	ScopeAll Scope = "all"
	// ScopeAllExceptSender skips the originating connection. Exclusion is
	// by connection id, which is globally unique across processes.
	ScopeAllExceptSender Scope = "all-except-sender"
)

// Event is one message on the realtime channel. Only the fields relevant
// to the Type are populated.
type Event struct {
	Type Type `json:"type"`

	// Item carries the full committed item for item-created, item-updated,
	// and item-deleted.
	Item *board.Item `json:"item,omitempty"`

	// Order is the full order index for order-changed and hello.
	Order []int64 `json:"order,omitempty"`

	// ItemID identifies the item for presence and live-typing events.
	ItemID int64 `json:"item_id,omitempty"`

	// ConnID is the acting connection for presence events, and the
	// assigned connection id in hello. Lets a client recognize its own
	// broadcast echo.
	ConnID string `json:"conn_id,omitempty"`

	// User is the acting identity for presence events.
	User *presence.User `json:"user,omitempty"`

	// Fields carries the in-progress values for live-typing. The shape is
	// the same for every item kind; checks is simply absent for non-todo
	// items.
	Fields *board.Patch `json:"fields,omitempty"`

	// Hello-only: the full board and the current presence view.
	Items   []*board.Item     `json:"items,omitempty"`
	Editors []presence.Editor `json:"editors,omitempty"`
}

// Envelope wraps an event for the cross-process relay. Origin is the
// publishing process; a subscriber skips envelopes it originated, since
// those were already delivered locally. Sender is consulted only for
// ScopeAllExceptSender.
type Envelope struct {
	Origin string `json:"origin"`
	Sender string `json:"sender,omitempty"`
	Scope  Scope  `json:"scope"`
	Event  *Event `json:"event"`
}

// ItemCreated builds the commit announcement for a new item.
func ItemCreated(it *board.Item) *Event {
	return &Event{Type: TypeItemCreated, Item: it}
}

// ItemUpdated builds the commit announcement for an updated item.
func ItemUpdated(it *board.Item) *Event {
	return &Event{Type: TypeItemUpdated, Item: it}
}

// ItemDeleted builds the commit announcement for a removed item.
func ItemDeleted(it *board.Item) *Event {
	return &Event{Type: TypeItemDeleted, Item: it}
}

// OrderChanged builds the commit announcement for a reorder.
func OrderChanged(order []int64) *Event {
	return &Event{Type: TypeOrderChanged, Order: order}
}

// EditingStarted announces that a connection began editing an item.
func EditingStarted(itemID int64, connID string, user presence.User) *Event {
	return &Event{Type: TypeEditingStarted, ItemID: itemID, ConnID: connID, User: &user}
}

// EditingStopped announces that a connection stopped editing an item,
// whether explicitly or through disconnect cleanup.
func EditingStopped(itemID int64, connID string, user presence.User) *Event {
	return &Event{Type: TypeEditingStopped, ItemID: itemID, ConnID: connID, User: &user}
}

// LiveTyping builds the lossy preview broadcast of in-progress edits.
func LiveTyping(itemID int64, fields *board.Patch) *Event {
	return &Event{Type: TypeLiveTyping, ItemID: itemID, Fields: fields}
}
