// ABOUTME: Advisory per-item presence tracking (who is editing what)
// ABOUTME: Keeps a reverse connection index so disconnect cleanup is O(edited items)

package presence

import (
	"sort"
	"sync"
)

// User is the opaque identity attached to presence events. The tracker
// never interprets it; it comes from the token verifier at connect time.
type User struct {
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

// Editor is one presence entry: a connection editing an item as a user.
type Editor struct {
	ItemID int64  `json:"item_id"`
	ConnID string `json:"conn_id"`
	User   User   `json:"user"`
}

// Tracker records which connections are editing which items. Presence is
// advisory: any number of connections may edit the same item at once, and
// nothing here blocks a write. State is process-local and intentionally
// not persisted; peers rebuild their view from the event stream.
type Tracker struct {
	mu sync.RWMutex

	// editors: item id -> conn id -> user
	editors map[int64]map[string]User

	// byConn: conn id -> set of item ids that connection is editing.
	// Avoids scanning every item on disconnect.
	byConn map[string]map[int64]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		editors: make(map[int64]map[string]User),
		byConn:  make(map[string]map[int64]struct{}),
	}
}

// BeginEdit records that conn is editing item as user. Returns false if
// the connection already had an entry for this item (at most one entry
// per connection per item); callers only announce the transition when it
// returns true.
func (t *Tracker) BeginEdit(itemID int64, connID string, user User) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns, ok := t.editors[itemID]
	if !ok {
		conns = make(map[string]User)
		t.editors[itemID] = conns
	}
	if _, exists := conns[connID]; exists {
		return false
	}
	conns[connID] = user

	items, ok := t.byConn[connID]
	if !ok {
		items = make(map[int64]struct{})
		t.byConn[connID] = items
	}
	items[itemID] = struct{}{}
	return true
}

// EndEdit removes the entry for (item, conn). Idempotent: returns false
// when no entry existed, so a duplicate end never produces a duplicate
// editing-stopped event.
func (t *Tracker) EndEdit(itemID int64, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endEditLocked(itemID, connID)
}

func (t *Tracker) endEditLocked(itemID int64, connID string) bool {
	conns, ok := t.editors[itemID]
	if !ok {
		return false
	}
	if _, exists := conns[connID]; !exists {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(t.editors, itemID)
	}

	if items, ok := t.byConn[connID]; ok {
		delete(items, itemID)
		if len(items) == 0 {
			delete(t.byConn, connID)
		}
	}
	return true
}

// Disconnect removes every entry belonging to conn and returns the
// affected item ids in ascending order, one per item, so the caller can
// emit exactly one editing-stopped event each. This is the only cleanup
// path for presence left behind by an abrupt disconnect and must run as
// part of connection teardown.
func (t *Tracker) Disconnect(connID string) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	items, ok := t.byConn[connID]
	if !ok {
		return nil
	}
	affected := make([]int64, 0, len(items))
	for itemID := range items {
		affected = append(affected, itemID)
	}
	sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })

	for _, itemID := range affected {
		t.endEditLocked(itemID, connID)
	}
	return affected
}

// Editors returns every current presence entry, ordered by item id then
// connection id. Used to seed a newly connected client's lock view.
func (t *Tracker) Editors() []Editor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Editor, 0, len(t.editors))
	for itemID, conns := range t.editors {
		for connID, user := range conns {
			out = append(out, Editor{ItemID: itemID, ConnID: connID, User: user})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].ConnID < out[j].ConnID
	})
	return out
}

// EditorsOf returns the presence entries for one item.
func (t *Tracker) EditorsOf(itemID int64) []Editor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := t.editors[itemID]
	out := make([]Editor, 0, len(conns))
	for connID, user := range conns {
		out = append(out, Editor{ItemID: itemID, ConnID: connID, User: user})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}

// Editing reports whether conn currently has an entry for item.
func (t *Tracker) Editing(itemID int64, connID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.editors[itemID][connID]
	return ok
}
