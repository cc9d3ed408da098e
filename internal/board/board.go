// ABOUTME: Authoritative in-memory registry of board items and their display order
// ABOUTME: All mutations are atomic and keep the order an exact permutation of item ids

package board

import (
	"errors"
	"fmt"
	"sync"
)

// Board errors. ErrValidation and ErrInvalidOrder map to client errors;
// no partial state change is ever visible after a failed operation.
var (
	ErrNotFound     = errors.New("item not found")
	ErrInvalidOrder = errors.New("order is not a permutation of existing item ids")
	ErrValidation   = errors.New("invalid item")
)

// Board owns the item registry and the order index for one server process.
// It is the single source of truth for committed board state. Methods are
// safe for concurrent use; each mutation is one bounded critical section.
type Board struct {
	mu     sync.RWMutex
	items  map[int64]*Item
	order  []int64
	nextID int64
}

// New returns an empty board. The first created item gets id 1.
func New() *Board {
	return &Board{
		items:  make(map[int64]*Item),
		nextID: 1,
	}
}

// FromSnapshot rebuilds a board from persisted state. The id counter is
// seeded from the highest existing id so ids are never reused across
// restarts. The order is repaired to an exact permutation of the item set:
// unknown ids are dropped and missing items are appended at the end, so a
// hand-edited or partially written snapshot cannot wedge the invariant.
func FromSnapshot(items []*Item, order []int64) *Board {
	b := New()
	for _, it := range items {
		cp := it.Clone()
		cp.normalize()
		b.items[cp.ID] = cp
		if cp.ID >= b.nextID {
			b.nextID = cp.ID + 1
		}
	}

	seen := make(map[int64]bool, len(b.items))
	for _, id := range order {
		if _, ok := b.items[id]; ok && !seen[id] {
			b.order = append(b.order, id)
			seen[id] = true
		}
	}
	for _, it := range items {
		if !seen[it.ID] {
			if _, ok := b.items[it.ID]; ok {
				b.order = append(b.order, it.ID)
				seen[it.ID] = true
			}
		}
	}
	return b
}

// Create assigns the next id, applies kind defaults, and appends the item
// to the end of the order. Returns ErrValidation when kind is unknown or
// the title is empty.
func (b *Board) Create(kind Kind, title, body string) (*Item, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	it := &Item{
		ID:    b.nextID,
		Kind:  kind,
		Title: title,
		Body:  body,
	}
	it.normalize()
	b.nextID++
	b.items[it.ID] = it
	b.order = append(b.order, it.ID)
	return it.Clone(), nil
}

// Update applies the non-nil fields of the patch to an existing item and
// returns the updated item. Fields absent from the patch are untouched.
// Returns ErrNotFound if the id is unknown.
func (b *Board) Update(id int64, p Patch) (*Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	it, ok := b.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Body != nil {
		it.Body = *p.Body
	}
	if it.Kind == KindTodo {
		if p.Done != nil {
			done := *p.Done
			it.Done = &done
		}
		if p.Checks != nil {
			it.Checks = append([]bool(nil), p.Checks...)
		}
	}
	it.normalize()
	return it.Clone(), nil
}

// Delete removes the item from the registry and the order index and
// returns the removed item. Returns ErrNotFound if the id is unknown.
func (b *Board) Delete(id int64) (*Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	it, ok := b.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	delete(b.items, id)
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return it, nil
}

// Reorder replaces the order index with newOrder after validating that it
// is exactly a permutation of the current item ids. On ErrInvalidOrder
// nothing changes.
func (b *Board) Reorder(newOrder []int64) ([]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(newOrder) != len(b.items) {
		return nil, fmt.Errorf("%w: got %d ids, board has %d items", ErrInvalidOrder, len(newOrder), len(b.items))
	}
	seen := make(map[int64]bool, len(newOrder))
	for _, id := range newOrder {
		if _, ok := b.items[id]; !ok {
			return nil, fmt.Errorf("%w: unknown id %d", ErrInvalidOrder, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidOrder, id)
		}
		seen[id] = true
	}

	b.order = append([]int64(nil), newOrder...)
	return append([]int64(nil), b.order...), nil
}

// Put inserts or replaces an item that was committed by a peer process.
// New items are appended to the order; the id counter is kept ahead of
// every id seen so locally created items never collide with relayed ones.
func (b *Board) Put(it *Item) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := it.Clone()
	cp.normalize()
	if _, exists := b.items[cp.ID]; !exists {
		b.order = append(b.order, cp.ID)
	}
	b.items[cp.ID] = cp
	if cp.ID >= b.nextID {
		b.nextID = cp.ID + 1
	}
}

// Remove deletes an item that a peer process committed a delete for.
// Unknown ids are a no-op: the item may never have reached this process.
func (b *Board) Remove(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.items[id]; !ok {
		return
	}
	delete(b.items, id)
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// SetOrder adopts an order committed by a peer process, repairing it
// against the local registry the same way FromSnapshot does: ids this
// process has never seen are dropped, and local items the relayed order
// misses keep their current relative position at the end. The permutation
// invariant holds even when the two processes' views have diverged.
func (b *Board) SetOrder(order []int64) []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	repaired := make([]int64, 0, len(b.items))
	seen := make(map[int64]bool, len(b.items))
	for _, id := range order {
		if _, ok := b.items[id]; ok && !seen[id] {
			repaired = append(repaired, id)
			seen[id] = true
		}
	}
	for _, id := range b.order {
		if !seen[id] {
			repaired = append(repaired, id)
			seen[id] = true
		}
	}
	b.order = repaired
	return append([]int64(nil), b.order...)
}

// Get returns a copy of the item with the given id.
func (b *Board) Get(id int64) (*Item, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	it, ok := b.items[id]
	if !ok {
		return nil, false
	}
	return it.Clone(), true
}

// Order returns a copy of the current order index.
func (b *Board) Order() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]int64(nil), b.order...)
}

// Snapshot returns deep copies of all items in display order together with
// the order index. The result is safe to hand to the persistence layer or
// serialize for a client while mutations continue.
func (b *Board) Snapshot() ([]*Item, []int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	items := make([]*Item, 0, len(b.items))
	for _, id := range b.order {
		items = append(items, b.items[id].Clone())
	}
	order := append([]int64(nil), b.order...)
	return items, order
}

// Len returns the number of items on the board.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
