// ABOUTME: Item model for board entries (notes, todo lists, media references)
// ABOUTME: Normalizes todo check lists against the body line count

package board

import "strings"

// Kind identifies the type of a board item. Kind is immutable once assigned.
type Kind string

// Item kinds. Media kinds store their URL in the item body.
const (
	KindNote  Kind = "note"
	KindTodo  Kind = "todo"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Valid reports whether k is a known item kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNote, KindTodo, KindImage, KindVideo:
		return true
	}
	return false
}

// Item is a single board entry. IDs are assigned by the Board, strictly
// increasing, and never reused. For todo items the body is a
// newline-delimited list of line items; Checks is the parallel checked
// state and Done marks the whole list complete. Both are nil for other
// kinds.
type Item struct {
	ID     int64  `json:"id"`
	Kind   Kind   `json:"kind"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Done   *bool  `json:"done,omitempty"`
	Checks []bool `json:"checks,omitempty"`
}

// Patch carries a partial update. Nil fields are left untouched.
// Done and Checks only apply to todo items and are ignored for other kinds.
type Patch struct {
	Title  *string `json:"title,omitempty"`
	Body   *string `json:"body,omitempty"`
	Done   *bool   `json:"done,omitempty"`
	Checks []bool  `json:"checks,omitempty"`
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	cp := *it
	if it.Done != nil {
		done := *it.Done
		cp.Done = &done
	}
	if it.Checks != nil {
		cp.Checks = append([]bool(nil), it.Checks...)
	}
	return &cp
}

// lineCount returns the number of todo line items in a body.
// An empty body has no line items.
func lineCount(body string) int {
	if body == "" {
		return 0
	}
	return strings.Count(body, "\n") + 1
}

// normalize enforces the kind-specific shape invariants:
// todo items always carry a done flag and a checks list exactly as long as
// the body has lines (missing entries default to unchecked); all other
// kinds carry neither.
func (it *Item) normalize() {
	if it.Kind != KindTodo {
		it.Done = nil
		it.Checks = nil
		return
	}
	if it.Done == nil {
		done := false
		it.Done = &done
	}
	n := lineCount(it.Body)
	switch {
	case len(it.Checks) > n:
		it.Checks = it.Checks[:n]
	case len(it.Checks) < n:
		checks := make([]bool, n)
		copy(checks, it.Checks)
		it.Checks = checks
	}
}
