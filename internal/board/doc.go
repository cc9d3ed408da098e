// Package board holds the authoritative in-memory state of the shared
// board: the item registry and the order index.
//
// The Board is owned by a single server process. Mutations (Create,
// Update, Delete, Reorder) are atomic; a failed operation never leaves
// partial state behind. The order index is always an exact permutation of
// the registered item ids, and callers only ever see copies of items so
// committed state cannot be mutated from outside.
//
// Persistence and broadcast are deliberately not this package's job: the
// server applies a mutation here, then announces it and schedules a
// snapshot write.
package board
