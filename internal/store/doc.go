// Package store persists the board as one human-readable JSON document.
//
// Save rewrites the whole file through a temp file and atomic rename, so
// a crash mid-write leaves the previous snapshot intact. Load fails
// open: a missing or corrupt snapshot yields an empty board and a log
// line, never a startup failure.
package store
