// ABOUTME: Tests for the JSON snapshot store
// ABOUTME: Covers round-trip stability, missing files, corruption fail-open, atomic replace

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/corkboard/internal/board"
)

func testStore(t *testing.T) *SnapshotStore {
	t.Helper()
	return NewSnapshotStore(filepath.Join(t.TempDir(), "board.json"), nil)
}

func sampleSnapshot() *Snapshot {
	done := false
	return &Snapshot{
		Items: []*board.Item{
			{ID: 2, Kind: board.KindTodo, Title: "t", Body: "a\nb", Done: &done, Checks: []bool{true, false}},
			{ID: 1, Kind: board.KindNote, Title: "x", Body: "y"},
		},
		Order: []int64{2, 1},
	}
}

func TestSnapshotStore_LoadMissingFileIsEmpty(t *testing.T) {
	s := testStore(t)

	snap := s.Load()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.Order)
}

func TestSnapshotStore_SaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	want := sampleSnapshot()

	require.NoError(t, s.Save(want))
	got := s.Load()

	assert.Equal(t, want.Items, got.Items)
	assert.Equal(t, want.Order, got.Order)
}

func TestSnapshotStore_ResaveIsByteStable(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(sampleSnapshot()))

	first, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	// save(load()) with no mutation reproduces the identical document.
	require.NoError(t, s.Save(s.Load()))
	second, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSnapshotStore_CorruptFileFailsOpen(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	snap := s.Load()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.Order)
}

func TestSnapshotStore_SaveReplacesAtomically(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(sampleSnapshot()))
	require.NoError(t, s.Save(&Snapshot{Order: []int64{}}))

	// No temp files left behind next to the snapshot.
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(s.Path()), entries[0].Name())
}

func TestSnapshotStore_SaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "board.json")
	s := NewSnapshotStore(path, nil)

	require.NoError(t, s.Save(sampleSnapshot()))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
