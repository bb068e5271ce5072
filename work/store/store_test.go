package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teleloop/work/store"
	"teleloop/work/types"
)

func TestStore_Roundtrip(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	fetchedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	added := time.Date(2025, 12, 24, 18, 30, 0, 0, time.UTC)
	items := []types.MediaItem{
		{ID: "m1", Title: "First", Duration: 100, Genres: []string{"Drama"}, AiredAt: added, AddedAt: added},
		{ID: "m2", Title: "Second", Duration: 200, Year: 2011, AiredAt: added, AddedAt: added},
	}

	require.NoError(t, s.Save("lib1|movie", items, fetchedAt))

	env, ok, err := s.Load("lib1|movie")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, items, env.Items)
	assert.Equal(t, 2, env.ItemCount)
	assert.True(t, env.FetchedAt.Equal(fetchedAt))
	assert.Equal(t, "lib1|movie", env.Key)
}

func TestStore_MissingKey(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Load("never-saved")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CorruptFileIsAMiss(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save("lib1|movie", []types.MediaItem{{ID: "m1"}}, time.Now()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, entries[0].Name()), []byte("not gzip"), 0644))

	_, ok, err := s.Load("lib1|movie")
	require.NoError(t, err, "corruption is a cache miss, not an error")
	assert.False(t, ok)
}

func TestStore_DeleteAndKeys(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save("a", nil, time.Now()))
	require.NoError(t, s.Save("b", nil, time.Now()))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, s.Delete("a"))
	_, ok, err := s.Load("a")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete("a"), "deleting a missing key is a no-op")
}

func TestStore_OverwriteReplacesSnapshot(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save("k", []types.MediaItem{{ID: "old"}}, time.Now()))
	require.NoError(t, s.Save("k", []types.MediaItem{{ID: "new1"}, {ID: "new2"}}, time.Now()))

	env, ok, err := s.Load("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, env.Items, 2)
	assert.Equal(t, "new1", env.Items[0].ID)
}
