package database_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teleloop/work/database"
	"teleloop/work/types"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleChannel(id, name string) *types.Channel {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Channel{
		ID:          id,
		Name:        name,
		LibraryKey:  "movies",
		LibraryType: types.KindMovie,
		CreatedAt:   now,
		Anchor:      now,
		Items: []types.MediaItem{
			{ID: "m1", Title: "First", Duration: 5400, Kind: types.KindMovie},
			{ID: "m2", Title: "Second", Duration: 6200, Kind: types.KindMovie},
		},
		SourceLibraries: []string{"movies"},
		Options:         types.ChannelOptions{Shuffle: true},
		Provenance:      "year >= 2000",
	}
}

func TestSaveAndLoadChannel(t *testing.T) {
	db := openTestDB(t)
	ch := sampleChannel("ch-1", "Movie Night")
	require.NoError(t, db.SaveChannel(ch))

	got, found, err := db.LoadChannel("ch-1")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, ch.Name, got.Name)
	assert.Equal(t, ch.LibraryKey, got.LibraryKey)
	assert.Equal(t, ch.LibraryType, got.LibraryType)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "m1", got.Items[0].ID)
	assert.Equal(t, "First", got.Items[0].Title)
	assert.InDelta(t, 5400, got.Items[0].Duration, 1e-9)
	assert.Equal(t, "m2", got.Items[1].ID)
	assert.Equal(t, ch.SourceLibraries, got.SourceLibraries)
	assert.Equal(t, ch.Options, got.Options)
	assert.Equal(t, ch.Provenance, got.Provenance)
	assert.WithinDuration(t, ch.Anchor, got.Anchor, time.Second)
}

func TestLoadChannel_Missing(t *testing.T) {
	db := openTestDB(t)

	got, found, err := db.LoadChannel("nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestSaveChannel_Upsert(t *testing.T) {
	db := openTestDB(t)
	ch := sampleChannel("ch-1", "Before")
	require.NoError(t, db.SaveChannel(ch))

	ch.Name = "After"
	ch.Items = ch.Items[:1]
	require.NoError(t, db.SaveChannel(ch))

	got, found, err := db.LoadChannel("ch-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "After", got.Name)
	assert.Len(t, got.Items, 1)

	all, err := db.LoadChannels()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLoadChannels(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveChannel(sampleChannel("ch-1", "Alpha")))
	require.NoError(t, db.SaveChannel(sampleChannel("ch-2", "Beta")))

	all, err := db.LoadChannels()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Alpha", all["ch-1"].Name)
	assert.Equal(t, "Beta", all["ch-2"].Name)
}

func TestDeleteChannel(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveChannel(sampleChannel("ch-1", "Doomed")))

	require.NoError(t, db.DeleteChannel("ch-1"))
	_, found, err := db.LoadChannel("ch-1")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting again is a no-op.
	require.NoError(t, db.DeleteChannel("ch-1"))
}

func TestOpen_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.db")

	db, err := database.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveChannel(sampleChannel("ch-1", "Persistent")))
	require.NoError(t, db.Close())

	// Migrations are recorded, so reopening neither reruns them nor loses data.
	db, err = database.Open(path)
	require.NoError(t, err)
	defer db.Close()

	all, err := db.LoadChannels()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
