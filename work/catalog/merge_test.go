package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teleloop/work/types"
)

func items(ids ...string) []types.MediaItem {
	out := make([]types.MediaItem, len(ids))
	for i, id := range ids {
		out[i] = types.MediaItem{ID: id, Title: "Title " + id}
	}
	return out
}

func ids(in []types.MediaItem) []string {
	out := make([]string, len(in))
	for i := range in {
		out[i] = in[i].ID
	}
	return out
}

func TestMerge_DropsKeepsAppends(t *testing.T) {
	merged := Merge(items("A", "B", "C"), items("B", "C", "D"))
	assert.Equal(t, []string{"B", "C", "D"}, ids(merged), "A dropped, survivors keep cached order, D appended")
}

func TestMerge_SurvivorsCarryFreshData(t *testing.T) {
	existing := []types.MediaItem{{ID: "A", Title: "Stale Title", ViewCount: 1}}
	fresh := []types.MediaItem{{ID: "A", Title: "Fresh Title", ViewCount: 4}}

	merged := Merge(existing, fresh)
	require.Len(t, merged, 1)
	assert.Equal(t, "Fresh Title", merged[0].Title)
	assert.Equal(t, 4, merged[0].ViewCount)
}

func TestMerge_CachedOrderSurvivesReorderedFetch(t *testing.T) {
	merged := Merge(items("A", "B", "C"), items("C", "A", "B"))
	assert.Equal(t, []string{"A", "B", "C"}, ids(merged))
}

func TestMerge_EmptySides(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, ids(Merge(nil, items("A", "B"))), "first fetch keeps fetch order")
	assert.Empty(t, Merge(items("A", "B"), nil), "an empty fetch empties the snapshot")
}
