package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"teleloop/work/types"
)

func TestSort_TitleStripsLeadingArticles(t *testing.T) {
	list := []types.MediaItem{
		{ID: "1", Title: "The Zebra"},
		{ID: "2", Title: "An Apple"},
		{ID: "3", Title: "Banana"},
		{ID: "4", Title: "A Cat"},
	}
	Sort(list, types.SortDescriptor{Key: types.SortTitle}, 0)
	assert.Equal(t, []string{"An Apple", "Banana", "A Cat", "The Zebra"}, titles(list))
}

func TestSort_Descending(t *testing.T) {
	list := []types.MediaItem{
		{Title: "Old", Year: 1970},
		{Title: "New", Year: 2020},
		{Title: "Mid", Year: 1995},
	}
	Sort(list, types.SortDescriptor{Key: types.SortYear, Descending: true}, 0)
	assert.Equal(t, []string{"New", "Mid", "Old"}, titles(list))
}

func TestSort_MissingValuesGroupTogether(t *testing.T) {
	list := []types.MediaItem{
		{Title: "Rated", Rating: 8.1},
		{Title: "Unrated A"},
		{Title: "Also Rated", Rating: 6.4},
		{Title: "Unrated B"},
	}
	Sort(list, types.SortDescriptor{Key: types.SortRating}, 0)
	// Zero ratings sort first, tie-broken by title.
	assert.Equal(t, []string{"Unrated A", "Unrated B", "Also Rated", "Rated"}, titles(list))
}

func TestSort_DateKeysWithAbsentDates(t *testing.T) {
	added := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []types.MediaItem{
		{Title: "Dated", AddedAt: added},
		{Title: "Undated"},
	}
	Sort(list, types.SortDescriptor{Key: types.SortAddedAt}, 0)
	assert.Equal(t, []string{"Undated", "Dated"}, titles(list), "zero time sorts before any real date")
}

func TestSort_TiesFallBackToTitle(t *testing.T) {
	list := []types.MediaItem{
		{Title: "The Beta", Year: 2000},
		{Title: "Alpha", Year: 2000},
	}
	Sort(list, types.SortDescriptor{Key: types.SortYear}, 0)
	assert.Equal(t, []string{"Alpha", "The Beta"}, titles(list))
}

func TestSort_RandomIsSeedDeterministic(t *testing.T) {
	build := func() []types.MediaItem {
		return items("A", "B", "C", "D", "E", "F", "G", "H")
	}

	first := build()
	Sort(first, types.SortDescriptor{Key: types.SortRandom}, 42)
	second := build()
	Sort(second, types.SortDescriptor{Key: types.SortRandom}, 42)
	assert.Equal(t, ids(first), ids(second), "same seed, same permutation")

	third := build()
	Sort(third, types.SortDescriptor{Key: types.SortRandom, Descending: true}, 42)
	assert.Equal(t, ids(first), ids(third), "random ignores direction")
}

func titles(in []types.MediaItem) []string {
	out := make([]string, len(in))
	for i := range in {
		out[i] = in[i].Title
	}
	return out
}
