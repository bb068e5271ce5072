package catalog

import (
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/grafana/regexp"

	"teleloop/work/types"
)

// leadingArticleRx strips English articles so "The Wire" files under W.
var leadingArticleRx = regexp.MustCompile(`^(?i)(the|a|an)\s+`)

// sortTitle returns the lowercase, article-stripped form used for
// title ordering and as the tie-break for every other sort key.
func sortTitle(title string) string {
	return strings.ToLower(leadingArticleRx.ReplaceAllString(title, ""))
}

// Sort orders items in place by the given descriptor. Items missing the
// sorted attribute collapse to a zero value and therefore group together
// at one end; ties fall back to sort title so the ordering is stable
// across refreshes. The random key ignores the Descending flag and
// shuffles with the supplied seed, so the same seed always produces the
// same permutation.
func Sort(items []types.MediaItem, desc types.SortDescriptor, seed int64) {
	if desc.Key == types.SortRandom {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})
		return
	}

	less := lessFunc(desc.Key)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if desc.Descending {
			a, b = b, a
		}
		if cmp := less(a, b); cmp != 0 {
			return cmp < 0
		}
		return sortTitle(a.Title) < sortTitle(b.Title)
	})
}

// lessFunc returns a three-way comparison for the sort key.
func lessFunc(key types.SortKey) func(a, b types.MediaItem) int {
	switch key {
	case types.SortYear:
		return func(a, b types.MediaItem) int { return compareInt(a.Year, b.Year) }
	case types.SortRating:
		return func(a, b types.MediaItem) int { return compareFloat(a.Rating, b.Rating) }
	case types.SortAddedAt:
		return func(a, b types.MediaItem) int { return compareTime(a.AddedAt, b.AddedAt) }
	case types.SortAirDate:
		return func(a, b types.MediaItem) int { return compareTime(a.AiredAt, b.AiredAt) }
	case types.SortViewCount:
		return func(a, b types.MediaItem) int { return compareInt(a.ViewCount, b.ViewCount) }
	case types.SortSeriesTitle:
		return func(a, b types.MediaItem) int {
			return strings.Compare(sortTitle(a.SeriesTitle), sortTitle(b.SeriesTitle))
		}
	default:
		return func(a, b types.MediaItem) int {
			return strings.Compare(sortTitle(a.Title), sortTitle(b.Title))
		}
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
