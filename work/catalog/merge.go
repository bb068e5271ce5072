package catalog

import (
	"teleloop/work/types"
)

// Merge reconciles a refreshed fetch with the previously cached item set.
// Items still present in the new fetch are kept in their cached order but
// carry the freshly fetched data; newly discovered items are appended in
// fetch order; items absent from the new fetch are dropped. Keeping the
// cached ordering for survivors means enrichment already done on the
// currently displayed set is not shuffled away, while the result stays
// eventually consistent with the source.
func Merge(existing, fresh []types.MediaItem) []types.MediaItem {
	freshByID := make(map[string]types.MediaItem, len(fresh))
	for _, item := range fresh {
		freshByID[item.ID] = item
	}

	merged := make([]types.MediaItem, 0, len(fresh))
	kept := make(map[string]bool, len(existing))
	for _, item := range existing {
		if updated, ok := freshByID[item.ID]; ok {
			merged = append(merged, updated)
			kept[item.ID] = true
		}
	}
	for _, item := range fresh {
		if !kept[item.ID] {
			merged = append(merged, item)
		}
	}
	return merged
}
