package catalog

import (
	"context"
	"time"

	"teleloop/work/filter"
	"teleloop/work/logger"
	"teleloop/work/types"
)

// Query returns the schedulable items of one library that satisfy the filter
// group, evaluated against now for relative date rules.
//
// Movie libraries are flat: the group is applied to every item directly.
// Show libraries evaluate in two phases so episode sets are only fetched for
// shows that can still contribute: the parent-level slice of the group
// (series title, network, content rating) prunes the show list first, then
// the surviving shows' episodes are fetched and the child-level slice is
// applied to them. When the group has no parent-level rules every show
// survives phase one.
func (o *Orchestrator) Query(ctx context.Context, library types.LibraryRef, group types.FilterGroup, now time.Time) ([]types.MediaItem, error) {
	if library.Type != types.KindShow {
		items, err := o.Snapshot(ctx, library, library.Type)
		if err != nil {
			return nil, err
		}
		return applyGroup(items, group, now), nil
	}

	shows, err := o.Snapshot(ctx, library, types.KindShow)
	if err != nil {
		return nil, err
	}

	parent, child := filter.SplitParentChild(group)

	survivors := make([]types.MediaItem, 0, len(shows))
	for i := range shows {
		show := shows[i]
		if show.SeriesTitle == "" {
			// A show is its own series for parent-rule purposes.
			show.SeriesTitle = show.Title
		}
		if filter.Matches(&show, parent, now) {
			survivors = append(survivors, show)
		}
	}
	logger.Debug("{catalog/query - Query} Library %s: %d of %d shows survived parent filtering", library.Key, len(survivors), len(shows))

	var episodes []types.MediaItem
	for i := range survivors {
		eps, err := o.Episodes(ctx, library, survivors[i].ID)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, eps...)
	}

	return applyGroup(episodes, child, now), nil
}

// applyGroup filters a slice through a group without mutating the input.
func applyGroup(items []types.MediaItem, group types.FilterGroup, now time.Time) []types.MediaItem {
	if group.Empty() {
		out := make([]types.MediaItem, len(items))
		copy(out, items)
		return out
	}
	out := make([]types.MediaItem, 0, len(items))
	for i := range items {
		if filter.Matches(&items[i], group, now) {
			out = append(out, items[i])
		}
	}
	return out
}

// BuildChannelMedia assembles the ordered item sequence for a channel: every
// source library is queried with the same group, the union is sorted by the
// descriptor, items without a usable runtime are dropped, and the result is
// truncated to limit when limit is positive. The seed only matters when the
// sort key is random.
func (o *Orchestrator) BuildChannelMedia(ctx context.Context, libraries []types.LibraryRef, group types.FilterGroup, desc types.SortDescriptor, limit int, seed int64) ([]types.MediaItem, error) {
	var combined []types.MediaItem
	for _, library := range libraries {
		items, err := o.Query(ctx, library, group, time.Now())
		if err != nil {
			return nil, err
		}
		combined = append(combined, items...)
	}

	playable := combined[:0]
	for _, item := range combined {
		if item.Duration > 0 {
			playable = append(playable, item)
		}
	}

	Sort(playable, desc, seed)

	if limit > 0 && len(playable) > limit {
		playable = playable[:limit]
	}
	return playable, nil
}
