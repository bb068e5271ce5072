// Package schedule derives "what is playing now" for a channel from nothing
// but the channel value and an instant. There is no state and no I/O: the
// playback position is a pure function of elapsed wall-clock time since the
// channel's anchor, reduced modulo the loop duration. Recomputation is O(items)
// and assumed cheap for per-channel item counts in the tens to low thousands.
package schedule

import (
	"math"
	"time"

	"teleloop/work/types"
)

// Position describes the active slot of a channel at some instant: the index
// and item playing, the offset into it, and the item that plays next.
type Position struct {
	Index  int             // Index of the active item within the channel's playlist
	Item   types.MediaItem // The item playing at the queried instant
	Offset float64         // Seconds into the active item
	NextUp types.MediaItem // The item that follows, wrapping to the first after the last
}

// PlaybackPosition computes the channel's active item and offset at the given
// instant. The second return is false when the channel has no defined
// schedule: an empty playlist or a non-positive total duration. That is an
// expected transient state (a channel just created with no items yet), not an
// error.
//
// Instants before the anchor clamp to elapsed zero, so the schedule is
// defined for every instant >= anchor and degrades gracefully before it.
func PlaybackPosition(ch *types.Channel, at time.Time) (Position, bool) {
	if len(ch.Items) == 0 {
		return Position{}, false
	}
	total := ch.TotalDuration()
	if total <= 0 {
		return Position{}, false
	}

	elapsed := at.Sub(ch.Anchor).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	// Reduce to a position within a single loop.
	pos := math.Mod(elapsed, total)

	for i := range ch.Items {
		d := ch.Items[i].Duration
		if d <= 0 {
			continue
		}
		if pos < d {
			return Position{
				Index:  i,
				Item:   ch.Items[i],
				Offset: pos,
				NextUp: ch.Items[(i+1)%len(ch.Items)],
			}, true
		}
		pos -= d
	}

	// Floating-point drift can in principle leave pos just past the final
	// item's duration; the modulo bound makes this unreachable in practice.
	// Fall back to the last item at offset 0 rather than reporting no
	// schedule.
	last := len(ch.Items) - 1
	return Position{
		Index:  last,
		Item:   ch.Items[last],
		Offset: 0,
		NextUp: ch.Items[0],
	}, true
}

// NextUp returns the item scheduled after the one active at the given
// instant. The index wraps, so the item after the last is the first; it never
// fails for any channel that has a defined schedule.
func NextUp(ch *types.Channel, at time.Time) (types.MediaItem, bool) {
	pos, ok := PlaybackPosition(ch, at)
	if !ok {
		return types.MediaItem{}, false
	}
	return pos.NextUp, true
}
