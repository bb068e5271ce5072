package catalog

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"teleloop/work/logger"
	"teleloop/work/types"
)

// ChannelRequest carries everything needed to assemble a new channel. Sort
// falls back to the configured default when its key is empty; Limit of zero
// means unbounded.
type ChannelRequest struct {
	Name      string               `json:"name"`
	Libraries []types.LibraryRef   `json:"libraries"`
	Filter    types.FilterGroup    `json:"filter"`
	Sort      types.SortDescriptor `json:"sort"`
	Limit     int                  `json:"limit,omitempty"`
	Options   types.ChannelOptions `json:"options,omitempty"`
}

// BuildChannel resolves a request into a complete looping channel: the item
// sequence is assembled through the query path, the schedule anchor is fixed
// at build time, and the filter summary is recorded as provenance. The
// channel id seeds both the random sort key and the shuffle option, so
// rebuilding an existing channel with the same id reproduces its order.
func (o *Orchestrator) BuildChannel(ctx context.Context, req ChannelRequest) (types.Channel, error) {
	if req.Name == "" {
		return types.Channel{}, types.NewError(types.ErrBadResponse, "channel name is required")
	}
	if len(req.Libraries) == 0 {
		return types.Channel{}, types.NewError(types.ErrBadResponse, "channel needs at least one source library")
	}

	sortDesc := req.Sort
	if sortDesc.Key == "" {
		sortDesc = types.SortDescriptor{Key: types.SortKey(o.cfg.DefaultSortKey), Descending: o.cfg.DefaultSortDesc}
	}

	id := uuid.NewString()
	seed := seedFromID(id)

	items, err := o.BuildChannelMedia(ctx, req.Libraries, req.Filter, sortDesc, req.Limit, seed)
	if err != nil {
		return types.Channel{}, fmt.Errorf("failed to assemble media for channel %q: %w", req.Name, err)
	}
	if len(items) == 0 {
		return types.Channel{}, types.NewError(types.ErrBadResponse, "channel %q matched no playable items", req.Name)
	}

	if req.Options.Shuffle && sortDesc.Key != types.SortRandom {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})
	}

	sourceKeys := make([]string, 0, len(req.Libraries))
	for _, library := range req.Libraries {
		sourceKeys = append(sourceKeys, library.Key)
	}

	now := time.Now()
	ch := types.Channel{
		ID:              id,
		Name:            req.Name,
		LibraryKey:      req.Libraries[0].Key,
		LibraryType:     req.Libraries[0].Type,
		CreatedAt:       now,
		Anchor:          now,
		Items:           items,
		SourceLibraries: sourceKeys,
		Options:         req.Options,
		Provenance:      req.Filter.Summary(),
	}
	logger.Info("{catalog/channel - BuildChannel} Built channel %q (%s) with %d items, loop %.0fs", ch.Name, ch.ID, len(ch.Items), ch.TotalDuration())
	return ch, nil
}

// seedFromID derives a stable shuffle seed from a channel id.
func seedFromID(id string) int64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return int64(h.Sum64())
}
