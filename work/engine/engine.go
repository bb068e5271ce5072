// Package engine is the application core: it owns the channel registry,
// coordinates the catalog orchestrator, stream planner, and recovery
// controller, and exposes the operations the HTTP surface calls. All
// channel state lives in a concurrent map backed by the SQLite database;
// playback position is always derived, never stored.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"teleloop/work/catalog"
	"teleloop/work/client"
	"teleloop/work/config"
	"teleloop/work/database"
	"teleloop/work/logger"
	"teleloop/work/planner"
	"teleloop/work/recovery"
	"teleloop/work/schedule"
	"teleloop/work/types"
)

// Engine wires the channel registry to the subsystems behind it.
type Engine struct {
	Config       *config.Config
	Channels     *xsync.MapOf[string, *types.Channel]
	Orchestrator *catalog.Orchestrator
	Planner      *planner.Planner
	Recovery     *recovery.Manager
	Client       *client.MediaClient
	DB           *database.DB // nil when persistence is disabled
}

// New assembles an engine and hydrates the channel registry from the
// database when one is supplied.
func New(cfg *config.Config, orch *catalog.Orchestrator, pl *planner.Planner, rec *recovery.Manager, mc *client.MediaClient, db *database.DB) (*Engine, error) {
	e := &Engine{
		Config:       cfg,
		Channels:     xsync.NewMapOf[string, *types.Channel](),
		Orchestrator: orch,
		Planner:      pl,
		Recovery:     rec,
		Client:       mc,
		DB:           db,
	}

	if db != nil {
		stored, err := db.LoadChannels()
		if err != nil {
			return nil, err
		}
		for id, ch := range stored {
			e.Channels.Store(id, ch)
		}
		logger.Info("{engine/engine - New} Restored %d channels from the database", len(stored))
	}
	return e, nil
}

// BuildChannel assembles a channel from a build request, persists it, and
// adds it to the live registry.
func (e *Engine) BuildChannel(ctx context.Context, req catalog.ChannelRequest) (*types.Channel, error) {
	ch, err := e.Orchestrator.BuildChannel(ctx, req)
	if err != nil {
		return nil, err
	}

	if e.DB != nil {
		if err := e.DB.SaveChannel(&ch); err != nil {
			return nil, err
		}
	}
	e.Channels.Store(ch.ID, &ch)
	return &ch, nil
}

// DeleteChannel removes a channel from the registry and the database.
// Deleting an unknown id reports false with no error.
func (e *Engine) DeleteChannel(id string) (bool, error) {
	_, existed := e.Channels.LoadAndDelete(id)
	if e.DB != nil {
		if err := e.DB.DeleteChannel(id); err != nil {
			return existed, err
		}
	}
	return existed, nil
}

// Channel returns one channel by id.
func (e *Engine) Channel(id string) (*types.Channel, bool) {
	return e.Channels.Load(id)
}

// Lineup returns all channels sorted by name. The slice holds the live
// channel pointers; callers treat channels as read-only.
func (e *Engine) Lineup() []*types.Channel {
	lineup := make([]*types.Channel, 0, e.Channels.Size())
	e.Channels.Range(func(_ string, ch *types.Channel) bool {
		lineup = append(lineup, ch)
		return true
	})
	sort.Slice(lineup, func(i, j int) bool { return lineup[i].Name < lineup[j].Name })
	return lineup
}

// NowPlaying derives the playback position of a channel at an instant.
func (e *Engine) NowPlaying(id string, at time.Time) (schedule.Position, bool) {
	ch, ok := e.Channels.Load(id)
	if !ok {
		return schedule.Position{}, false
	}
	return schedule.PlaybackPosition(ch, at)
}

// PlanForChannel resolves a stream plan for what a channel is playing at an
// instant: the active item at its derived offset. The recovery controller
// starts tracking the attempt before the plan is returned.
func (e *Engine) PlanForChannel(ctx context.Context, id string, at time.Time, opts types.PlanOptions) (types.StreamPlan, schedule.Position, error) {
	pos, ok := e.NowPlaying(id, at)
	if !ok {
		return types.StreamPlan{}, schedule.Position{}, types.NewError(types.ErrBadResponse, "channel %s has no playable schedule", id)
	}

	plan, err := e.Planner.ResolvePlan(ctx, pos.Item.ID, pos.Offset, opts)
	if err != nil {
		return types.StreamPlan{}, pos, err
	}
	e.Recovery.Start(pos.Item.ID, plan)
	return plan, pos, nil
}

// PlanForItem resolves a stream plan for one item at an explicit offset,
// outside any channel schedule.
func (e *Engine) PlanForItem(ctx context.Context, itemID string, offset float64, opts types.PlanOptions) (types.StreamPlan, error) {
	plan, err := e.Planner.ResolvePlan(ctx, itemID, offset, opts)
	if err != nil {
		return types.StreamPlan{}, err
	}
	e.Recovery.Start(itemID, plan)
	return plan, nil
}

// Telemetry feeds a playback telemetry event through the recovery
// controller, returning the replacement plan when one was resolved. Progress
// events are also forwarded upstream as timeline reports so the server's
// watch-state bookkeeping tracks what the channels actually played.
func (e *Engine) Telemetry(ctx context.Context, ev types.TelemetryEvent) (types.StreamPlan, bool, error) {
	if ev.Kind == types.TelemetryProgress && e.Client != nil {
		e.Client.ReportTimeline(ev.SessionID, ev.ItemID, ev.Position, "playing", e.itemDuration(ev.ItemID))
	}
	return e.Recovery.OnTelemetry(ctx, ev)
}

// itemDuration looks up an item's runtime across the channel registry, zero
// when the item is not in any lineup.
func (e *Engine) itemDuration(itemID string) float64 {
	var duration float64
	e.Channels.Range(func(_ string, ch *types.Channel) bool {
		for i := range ch.Items {
			if ch.Items[i].ID == itemID {
				duration = ch.Items[i].Duration
				return false
			}
		}
		return true
	})
	return duration
}
