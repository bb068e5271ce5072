// Package recovery is the adaptive playback recovery controller. It tracks
// one mutable state record per active playback attempt, consumes telemetry
// from the playback surface, and when a stall or sustained throughput
// shortfall warrants it, walks a bitrate ladder downward by re-resolving the
// stream plan at a reduced cap. Escalation is one-way within an attempt:
// once a downshift or forced transcode happens the attempt never climbs back
// up; a fresh attempt starts clean.
package recovery

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"teleloop/work/config"
	"teleloop/work/logger"
	"teleloop/work/metrics"
	"teleloop/work/types"
)

// Replanner resolves a replacement stream plan during recovery. Satisfied by
// the planner.
type Replanner interface {
	ResolvePlan(ctx context.Context, itemID string, offset float64, opts types.PlanOptions) (types.StreamPlan, error)
}

// SessionStopper tears down an abandoned transcoder session, best effort.
// Satisfied by the media client.
type SessionStopper interface {
	StopSession(sessionID string)
}

// errAbandoned marks a replan whose attempt ended mid-flight; the caller
// reports no action rather than an error.
var errAbandoned = errors.New("attempt abandoned during replan")

// attempt is the tracked state of one active playback attempt. All fields are
// guarded by mu; telemetry for one item is effectively serialized. ctx is
// canceled when the attempt is replaced or stopped, aborting any in-flight
// replanning for it.
type attempt struct {
	mu     sync.Mutex
	plan   types.StreamPlan
	state  types.AdaptiveState
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager owns the per-attempt recovery state across all active playbacks.
// Attempts are keyed by item id: a player switching items starts a fresh
// attempt and implicitly abandons the old one.
type Manager struct {
	cfg      *config.Config
	planner  Replanner
	stopper  SessionStopper
	attempts *xsync.MapOf[string, *attempt]
}

// NewManager wires a recovery manager. The stopper may be nil when session
// teardown is unavailable.
func NewManager(cfg *config.Config, planner Replanner, stopper SessionStopper) *Manager {
	return &Manager{
		cfg:      cfg,
		planner:  planner,
		stopper:  stopper,
		attempts: xsync.NewMapOf[string, *attempt](),
	}
}

// Start registers a new playback attempt for an item, replacing and tearing
// down any previous attempt for the same item. The initial cap comes from
// the plan's negotiated bitrate, falling back to the configured ceiling for
// passthrough and stream-copy plans that carry no cap of their own.
func (m *Manager) Start(itemID string, plan types.StreamPlan) {
	cap := plan.VideoBitrateKbps
	if cap <= 0 {
		cap = m.cfg.Playback.MaxBitrateKbps
	}

	ctx, cancel := context.WithCancel(context.Background())
	next := &attempt{
		plan: plan,
		state: types.AdaptiveState{
			CapKbps:   cap,
			StartedAt: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
	prev, loaded := m.attempts.LoadAndStore(itemID, next)
	if loaded {
		m.teardown(prev)
	} else {
		metrics.ActiveSessions.Inc()
	}
	logger.Debug("{recovery/recovery - Start} Tracking attempt for %s, mode %s, cap %d kbps", itemID, plan.Mode, cap)
}

// Stop abandons the attempt for an item, tearing down its session.
func (m *Manager) Stop(itemID string) {
	if prev, loaded := m.attempts.LoadAndDelete(itemID); loaded {
		m.teardown(prev)
		metrics.ActiveSessions.Dec()
	}
}

// teardown abandons an attempt: any replanning still in flight for it is
// canceled first so its lock frees promptly, then the server-side session is
// released.
func (m *Manager) teardown(a *attempt) {
	a.cancel()
	a.mu.Lock()
	sessionID := a.plan.SessionID
	a.mu.Unlock()
	if sessionID != "" && m.stopper != nil {
		m.stopper.StopSession(sessionID)
	}
}

// OnTelemetry feeds one telemetry event into the controller. When the event
// triggers a recovery, the replacement plan is returned with replanned true
// and the attempt's tracked plan is swapped to it; otherwise the zero plan
// and false. An ErrRecoveryExhausted error means the ladder hit its floor
// and the attempt is abandoned.
func (m *Manager) OnTelemetry(ctx context.Context, ev types.TelemetryEvent) (types.StreamPlan, bool, error) {
	a, ok := m.attempts.Load(ev.ItemID)
	if !ok {
		return types.StreamPlan{}, false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ctx.Err() != nil {
		// The attempt was replaced or stopped while this event waited.
		return types.StreamPlan{}, false, nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	trigger, ok := m.evaluate(a, ev, at)
	if !ok {
		return types.StreamPlan{}, false, nil
	}

	plan, err := m.recover(ctx, a, ev, at, trigger)
	if errors.Is(err, errAbandoned) {
		return types.StreamPlan{}, false, nil
	}
	if err != nil {
		return types.StreamPlan{}, false, err
	}
	return plan, true, nil
}

// evaluate decides whether an event warrants recovery, returning the trigger
// label for metrics. Cooldown is enforced here so a burst of bad samples
// right after a recovery does not cascade down the whole ladder.
func (m *Manager) evaluate(a *attempt, ev types.TelemetryEvent, at time.Time) (string, bool) {
	rc := &m.cfg.Recovery

	switch ev.Kind {
	case types.TelemetryProgress:
		// Healthy ground truth: the player is moving. Any open shortfall
		// window is stale.
		a.state.LowThroughputSince = time.Time{}
		return "", false

	case types.TelemetryStall:
		if at.Sub(a.state.StartedAt) > rc.LateStallCutoff {
			// Stalls deep into an attempt are seeks, track switches, or the
			// session's natural end, not delivery problems.
			logger.Debug("{recovery/recovery - evaluate} Ignoring late stall for %s after %s of playback", ev.ItemID, at.Sub(a.state.StartedAt))
			return "", false
		}
		if !m.cooledDown(a, at) {
			return "", false
		}
		return "stall", true

	case types.TelemetryThroughput:
		indicated := ev.IndicatedKbps
		if indicated <= 0 {
			indicated = a.plan.IndicatedKbps
		}
		if indicated <= 0 || ev.ObservedKbps <= 0 {
			return "", false
		}
		if float64(ev.ObservedKbps) >= rc.ThroughputRatio*float64(indicated) {
			a.state.LowThroughputSince = time.Time{}
			return "", false
		}
		// Shortfall sample: open or extend the window, trigger only once it
		// has persisted long enough.
		if a.state.LowThroughputSince.IsZero() {
			a.state.LowThroughputSince = at
			return "", false
		}
		if at.Sub(a.state.LowThroughputSince) < rc.ThroughputWindow {
			return "", false
		}
		if !m.cooledDown(a, at) {
			return "", false
		}
		return "throughput", true
	}

	return "", false
}

// cooledDown reports whether enough time has passed since the last recovery.
func (m *Manager) cooledDown(a *attempt, at time.Time) bool {
	last := a.state.LastRecovery
	return last.IsZero() || at.Sub(last) >= m.cfg.Recovery.Cooldown
}

// recover performs one ladder step: compute the next cap and mode, resolve a
// replacement plan resuming from the reported position, and swap the
// attempt's tracked state to it.
//
// Ladder shape: a stream-copy plan escalates straight to forced transcode at
// the configured fixed cap, since copying is all-or-nothing and a lower cap
// means nothing without a re-encode. A transcoding plan reduces its cap by
// the first-reduction fraction once and the later-reduction fraction after
// that; exhausting the configured downshift budget forces transcode for the
// rest of the attempt. A cap that lands below the configured floor ends the
// attempt with ErrRecoveryExhausted.
func (m *Manager) recover(ctx context.Context, a *attempt, ev types.TelemetryEvent, at time.Time, trigger string) (types.StreamPlan, error) {
	rc := &m.cfg.Recovery
	state := &a.state

	forced := state.ForcedTranscode
	nextCap := state.CapKbps

	switch {
	case a.plan.DirectStream && !forced:
		forced = true
		nextCap = rc.ForcedTranscodeKbps

	case state.Downshifts == 0:
		nextCap = int(math.Round(float64(state.CapKbps) * (1 - rc.FirstReduction)))

	default:
		nextCap = int(math.Round(float64(state.CapKbps) * (1 - rc.LaterReduction)))
	}

	downshifts := state.Downshifts + 1
	if downshifts > rc.MaxDownshifts {
		forced = true
	}

	if nextCap < m.cfg.Playback.MinBitrateKbps {
		metrics.RecoveryOutcomes.WithLabelValues("exhausted").Inc()
		m.attempts.Delete(ev.ItemID)
		a.cancel()
		metrics.ActiveSessions.Dec()
		if m.stopper != nil && a.plan.SessionID != "" {
			m.stopper.StopSession(a.plan.SessionID)
		}
		return types.StreamPlan{}, types.NewError(types.ErrRecoveryExhausted, "cap %d kbps below floor %d for %s", nextCap, m.cfg.Playback.MinBitrateKbps, ev.ItemID)
	}

	opts := types.PlanOptions{
		MaxBitrateKbps: nextCap,
		ForceTranscode: forced,
		NewSession:     true,
	}

	// The replan honors both the caller's deadline and the attempt's own
	// lifetime: an item switch cancels it mid-flight.
	planCtx, cancelPlan := context.WithCancel(ctx)
	defer cancelPlan()
	detach := context.AfterFunc(a.ctx, cancelPlan)
	defer detach()

	plan, err := m.planner.ResolvePlan(planCtx, ev.ItemID, ev.Position, opts)
	if err != nil {
		metrics.RecoveryOutcomes.WithLabelValues("replan_failed").Inc()
		return types.StreamPlan{}, err
	}

	// The attempt may have been replaced or stopped while the replan ran. A
	// plan adopted now would orphan its fresh transcoder session and mutate a
	// record nothing owns, so release the session and walk away instead.
	if current, registered := m.attempts.Load(ev.ItemID); !registered || current != a || a.ctx.Err() != nil {
		if plan.SessionID != "" && m.stopper != nil {
			m.stopper.StopSession(plan.SessionID)
		}
		metrics.RecoveryOutcomes.WithLabelValues("abandoned").Inc()
		logger.Debug("{recovery/recovery - recover} Attempt for %s ended during replan, releasing session %s", ev.ItemID, plan.SessionID)
		return types.StreamPlan{}, errAbandoned
	}

	oldSession := a.plan.SessionID
	if oldSession != "" && oldSession != plan.SessionID && m.stopper != nil {
		m.stopper.StopSession(oldSession)
	}

	logger.Info("{recovery/recovery - recover} Recovery %d for %s (%s): cap %d -> %d kbps, forced transcode %t, resuming at %.1fs", downshifts, ev.ItemID, trigger, state.CapKbps, nextCap, forced, ev.Position)

	a.plan = plan
	state.CapKbps = nextCap
	state.Downshifts = downshifts
	state.ForcedTranscode = forced
	state.LastRecovery = at
	state.LowThroughputSince = time.Time{}

	metrics.Downshifts.WithLabelValues(trigger).Inc()
	metrics.RecoveryOutcomes.WithLabelValues("downshift").Inc()
	return plan, nil
}

// State returns a copy of the tracked state for an item, primarily for
// diagnostics and tests.
func (m *Manager) State(itemID string) (types.AdaptiveState, bool) {
	a, ok := m.attempts.Load(itemID)
	if !ok {
		return types.AdaptiveState{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, true
}
