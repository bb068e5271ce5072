package recovery_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teleloop/work/config"
	"teleloop/work/recovery"
	"teleloop/work/types"
)

// fakePlanner hands back a plan mirroring the requested options and records
// every re-resolution.
type fakePlanner struct {
	resolved []types.PlanOptions
	offsets  []float64
	fail     error
}

func (f *fakePlanner) ResolvePlan(ctx context.Context, itemID string, offset float64, opts types.PlanOptions) (types.StreamPlan, error) {
	if f.fail != nil {
		return types.StreamPlan{}, f.fail
	}
	f.resolved = append(f.resolved, opts)
	f.offsets = append(f.offsets, offset)
	return types.StreamPlan{
		Mode:             types.DeliveryAdaptive,
		VideoBitrateKbps: opts.MaxBitrateKbps,
		SessionID:        fmt.Sprintf("session-%d", len(f.resolved)),
		StartOffset:      offset,
		Options:          opts,
	}, nil
}

type fakeStopper struct {
	stopped []string
}

func (f *fakeStopper) StopSession(sessionID string) { f.stopped = append(f.stopped, sessionID) }

func recoveryConfig() *config.Config {
	return &config.Config{
		Playback: config.PlaybackConfig{
			MaxBitrateKbps: 20000,
			MinBitrateKbps: 1000,
		},
		Recovery: config.RecoveryConfig{
			Cooldown:            5 * time.Second,
			ThroughputWindow:    5 * time.Second,
			ThroughputRatio:     0.6,
			LateStallCutoff:     45 * time.Second,
			FirstReduction:      0.4,
			LaterReduction:      0.3,
			MaxDownshifts:       2,
			ForcedTranscodeKbps: 4000,
		},
	}
}

func stall(item string, at time.Time, position float64) types.TelemetryEvent {
	return types.TelemetryEvent{Kind: types.TelemetryStall, ItemID: item, At: at, Position: position}
}

func transcodePlan(cap int) types.StreamPlan {
	return types.StreamPlan{Mode: types.DeliveryAdaptive, VideoBitrateKbps: cap, SessionID: "session-0"}
}

func TestOnTelemetry_DownshiftLadder(t *testing.T) {
	pl := &fakePlanner{}
	m := recovery.NewManager(recoveryConfig(), pl, nil)
	m.Start("m1", transcodePlan(8000))
	base := time.Now()

	// First stall: 8000 reduced by 40%.
	plan, replanned, err := m.OnTelemetry(context.Background(), stall("m1", base.Add(time.Second), 100))
	require.NoError(t, err)
	require.True(t, replanned)
	assert.Equal(t, 4800, plan.VideoBitrateKbps)
	assert.False(t, plan.Options.ForceTranscode)

	// Second: 30% off the new cap.
	plan, replanned, err = m.OnTelemetry(context.Background(), stall("m1", base.Add(10*time.Second), 110))
	require.NoError(t, err)
	require.True(t, replanned)
	assert.Equal(t, 3360, plan.VideoBitrateKbps)
	assert.False(t, plan.Options.ForceTranscode)

	// Third exceeds the downshift budget and forces transcode.
	plan, replanned, err = m.OnTelemetry(context.Background(), stall("m1", base.Add(20*time.Second), 120))
	require.NoError(t, err)
	require.True(t, replanned)
	assert.Equal(t, 2352, plan.VideoBitrateKbps)
	assert.True(t, plan.Options.ForceTranscode)

	state, ok := m.State("m1")
	require.True(t, ok)
	assert.Equal(t, 3, state.Downshifts)
	assert.True(t, state.ForcedTranscode)

	// Replacement plans resume from the reported positions.
	assert.Equal(t, []float64{100, 110, 120}, pl.offsets)
}

func TestOnTelemetry_CooldownSuppressesCascade(t *testing.T) {
	pl := &fakePlanner{}
	m := recovery.NewManager(recoveryConfig(), pl, nil)
	m.Start("m1", transcodePlan(8000))
	base := time.Now()

	_, replanned, err := m.OnTelemetry(context.Background(), stall("m1", base.Add(time.Second), 100))
	require.NoError(t, err)
	require.True(t, replanned)

	// One second later is inside the 5s cooldown.
	_, replanned, err = m.OnTelemetry(context.Background(), stall("m1", base.Add(2*time.Second), 101))
	require.NoError(t, err)
	assert.False(t, replanned)
	assert.Len(t, pl.resolved, 1)

	state, _ := m.State("m1")
	assert.Equal(t, 1, state.Downshifts)
}

func TestOnTelemetry_LateStallIgnored(t *testing.T) {
	pl := &fakePlanner{}
	m := recovery.NewManager(recoveryConfig(), pl, nil)
	m.Start("m1", transcodePlan(8000))

	_, replanned, err := m.OnTelemetry(context.Background(), stall("m1", time.Now().Add(50*time.Second), 2000))
	require.NoError(t, err)
	assert.False(t, replanned, "stalls past the cutoff are not delivery problems")
	assert.Empty(t, pl.resolved)
}

func TestOnTelemetry_StreamCopyEscalatesToForcedTranscode(t *testing.T) {
	pl := &fakePlanner{}
	stopper := &fakeStopper{}
	m := recovery.NewManager(recoveryConfig(), pl, stopper)
	m.Start("m1", types.StreamPlan{Mode: types.DeliveryAdaptive, DirectStream: true, SessionID: "copy-session"})

	plan, replanned, err := m.OnTelemetry(context.Background(), stall("m1", time.Now().Add(time.Second), 60))
	require.NoError(t, err)
	require.True(t, replanned)
	assert.True(t, plan.Options.ForceTranscode)
	assert.Equal(t, 4000, plan.VideoBitrateKbps, "stream copy has no cap to lower, so it restarts at the fixed transcode cap")
	assert.Equal(t, []string{"copy-session"}, stopper.stopped, "the abandoned session is torn down")
}

func TestOnTelemetry_ThroughputShortfallNeedsSustainedWindow(t *testing.T) {
	pl := &fakePlanner{}
	m := recovery.NewManager(recoveryConfig(), pl, nil)
	m.Start("m1", transcodePlan(8000))
	base := time.Now()

	sample := func(at time.Time, observed int) types.TelemetryEvent {
		return types.TelemetryEvent{
			Kind:          types.TelemetryThroughput,
			ItemID:        "m1",
			At:            at,
			ObservedKbps:  observed,
			IndicatedKbps: 8000,
		}
	}

	// 4000 < 0.6 * 8000: shortfall, but the window just opened.
	_, replanned, err := m.OnTelemetry(context.Background(), sample(base, 4000))
	require.NoError(t, err)
	assert.False(t, replanned)

	// Still inside the 5s window.
	_, replanned, err = m.OnTelemetry(context.Background(), sample(base.Add(3*time.Second), 4000))
	require.NoError(t, err)
	assert.False(t, replanned)

	// Sustained past the window: trigger.
	_, replanned, err = m.OnTelemetry(context.Background(), sample(base.Add(6*time.Second), 4000))
	require.NoError(t, err)
	assert.True(t, replanned)
}

func TestOnTelemetry_HealthySamplesClearTheWindow(t *testing.T) {
	pl := &fakePlanner{}
	m := recovery.NewManager(recoveryConfig(), pl, nil)
	m.Start("m1", transcodePlan(8000))
	base := time.Now()

	shortfall := types.TelemetryEvent{Kind: types.TelemetryThroughput, ItemID: "m1", At: base, ObservedKbps: 4000, IndicatedKbps: 8000}
	_, _, err := m.OnTelemetry(context.Background(), shortfall)
	require.NoError(t, err)

	// A healthy progress report closes the window.
	_, _, err = m.OnTelemetry(context.Background(), types.TelemetryEvent{Kind: types.TelemetryProgress, ItemID: "m1", At: base.Add(2 * time.Second), Position: 50})
	require.NoError(t, err)

	// A new shortfall 6s after the first would have triggered had the
	// window survived; instead it merely reopens it.
	late := shortfall
	late.At = base.Add(6 * time.Second)
	_, replanned, err := m.OnTelemetry(context.Background(), late)
	require.NoError(t, err)
	assert.False(t, replanned)
	assert.Empty(t, pl.resolved)
}

func TestOnTelemetry_ExhaustsAtFloor(t *testing.T) {
	pl := &fakePlanner{}
	m := recovery.NewManager(recoveryConfig(), pl, nil)
	m.Start("m1", transcodePlan(1500))

	// 1500 * 0.6 = 900, below the 1000 kbps floor.
	_, replanned, err := m.OnTelemetry(context.Background(), stall("m1", time.Now().Add(time.Second), 30))
	require.Error(t, err)
	assert.False(t, replanned)
	assert.Equal(t, types.ErrRecoveryExhausted, types.KindOf(err))

	_, tracked := m.State("m1")
	assert.False(t, tracked, "exhausted attempts are abandoned")
}

func TestOnTelemetry_UnknownItemIsANoop(t *testing.T) {
	m := recovery.NewManager(recoveryConfig(), &fakePlanner{}, nil)
	_, replanned, err := m.OnTelemetry(context.Background(), stall("ghost", time.Now(), 0))
	require.NoError(t, err)
	assert.False(t, replanned)
}

func TestStartAndStopLifecycle(t *testing.T) {
	stopper := &fakeStopper{}
	m := recovery.NewManager(recoveryConfig(), &fakePlanner{}, stopper)

	m.Start("m1", types.StreamPlan{Mode: types.DeliveryAdaptive, SessionID: "old"})
	m.Start("m1", types.StreamPlan{Mode: types.DeliveryAdaptive, SessionID: "new"})
	assert.Equal(t, []string{"old"}, stopper.stopped, "restarting an item tears down the replaced session")

	m.Stop("m1")
	assert.Equal(t, []string{"old", "new"}, stopper.stopped)

	_, tracked := m.State("m1")
	assert.False(t, tracked)
}

// blockingPlanner parks in ResolvePlan until its context is canceled, then
// returns a plan anyway, modeling a resolution that raced the cancellation.
type blockingPlanner struct {
	entered chan struct{}
}

func (p *blockingPlanner) ResolvePlan(ctx context.Context, itemID string, offset float64, opts types.PlanOptions) (types.StreamPlan, error) {
	close(p.entered)
	<-ctx.Done()
	return types.StreamPlan{Mode: types.DeliveryAdaptive, VideoBitrateKbps: opts.MaxBitrateKbps, SessionID: "fresh"}, nil
}

// lockedStopper is a fakeStopper safe for concurrent teardown paths.
type lockedStopper struct {
	mu      sync.Mutex
	stopped []string
}

func (f *lockedStopper) StopSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, sessionID)
}

func (f *lockedStopper) sessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...)
}

func TestStopDuringReplanReleasesFreshSession(t *testing.T) {
	pl := &blockingPlanner{entered: make(chan struct{})}
	stopper := &lockedStopper{}
	m := recovery.NewManager(recoveryConfig(), pl, stopper)
	m.Start("m1", types.StreamPlan{Mode: types.DeliveryAdaptive, VideoBitrateKbps: 8000, SessionID: "old"})

	type result struct {
		replanned bool
		err       error
	}
	done := make(chan result, 1)
	go func() {
		_, replanned, err := m.OnTelemetry(context.Background(), stall("m1", time.Now().Add(time.Second), 100))
		done <- result{replanned, err}
	}()

	// Switch away while the replan is parked in the planner. Stop cancels
	// the attempt, which unblocks the planner with a completed plan.
	<-pl.entered
	m.Stop("m1")

	res := <-done
	require.NoError(t, res.err)
	assert.False(t, res.replanned, "a plan resolved after Stop is not adopted")
	assert.Equal(t, []string{"fresh", "old"}, stopper.sessions(), "both the raced replacement session and the original are released")

	_, tracked := m.State("m1")
	assert.False(t, tracked)
}

func TestRestartDuringReplanKeepsNewAttempt(t *testing.T) {
	pl := &blockingPlanner{entered: make(chan struct{})}
	stopper := &lockedStopper{}
	m := recovery.NewManager(recoveryConfig(), pl, stopper)
	m.Start("m1", types.StreamPlan{Mode: types.DeliveryAdaptive, VideoBitrateKbps: 8000, SessionID: "old"})

	done := make(chan bool, 1)
	go func() {
		_, replanned, _ := m.OnTelemetry(context.Background(), stall("m1", time.Now().Add(time.Second), 100))
		done <- replanned
	}()

	// The player switches items mid-replan: the new attempt wins and the
	// orphaned resolution's session is released.
	<-pl.entered
	m.Start("m1", types.StreamPlan{Mode: types.DeliveryAdaptive, VideoBitrateKbps: 6000, SessionID: "next"})

	assert.False(t, <-done)
	assert.Equal(t, []string{"fresh", "old"}, stopper.sessions())

	state, tracked := m.State("m1")
	require.True(t, tracked)
	assert.Equal(t, 6000, state.CapKbps, "the replacement attempt's state is untouched by the abandoned replan")
}

func TestOnTelemetry_PassthroughPlanUsesConfiguredCap(t *testing.T) {
	pl := &fakePlanner{}
	m := recovery.NewManager(recoveryConfig(), pl, nil)
	m.Start("m1", types.StreamPlan{Mode: types.DeliveryDirect, DirectPlay: true})

	plan, replanned, err := m.OnTelemetry(context.Background(), stall("m1", time.Now().Add(time.Second), 10))
	require.NoError(t, err)
	require.True(t, replanned)
	// 20000 configured ceiling reduced by 40%.
	assert.Equal(t, 12000, plan.VideoBitrateKbps)
}
