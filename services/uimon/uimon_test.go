package uimon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/drivers/display"
	"recbutton-go/status"
	"recbutton-go/types"
)

type fixture struct {
	svc     *Service
	tracker *status.Tracker
	disp    *display.Fake
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bus.NewBus(16)
	tracker := status.NewTracker(time.Unix(1700000000, 0))
	disp := display.NewFake()

	svc := New(b.NewConnection("uimon"), tracker, disp, config.Default().UI, zap.NewNop())

	f := &fixture{svc: svc, tracker: tracker, disp: disp, now: time.Unix(1700000000, 0)}
	svc.now = func() time.Time { return f.now }
	return f
}

func load(state types.SystemState) types.UIRenderCommand {
	return types.UIRenderCommand{Kind: types.RenderLoadScreen, State: state}
}

func TestLoadScreenRendersAndBooks(t *testing.T) {
	f := newFixture(t)
	f.svc.HandleRender(load(types.StateUnlock))

	got, ok := f.disp.LastLoaded()
	require.True(t, ok)
	assert.Equal(t, display.ScreenUnlock, got)

	snap := f.tracker.Snapshot()
	assert.Equal(t, types.StateUnlock, snap.LastRenderedState)
	assert.Equal(t, f.now, snap.LastUIUpdate)
}

func TestRepeatLoadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.svc.HandleRender(load(types.StateUnlock))
	require.Equal(t, 1, f.disp.LoadCount())

	// Same state again, not forced: counted, not redrawn.
	f.svc.HandleRender(load(types.StateUnlock))
	assert.Equal(t, 1, f.disp.LoadCount())
	assert.Equal(t, 1, f.tracker.Snapshot().MissedUpdates)

	// Forced redraw goes through.
	cmd := load(types.StateUnlock)
	cmd.ForceRefresh = true
	f.svc.HandleRender(cmd)
	assert.Equal(t, 2, f.disp.LoadCount())
}

func TestScreenResolution(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, display.ScreenLogo, f.svc.screenFor(types.StateLogo))
	f.tracker.Update(func(st *status.SystemStatus) { st.LogoAlt = true })
	assert.Equal(t, display.ScreenLogoAlt, f.svc.screenFor(types.StateLogo))

	f.tracker.Update(func(st *status.SystemStatus) { st.LoginFirstScreen = true })
	assert.Equal(t, display.ScreenLoginFirst, f.svc.screenFor(types.StateLogin))
	f.tracker.Update(func(st *status.SystemStatus) { st.LoginFirstScreen = false })
	assert.Equal(t, display.ScreenLoginSecond, f.svc.screenFor(types.StateLogin))

	assert.Equal(t, display.ScreenRecording, f.svc.screenFor(types.StateRecording))
	assert.Equal(t, display.ScreenShutdown, f.svc.screenFor(types.StateShutdown))
}

func TestReconcileHealsDrift(t *testing.T) {
	f := newFixture(t)
	f.svc.HandleRender(load(types.StateUnlock))
	require.Equal(t, 1, f.disp.LoadCount())

	// The state moved but the render command was lost.
	f.tracker.Update(func(st *status.SystemStatus) { st.Current = types.StateRecording })
	f.svc.Reconcile()

	got, ok := f.disp.LastLoaded()
	require.True(t, ok)
	assert.Equal(t, display.ScreenRecording, got)
	assert.Equal(t, types.StateRecording, f.tracker.Snapshot().LastRenderedState)
}

func TestReconcileQuietWhenInSync(t *testing.T) {
	f := newFixture(t)
	f.tracker.Update(func(st *status.SystemStatus) { st.Current = types.StateUnlock })
	f.svc.HandleRender(load(types.StateUnlock))
	n := f.disp.LoadCount()

	f.svc.Reconcile()
	assert.Equal(t, n, f.disp.LoadCount())
}

func TestReconcileHonorsPendingForceRefresh(t *testing.T) {
	f := newFixture(t)
	f.tracker.Update(func(st *status.SystemStatus) {
		st.Current = types.StateUnlock
		st.LastRenderedState = types.StateUnlock
		st.ForceRefresh = true
	})
	f.svc.Reconcile()
	assert.Equal(t, 1, f.disp.LoadCount())
	assert.False(t, f.tracker.Snapshot().ForceRefresh)
}

func TestFreezeDetection(t *testing.T) {
	f := newFixture(t)
	f.tracker.Update(func(st *status.SystemStatus) {
		st.Current = types.StateRecording
		st.LastUIUpdate = f.now
	})

	// Within the freeze window: nothing.
	f.now = f.now.Add(10 * time.Second)
	f.svc.CheckFreeze()
	assert.Zero(t, f.disp.LoadCount())

	// Past it: forced resync to the true state.
	f.now = f.now.Add(time.Second)
	f.svc.CheckFreeze()
	require.Equal(t, 1, f.disp.LoadCount())
	got, _ := f.disp.LastLoaded()
	assert.Equal(t, display.ScreenRecording, got)
	assert.Equal(t, f.now, f.tracker.Snapshot().LastUIUpdate)
}

func TestDisplayFailureKeepsBookkeepingHonest(t *testing.T) {
	f := newFixture(t)
	f.disp.FailWith = assert.AnError

	f.svc.HandleRender(load(types.StateUnlock))

	// The render did not land, so the rendered state must not claim it.
	snap := f.tracker.Snapshot()
	assert.Equal(t, types.StateStartup, snap.LastRenderedState)
}

func TestNonLoadCommands(t *testing.T) {
	f := newFixture(t)
	f.svc.HandleRender(types.UIRenderCommand{Kind: types.RenderShowMessage, Message: "HOLD TO UPLOAD"})
	f.svc.HandleRender(types.UIRenderCommand{Kind: types.RenderStartAnimation, State: types.StateRecording})
	f.svc.HandleRender(types.UIRenderCommand{Kind: types.RenderStopAnimation})
	f.svc.HandleRender(types.UIRenderCommand{Kind: types.RenderUpdateProgress, Progress: 40})
	f.svc.HandleRender(types.UIRenderCommand{Kind: types.RenderClearScreen})

	ops := f.disp.Ops()
	require.Len(t, ops, 5)
	assert.Equal(t, "message", ops[0].Kind)
	assert.Equal(t, "HOLD TO UPLOAD", ops[0].Message)
	assert.Equal(t, "anim_start", ops[1].Kind)
	assert.Equal(t, display.ScreenRecording, ops[1].Screen)
	assert.Equal(t, "anim_stop", ops[2].Kind)
	assert.Equal(t, uint8(40), ops[3].Percent)
	assert.Equal(t, "clear", ops[4].Kind)
}
