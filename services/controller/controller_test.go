package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/errcode"
	"recbutton-go/status"
	"recbutton-go/types"
)

type fakeIndicator struct {
	mu        sync.Mutex
	indicated []types.SystemState
	unpaired  int
}

func (f *fakeIndicator) IndicateTransition(state types.SystemState) {
	f.mu.Lock()
	f.indicated = append(f.indicated, state)
	f.mu.Unlock()
}

func (f *fakeIndicator) Unpair() error {
	f.mu.Lock()
	f.unpaired++
	f.mu.Unlock()
	return nil
}

func (f *fakeIndicator) indications() []types.SystemState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.SystemState, len(f.indicated))
	copy(out, f.indicated)
	return out
}

type fixture struct {
	svc     *Service
	tracker *status.Tracker
	ind     *fakeIndicator
	renders *bus.Subscription
	states  *bus.Subscription
	events  *bus.Subscription
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bus.NewBus(32)
	tracker := status.NewTracker(time.Unix(1700000000, 0))
	ind := &fakeIndicator{}
	cfg := config.Default()

	svc := New(b.NewConnection("controller"), tracker, ind, cfg.Timeouts, cfg.UI, zap.NewNop())

	test := b.NewConnection("test")
	f := &fixture{
		svc:     svc,
		tracker: tracker,
		ind:     ind,
		renders: test.Subscribe(bus.TopicRender),
		states:  test.Subscribe(bus.TopicState),
		events:  test.Subscribe(bus.TopicEvent),
		now:     time.Unix(1700000000, 0),
	}
	svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) drainRenders(t *testing.T) []types.UIRenderCommand {
	t.Helper()
	var out []types.UIRenderCommand
	for {
		select {
		case msg := <-f.renders.Channel():
			cmd, ok := msg.Payload.(types.UIRenderCommand)
			require.True(t, ok)
			out = append(out, cmd)
		default:
			return out
		}
	}
}

func (f *fixture) lastStateChange(t *testing.T) *types.StateChange {
	t.Helper()
	var last *types.StateChange
	for {
		select {
		case msg := <-f.states.Channel():
			sc, ok := msg.Payload.(types.StateChange)
			require.True(t, ok)
			last = &sc
		default:
			return last
		}
	}
}

func (f *fixture) nextEvent() *types.SystemEvent {
	select {
	case msg := <-f.events.Channel():
		if ev, ok := msg.Payload.(types.SystemEvent); ok {
			return &ev
		}
		return nil
	default:
		return nil
	}
}

// waitIndications waits for the post-commit indication goroutine.
func (f *fixture) waitIndications(t *testing.T, n int) []types.SystemState {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := f.ind.indications(); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d indications, got %v", n, f.ind.indications())
	return nil
}

func TestTransitionRejectsInvalidState(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Transition(types.SystemState(200), "bogus", types.OriginInternal)
	assert.ErrorIs(t, err, errcode.InvalidState)
	assert.Equal(t, types.StateStartup, f.tracker.Current())
	assert.Nil(t, f.lastStateChange(t))
}

func TestTransitionCommitsAndAnnounces(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateLogo, "startup_complete", types.OriginInternal))

	snap := f.tracker.Snapshot()
	assert.Equal(t, types.StateLogo, snap.Current)
	assert.Equal(t, types.StateStartup, snap.Previous)
	assert.Equal(t, f.now, snap.StateEnterTime)
	assert.True(t, snap.StateDeadline.IsZero(), "logo carries no timeout")
	assert.Equal(t, f.now.Add(3*time.Second), snap.LogoAltAt)

	sc := f.lastStateChange(t)
	require.NotNil(t, sc)
	assert.Equal(t, types.StateLogo, sc.State)
	assert.Equal(t, types.StateStartup, sc.Previous)
	assert.False(t, sc.Critical)

	renders := f.drainRenders(t)
	require.NotEmpty(t, renders)
	load := renders[len(renders)-1]
	assert.Equal(t, types.RenderLoadScreen, load.Kind)
	assert.Equal(t, types.StateLogo, load.State)
	assert.True(t, load.HighPriority)
}

func TestCyclicRoundTrip(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateUnlock, "app:Unlock", types.OriginApp))

	require.NoError(t, f.svc.Transition(types.StateRecording, "button_press", types.OriginButton))
	sc := f.lastStateChange(t)
	require.NotNil(t, sc)
	assert.True(t, sc.Critical, "unlock->recording is a cyclic edge")

	require.NoError(t, f.svc.Transition(types.StateUploading, "button_hold", types.OriginButton))
	require.NoError(t, f.svc.Transition(types.StateUnlock, "button_press", types.OriginButton))

	snap := f.tracker.Snapshot()
	assert.Equal(t, types.StateUnlock, snap.Current)
	assert.Equal(t, types.StateUploading, snap.Previous)

	sc = f.lastStateChange(t)
	require.NotNil(t, sc)
	assert.True(t, sc.Critical, "uploading->unlock is a cyclic edge")
}

func TestAppRecordWhileUnlocked(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateUnlock, "app:Unlock", types.OriginApp))
	f.drainRenders(t)

	f.svc.handleEvent(types.NewEvent(types.EvAppCommand, types.StateRecording, "app:Record", types.OriginApp))

	snap := f.tracker.Snapshot()
	assert.Equal(t, types.StateRecording, snap.Current)
	assert.Equal(t, f.now.Add(240*time.Second), snap.StateDeadline)

	renders := f.drainRenders(t)
	var load *types.UIRenderCommand
	for i := range renders {
		if renders[i].Kind == types.RenderLoadScreen {
			load = &renders[i]
		}
	}
	require.NotNil(t, load)
	assert.True(t, load.HighPriority)
	assert.True(t, load.ForceRefresh, "critical edge forces the redraw")

	// App-origin transitions carry no button indication burst.
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, f.ind.indications())
}

func TestButtonOriginTriggersIndication(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateUnlock, "app:Unlock", types.OriginApp))
	require.NoError(t, f.svc.Transition(types.StateRecording, "button_press", types.OriginButton))

	got := f.waitIndications(t, 1)
	assert.Equal(t, types.StateRecording, got[0])
}

func TestAnimationFollowsState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateRecording, "test", types.OriginApp))
	renders := f.drainRenders(t)
	require.NotEmpty(t, renders)
	assert.Equal(t, types.RenderStartAnimation, renders[len(renders)-1].Kind)

	require.NoError(t, f.svc.Transition(types.StateUploading, "test", types.OriginApp))
	kinds := []types.RenderKind{}
	for _, r := range f.drainRenders(t) {
		kinds = append(kinds, r.Kind)
	}
	assert.Contains(t, kinds, types.RenderStopAnimation)
	assert.Contains(t, kinds, types.RenderStartAnimation)
}

func TestButtonReactions(t *testing.T) {
	f := newFixture(t)

	short := func(d time.Duration) types.ButtonEvent {
		return types.ButtonEvent{Pressed: false, Duration: d, At: f.now}
	}
	longFire := func() types.ButtonEvent {
		return types.ButtonEvent{Pressed: true, Duration: 2 * time.Second, IsLongPress: true, At: f.now}
	}

	cases := []struct {
		name   string
		state  types.SystemState
		press  types.ButtonEvent
		kind   types.EventKind
		target types.SystemState
		none   bool
	}{
		{"unlock short starts recording", types.StateUnlock, short(300 * time.Millisecond), types.EvButtonShortPress, types.StateRecording, false},
		{"uploading short returns to unlock", types.StateUploading, short(300 * time.Millisecond), types.EvButtonShortPress, types.StateUnlock, false},
		{"error short recovers to logo", types.StateError, short(300 * time.Millisecond), types.EvButtonShortPress, types.StateLogo, false},
		{"recording hold fires upload", types.StateRecording, longFire(), types.EvButtonLongPress, types.StateUploading, false},
		{"logo hold requests unpair", types.StateLogo, longFire(), types.EvUnpairRequest, types.StateSetup, false},
		{"setup hold requests unpair", types.StateSetup, longFire(), types.EvUnpairRequest, types.StateSetup, false},
		{"logo short ignored", types.StateLogo, short(300 * time.Millisecond), 0, 0, true},
		{"login short ignored", types.StateLogin, short(300 * time.Millisecond), 0, 0, true},
		{"release after hold not doubled", types.StateRecording, types.ButtonEvent{Pressed: false, Duration: 3 * time.Second, IsLongPress: true}, 0, 0, true},
		{"plain press edge ignored", types.StateUnlock, types.ButtonEvent{Pressed: true}, 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.tracker.Update(func(st *status.SystemStatus) { st.Current = tc.state })
			ev := f.svc.buttonReaction(tc.press)
			if tc.none {
				assert.Nil(t, ev)
				return
			}
			require.NotNil(t, ev)
			assert.Equal(t, tc.kind, ev.Kind)
			assert.Equal(t, tc.target, ev.Target)
			assert.Equal(t, types.OriginButton, ev.Origin)
		})
	}
}

func TestShortPressWhileRecordingShowsHint(t *testing.T) {
	f := newFixture(t)
	f.tracker.Update(func(st *status.SystemStatus) { st.Current = types.StateRecording })

	ev := f.svc.buttonReaction(types.ButtonEvent{Pressed: false, Duration: 300 * time.Millisecond, At: f.now})
	assert.Nil(t, ev, "short press must not stop the recording")
	assert.True(t, f.tracker.Snapshot().RecordingHint)

	renders := f.drainRenders(t)
	require.Len(t, renders, 1)
	assert.Equal(t, types.RenderShowMessage, renders[0].Kind)
	assert.Equal(t, "HOLD TO UPLOAD", renders[0].Message)
}

func TestDisconnectFallsBackFromActiveSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateRecording, "test", types.OriginApp))

	f.svc.handleEvent(types.NewEvent(types.EvBleDisconnected, types.StateRecording, "ble_link", types.OriginInternal))

	snap := f.tracker.Snapshot()
	assert.False(t, snap.Connected)
	assert.Equal(t, types.StateLogo, snap.Current)
	assert.False(t, snap.RecordingHint, "recording exit clears the hint")
}

func TestDisconnectInSetupStaysPut(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateSetup, "test", types.OriginInternal))

	f.svc.handleEvent(types.NewEvent(types.EvBleDisconnected, types.StateSetup, "ble_link", types.OriginInternal))
	assert.Equal(t, types.StateSetup, f.tracker.Current())
}

func TestCriticalErrorEntersErrorState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateUnlock, "test", types.OriginApp))

	ev := types.NewEvent(types.EvError, types.StateError, "hw_fault", types.OriginInternal)
	ev.Critical = true
	f.svc.handleEvent(ev)

	snap := f.tracker.Snapshot()
	assert.Equal(t, types.StateError, snap.Current)
	assert.Equal(t, 1, snap.ErrorCount)
	assert.Equal(t, f.now.Add(30*time.Second), snap.StateDeadline)
}

func TestNonCriticalErrorOnlyCounts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateUnlock, "test", types.OriginApp))

	f.svc.handleEvent(types.NewEvent(types.EvError, types.StateError, "battery_low", types.OriginInternal))

	snap := f.tracker.Snapshot()
	assert.Equal(t, types.StateUnlock, snap.Current)
	assert.Equal(t, 1, snap.ErrorCount)
}

func TestUnpairRequest(t *testing.T) {
	f := newFixture(t)
	f.svc.handleEvent(types.NewEvent(types.EvUnpairRequest, types.StateSetup, "button_hold", types.OriginButton))
	assert.Equal(t, 1, f.ind.unpaired)
	assert.Equal(t, types.StateSetup, f.tracker.Current())
}

func TestHousekeepingFiresStateTimeout(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateUnlock, "test", types.OriginApp))
	f.nextEvent() // nothing queued yet, clears channel anyway

	// Before the deadline: silent.
	f.now = f.now.Add(119 * time.Second)
	f.svc.housekeeping()
	assert.Nil(t, f.nextEvent())

	// At the deadline: exactly one timeout event, deadline disarmed.
	f.now = f.now.Add(time.Second)
	f.svc.housekeeping()
	ev := f.nextEvent()
	require.NotNil(t, ev)
	assert.Equal(t, types.EvTimeout, ev.Kind)
	assert.Equal(t, types.StateLogo, ev.Target)
	assert.True(t, f.tracker.Snapshot().StateDeadline.IsZero())

	// The timer cannot fire twice.
	f.svc.housekeeping()
	assert.Nil(t, f.nextEvent())
}

func TestTransitionDisarmsOldDeadline(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateUnlock, "test", types.OriginApp))
	first := f.tracker.Snapshot().StateDeadline

	f.now = f.now.Add(100 * time.Second)
	require.NoError(t, f.svc.Transition(types.StateRecording, "test", types.OriginApp))

	snap := f.tracker.Snapshot()
	assert.NotEqual(t, first, snap.StateDeadline)
	assert.Equal(t, f.now.Add(240*time.Second), snap.StateDeadline)
}

func TestHousekeepingLogoAlternation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateLogo, "test", types.OriginInternal))
	f.drainRenders(t)

	f.now = f.now.Add(3 * time.Second)
	f.svc.housekeeping()

	snap := f.tracker.Snapshot()
	assert.True(t, snap.LogoAlt)
	assert.Equal(t, f.now.Add(3*time.Second), snap.LogoAltAt)

	renders := f.drainRenders(t)
	require.Len(t, renders, 1)
	assert.True(t, renders[0].ForceRefresh, "same state, different screen")

	// It alternates back.
	f.now = f.now.Add(3 * time.Second)
	f.svc.housekeeping()
	assert.False(t, f.tracker.Snapshot().LogoAlt)
}

func TestHousekeepingLoginPhaseFlipsOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateLogin, "test", types.OriginApp))
	f.drainRenders(t)
	require.True(t, f.tracker.Snapshot().LoginFirstScreen)

	f.now = f.now.Add(3500 * time.Millisecond)
	f.svc.housekeeping()

	snap := f.tracker.Snapshot()
	assert.False(t, snap.LoginFirstScreen)
	assert.True(t, snap.LoginPhaseAt.IsZero(), "phase timer is one-shot")
	require.Len(t, f.drainRenders(t), 1)

	f.now = f.now.Add(time.Hour)
	f.svc.housekeeping()
	assert.Empty(t, f.drainRenders(t))
}

func TestExitDisarmsLogoTimer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Transition(types.StateLogo, "test", types.OriginInternal))
	require.False(t, f.tracker.Snapshot().LogoAltAt.IsZero())

	require.NoError(t, f.svc.Transition(types.StateSetup, "test", types.OriginInternal))
	assert.True(t, f.tracker.Snapshot().LogoAltAt.IsZero())
}
