// Package controller implements the state machine. It is the single
// authority for transitions: it validates requests, runs entry/exit
// actions, arms per-state timeouts, and fans out render commands and
// indications. All other services only ever request transitions by
// publishing events; the controller is the only writer of the current
// state.
package controller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/errcode"
	"recbutton-go/status"
	"recbutton-go/types"
)

// Indicator is the outbound slice of the gateway the controller needs.
// IndicateTransition is invoked after a state commit, on a helper
// goroutine, so the event loop never blocks on the radio.
type Indicator interface {
	IndicateTransition(state types.SystemState)
	Unpair() error
}

type Service struct {
	conn     *bus.Connection
	tracker  *status.Tracker
	ind      Indicator
	timeouts config.TimeoutConfig
	ui       config.UIConfig
	log      *zap.Logger

	now func() time.Time
}

func New(conn *bus.Connection, tracker *status.Tracker, ind Indicator, timeouts config.TimeoutConfig, ui config.UIConfig, log *zap.Logger) *Service {
	return &Service{
		conn:     conn,
		tracker:  tracker,
		ind:      ind,
		timeouts: timeouts,
		ui:       ui,
		log:      log,
		now:      time.Now,
	}
}

// Start launches the event loop.
func (s *Service) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) {
	evSub := s.conn.Subscribe(bus.TopicEvent)
	btnSub := s.conn.Subscribe(bus.TopicButton)
	defer s.conn.Unsubscribe(evSub)
	defer s.conn.Unsubscribe(btnSub)

	tick := time.NewTicker(s.ui.Tick())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("controller stopping")
			return

		case msg := <-evSub.Channel():
			ev, ok := msg.Payload.(types.SystemEvent)
			if !ok {
				continue
			}
			s.handleEvent(ev)

		case msg := <-btnSub.Channel():
			be, ok := msg.Payload.(types.ButtonEvent)
			if !ok {
				continue
			}
			// Button reactions funnel back through the event topic so
			// every transition request shares one ordered channel;
			// arbitration between button and app is last-writer-wins
			// by arrival order.
			if ev := s.buttonReaction(be); ev != nil {
				s.conn.Publish(s.conn.NewMessage(bus.TopicEvent, *ev, false))
			}

		case <-tick.C:
			s.housekeeping()
		}
	}
}

// -----------------------------------------------------------------------------
// Event handling
// -----------------------------------------------------------------------------

func (s *Service) handleEvent(ev types.SystemEvent) {
	now := s.now()
	s.tracker.Touch(now)

	switch ev.Kind {
	case types.EvStartupComplete:
		_ = s.Transition(types.StateLogo, "startup_complete", types.OriginInternal)

	case types.EvBleConnected:
		s.tracker.Update(func(st *status.SystemStatus) { st.Connected = true })

	case types.EvBleDisconnected:
		s.tracker.Update(func(st *status.SystemStatus) { st.Connected = false })
		// An active session cannot continue without the phone; fall
		// back to the logo screen rather than waiting out the timeout.
		switch s.tracker.Current() {
		case types.StateLogin, types.StateUnlock, types.StateRecording, types.StateUploading:
			_ = s.Transition(types.StateLogo, "ble_disconnected", types.OriginInternal)
		}

	case types.EvAppCommand:
		_ = s.Transition(ev.Target, ev.Cause, types.OriginApp)

	case types.EvButtonShortPress, types.EvButtonLongPress:
		_ = s.Transition(ev.Target, ev.Cause, types.OriginButton)

	case types.EvTimeout:
		_ = s.Transition(ev.Target, ev.Cause, types.OriginTimer)

	case types.EvError:
		s.tracker.Update(func(st *status.SystemStatus) { st.ErrorCount++ })
		if ev.Critical {
			_ = s.Transition(types.StateError, ev.Cause, ev.Origin)
		} else {
			s.log.Warn("non-critical error", zap.String("cause", ev.Cause))
		}

	case types.EvUnpairRequest:
		if err := s.ind.Unpair(); err != nil {
			s.log.Warn("unpair failed", zap.Error(err))
		}
		_ = s.Transition(types.StateSetup, "unpair", ev.Origin)
	}
}

// buttonReaction maps a classified press to a transition request given
// the current state. Returns nil when the press has no meaning here.
func (s *Service) buttonReaction(be types.ButtonEvent) *types.SystemEvent {
	cur := s.tracker.Current()

	if be.Pressed {
		// One-shot long-hold fire.
		if !be.IsLongPress {
			return nil
		}
		switch cur {
		case types.StateRecording:
			ev := types.NewEvent(types.EvButtonLongPress, types.StateUploading, "button_hold", types.OriginButton)
			ev.Duration = be.Duration
			return &ev
		case types.StateSetup, types.StateLogo:
			ev := types.NewEvent(types.EvUnpairRequest, types.StateSetup, "button_hold", types.OriginButton)
			ev.Duration = be.Duration
			return &ev
		}
		return nil
	}

	if be.IsLongPress {
		// The hold already fired while pressed; the release is not a
		// second request.
		return nil
	}

	switch cur {
	case types.StateUnlock:
		ev := types.NewEvent(types.EvButtonShortPress, types.StateRecording, "button_press", types.OriginButton)
		ev.Duration = be.Duration
		return &ev
	case types.StateUploading:
		ev := types.NewEvent(types.EvButtonShortPress, types.StateUnlock, "button_press", types.OriginButton)
		ev.Duration = be.Duration
		return &ev
	case types.StateError:
		ev := types.NewEvent(types.EvButtonShortPress, types.StateLogo, "button_press", types.OriginButton)
		ev.Duration = be.Duration
		return &ev
	case types.StateRecording:
		// A short press while recording only surfaces the hint; the
		// actual stop requires a hold.
		s.tracker.Update(func(st *status.SystemStatus) { st.RecordingHint = true })
		s.publishRender(types.UIRenderCommand{
			Kind:     types.RenderShowMessage,
			State:    types.StateRecording,
			Message:  "HOLD TO UPLOAD",
			Duration: 2 * time.Second,
			At:       s.now(),
		}, false)
		return nil
	}
	s.log.Debug("press ignored", zap.Stringer("state", cur))
	return nil
}

// -----------------------------------------------------------------------------
// Transition pipeline
// -----------------------------------------------------------------------------

// Transition validates and performs a state change. A failed transition
// leaves the state untouched; re-requesting is the caller's concern.
func (s *Service) Transition(newState types.SystemState, cause string, origin types.Origin) error {
	if !newState.Valid() {
		s.log.Warn("rejected transition to invalid state",
			zap.Uint8("target", uint8(newState)), zap.String("cause", cause))
		return errcode.InvalidState
	}

	now := s.now()
	var old types.SystemState
	critical := false

	s.tracker.Update(func(st *status.SystemStatus) {
		old = st.Current
		critical = isCritical(old, newState)

		// Exit: disarm the leaving state's timers and flags.
		switch old {
		case types.StateLogo:
			st.LogoAltAt = time.Time{}
		case types.StateLogin:
			st.LoginPhaseAt = time.Time{}
		case types.StateRecording:
			st.RecordingHint = false
		}

		// Commit.
		st.Previous = old
		st.Current = newState
		st.StateEnterTime = now
		st.StateDeadline = deadlineFor(newState, now, s.timeouts)
		st.LastActivity = now
		if critical {
			st.ForceRefresh = true
		}

		// Entry: arm the entering state's timers.
		switch newState {
		case types.StateLogo:
			st.LogoAlt = false
			st.LogoAltAt = now.Add(s.ui.LogoAlt())
		case types.StateLogin:
			st.LoginFirstScreen = true
			st.LoginPhaseAt = now.Add(s.ui.LoginPhase())
		}
	})

	s.log.Info("transition",
		zap.Stringer("from", old),
		zap.Stringer("to", newState),
		zap.String("cause", cause),
		zap.Bool("critical", critical))

	// Announce for the reaction layer (retained, so late subscribers
	// see the current state).
	s.conn.Publish(s.conn.NewMessage(bus.TopicState, types.StateChange{
		State:    newState,
		Previous: old,
		Critical: critical,
		Cause:    cause,
		Origin:   origin,
		At:       now,
	}, true))

	// Exit renders: animations end with their state.
	switch old {
	case types.StateRecording, types.StateUploading:
		s.publishRender(types.UIRenderCommand{Kind: types.RenderStopAnimation, State: old, At: now}, false)
	}

	// The screen for the new state, forced on critical cyclic edges.
	s.publishRender(types.UIRenderCommand{
		Kind:         types.RenderLoadScreen,
		State:        newState,
		HighPriority: true,
		ForceRefresh: critical,
		At:           now,
	}, true)

	switch newState {
	case types.StateRecording, types.StateUploading:
		s.publishRender(types.UIRenderCommand{Kind: types.RenderStartAnimation, State: newState, At: now}, false)
	}

	// Indication is a step of the same pipeline: it is issued only
	// after the commit above is visible, so the re-check inside the
	// gateway observes the new state.
	if origin == types.OriginButton && hasIndication(newState) {
		go s.ind.IndicateTransition(newState)
	}

	return nil
}

func (s *Service) publishRender(cmd types.UIRenderCommand, highPrio bool) {
	msg := s.conn.NewMessage(bus.TopicRender, cmd, false)
	if highPrio {
		s.conn.PublishPriority(msg)
	} else {
		s.conn.Publish(msg)
	}
}

// isCritical reports whether old->new is one of the cyclic operating
// edges historically prone to stale-UI bugs.
func isCritical(old, next types.SystemState) bool {
	switch {
	case old == types.StateUnlock && next == types.StateRecording:
		return true
	case old == types.StateRecording && next == types.StateUploading:
		return true
	case old == types.StateUploading && next == types.StateUnlock:
		return true
	}
	return false
}

func hasIndication(state types.SystemState) bool {
	switch state {
	case types.StateUnlock, types.StateRecording, types.StateUploading:
		return true
	}
	return false
}

// deadlineFor computes the per-state timeout deadline; zero means no
// timeout for this state.
func deadlineFor(state types.SystemState, now time.Time, t config.TimeoutConfig) time.Time {
	var budget time.Duration
	switch state {
	case types.StateSetup, types.StateLogin:
		budget = time.Duration(t.SetupLoginS) * time.Second
	case types.StateUnlock:
		budget = time.Duration(t.UnlockS) * time.Second
	case types.StateRecording, types.StateUploading:
		budget = time.Duration(t.RecordUploadS) * time.Second
	case types.StateError:
		budget = time.Duration(t.ErrorS) * time.Second
	}
	if budget <= 0 {
		return time.Time{}
	}
	return now.Add(budget)
}

// -----------------------------------------------------------------------------
// Housekeeping tick: timers live as deadlines in the status record and
// are checked here, so a timer can never fire for a state the system
// has already left.
// -----------------------------------------------------------------------------

func (s *Service) housekeeping() {
	now := s.now()
	s.tracker.Touch(now)
	snap := s.tracker.Snapshot()

	// State timeout.
	if !snap.StateDeadline.IsZero() && !now.Before(snap.StateDeadline) {
		s.tracker.Update(func(st *status.SystemStatus) { st.StateDeadline = time.Time{} })
		s.log.Info("state timed out", zap.Stringer("state", snap.Current))
		ev := types.NewEvent(types.EvTimeout, types.StateLogo, "state_timeout", types.OriginTimer)
		s.conn.Publish(s.conn.NewMessage(bus.TopicEvent, ev, false))
	}

	// Logo alternation.
	if snap.Current == types.StateLogo && !snap.LogoAltAt.IsZero() && !now.Before(snap.LogoAltAt) {
		s.tracker.Update(func(st *status.SystemStatus) {
			st.LogoAlt = !st.LogoAlt
			st.LogoAltAt = now.Add(s.ui.LogoAlt())
		})
		s.publishRender(types.UIRenderCommand{
			Kind:         types.RenderLoadScreen,
			State:        types.StateLogo,
			ForceRefresh: true, // same state, different screen
			At:           now,
		}, false)
	}

	// Login phase flip: first screen gives way to the second once.
	if snap.Current == types.StateLogin && !snap.LoginPhaseAt.IsZero() && !now.Before(snap.LoginPhaseAt) {
		s.tracker.Update(func(st *status.SystemStatus) {
			st.LoginFirstScreen = false
			st.LoginPhaseAt = time.Time{}
		})
		s.publishRender(types.UIRenderCommand{
			Kind:         types.RenderLoadScreen,
			State:        types.StateLogin,
			ForceRefresh: true,
			At:           now,
		}, false)
	}
}
