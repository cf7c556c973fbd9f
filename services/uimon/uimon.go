// Package uimon consumes render commands and keeps the display in
// lock-step with the actual system state. A dropped or lost render
// command is tolerated: two periodic checks detect drift and freezes
// and force a resync to the true current state.
package uimon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/drivers/display"
	"recbutton-go/status"
	"recbutton-go/types"
)

type Service struct {
	conn    *bus.Connection
	tracker *status.Tracker
	disp    display.Display
	cfg     config.UIConfig
	log     *zap.Logger

	now func() time.Time
}

func New(conn *bus.Connection, tracker *status.Tracker, disp display.Display, cfg config.UIConfig, log *zap.Logger) *Service {
	return &Service{
		conn:    conn,
		tracker: tracker,
		disp:    disp,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Start marks the UI ready and launches the render loop.
func (s *Service) Start(ctx context.Context) {
	now := s.now()
	s.tracker.Update(func(st *status.SystemStatus) {
		st.UIReady = true
		st.LastUIUpdate = now
	})
	go s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) {
	sub := s.conn.Subscribe(bus.TopicRender)
	defer s.conn.Unsubscribe(sub)

	reconcile := time.NewTicker(s.cfg.Reconcile())
	defer reconcile.Stop()
	freeze := time.NewTicker(s.cfg.FreezeCheck())
	defer freeze.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("ui monitor stopping")
			return
		case msg := <-sub.Channel():
			cmd, ok := msg.Payload.(types.UIRenderCommand)
			if !ok {
				continue
			}
			s.HandleRender(cmd)
		case <-reconcile.C:
			s.Reconcile()
		case <-freeze.C:
			s.CheckFreeze()
		}
	}
}

// HandleRender executes one render command.
func (s *Service) HandleRender(cmd types.UIRenderCommand) {
	switch cmd.Kind {
	case types.RenderLoadScreen:
		s.loadScreen(cmd)
	case types.RenderShowMessage:
		if err := s.disp.ShowMessage(cmd.Message, cmd.IsError, cmd.Duration); err != nil {
			s.log.Warn("show message failed", zap.Error(err))
		}
	case types.RenderStartAnimation:
		if err := s.disp.StartAnimation(s.screenFor(cmd.State)); err != nil {
			s.log.Warn("start animation failed", zap.Error(err))
		}
	case types.RenderStopAnimation:
		if err := s.disp.StopAnimation(); err != nil {
			s.log.Warn("stop animation failed", zap.Error(err))
		}
	case types.RenderUpdateProgress:
		if err := s.disp.UpdateProgress(cmd.Progress); err != nil {
			s.log.Warn("update progress failed", zap.Error(err))
		}
	case types.RenderClearScreen:
		if err := s.disp.Clear(); err != nil {
			s.log.Warn("clear failed", zap.Error(err))
		}
	}
}

func (s *Service) loadScreen(cmd types.UIRenderCommand) {
	snap := s.tracker.Snapshot()

	// Idempotence: re-loading the screen already shown is a no-op
	// unless forced. The miss is still counted for health reporting.
	if cmd.State == snap.LastRenderedState && !cmd.ForceRefresh && !cmd.HighPriority {
		s.tracker.Update(func(st *status.SystemStatus) { st.MissedUpdates++ })
		return
	}

	screen := s.screenFor(cmd.State)
	if err := s.disp.LoadScreen(screen); err != nil {
		s.log.Warn("load screen failed", zap.Stringer("screen", screen), zap.Error(err))
		return
	}

	now := s.now()
	s.tracker.Update(func(st *status.SystemStatus) {
		st.LastRenderedState = cmd.State
		st.LastUIUpdate = now
		st.ForceRefresh = false
	})
	s.log.Debug("rendered", zap.Stringer("screen", screen))
}

// screenFor resolves a state to its screen. Login and Logo have
// alternates selected by controller-owned phase flags.
func (s *Service) screenFor(state types.SystemState) display.Screen {
	snap := s.tracker.Snapshot()
	switch state {
	case types.StateLogo:
		if snap.LogoAlt {
			return display.ScreenLogoAlt
		}
		return display.ScreenLogo
	case types.StateSetup:
		return display.ScreenSetup
	case types.StateLogin:
		if snap.LoginFirstScreen {
			return display.ScreenLoginFirst
		}
		return display.ScreenLoginSecond
	case types.StateUnlock:
		return display.ScreenUnlock
	case types.StateRecording:
		return display.ScreenRecording
	case types.StateUploading:
		return display.ScreenUploading
	case types.StateError:
		return display.ScreenError
	case types.StateShutdown:
		return display.ScreenShutdown
	default:
		return display.ScreenBlank
	}
}

// Reconcile compares the actual state against the rendered one and
// force-resyncs on drift or a pending force-refresh. This is the
// self-healing path for a lost render command.
func (s *Service) Reconcile() {
	snap := s.tracker.Snapshot()
	if snap.Current == snap.LastRenderedState && !snap.ForceRefresh {
		return
	}
	s.log.Warn("ui drift detected",
		zap.Stringer("state", snap.Current),
		zap.Stringer("rendered", snap.LastRenderedState))
	s.resync(snap.Current)
}

// CheckFreeze detects a starved render path (no render for longer than
// the freeze window) and performs the same forced resync.
func (s *Service) CheckFreeze() {
	snap := s.tracker.Snapshot()
	if s.now().Sub(snap.LastUIUpdate) <= s.cfg.FreezeAfter() {
		return
	}
	s.log.Warn("ui freeze detected",
		zap.Time("last_update", snap.LastUIUpdate))
	s.resync(snap.Current)
}

func (s *Service) resync(state types.SystemState) {
	s.HandleRender(types.UIRenderCommand{
		Kind:         types.RenderLoadScreen,
		State:        state,
		HighPriority: true,
		ForceRefresh: true,
		At:           s.now(),
	})
}
