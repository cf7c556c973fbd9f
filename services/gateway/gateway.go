// Package gateway bridges the BLE transport and the event channel. The
// inbound path parses raw command tokens into transition requests; the
// outbound path sends state indications with retry, burst, and
// connection-health adaptation. The gateway never mutates system state
// itself.
package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/drivers/ble"
	"recbutton-go/errcode"
	"recbutton-go/status"
	"recbutton-go/types"
)

// indicationText maps the subset of states that carry an outbound
// indication. Other states are a no-op on the outbound path.
var indicationText = map[types.SystemState]string{
	types.StateUnlock:    "Unlock (Button)",
	types.StateRecording: "Record (Button)",
	types.StateUploading: "Upload (Button)",
}

type Service struct {
	conn      *bus.Connection
	tracker   *status.Tracker
	transport ble.Transport
	cfg       config.BLEConfig
	log       *zap.Logger

	mu     sync.Mutex
	health types.ConnectionHealth

	// Injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

func New(conn *bus.Connection, tracker *status.Tracker, transport ble.Transport, cfg config.BLEConfig, log *zap.Logger) *Service {
	return &Service{
		conn:      conn,
		tracker:   tracker,
		transport: transport,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Start registers the transport handlers and launches the inbound loop.
func (s *Service) Start(ctx context.Context) error {
	if err := s.transport.Start(ble.Handlers{
		OnCommand: s.onRawCommand,
		OnConnect: s.onConnect,
	}); err != nil {
		return err
	}
	go s.inboundLoop(ctx)
	return nil
}

// onRawCommand runs on the transport goroutine: it only forwards the
// token onto the bus, keeping the write callback non-blocking.
func (s *Service) onRawCommand(token string) {
	s.conn.Publish(s.conn.NewMessage(bus.TopicBLECommand,
		types.BLECommandMessage{Token: token, At: s.now()}, false))
}

func (s *Service) onConnect(connected bool) {
	now := s.now()
	s.mu.Lock()
	if connected {
		s.health.MarkConnected(now)
	} else {
		s.health.MarkDisconnected()
	}
	s.mu.Unlock()

	kind := types.EvBleConnected
	if !connected {
		kind = types.EvBleDisconnected
	}
	s.log.Info("ble link", zap.Bool("connected", connected))
	s.conn.Publish(s.conn.NewMessage(bus.TopicEvent,
		types.NewEvent(kind, s.tracker.Current(), "ble_link", types.OriginInternal), false))
}

// -----------------------------------------------------------------------------
// Inbound path
// -----------------------------------------------------------------------------

func (s *Service) inboundLoop(ctx context.Context) {
	sub := s.conn.Subscribe(bus.TopicBLECommand)
	defer s.conn.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("gateway stopping")
			return
		case msg := <-sub.Channel():
			cmd, ok := msg.Payload.(types.BLECommandMessage)
			if !ok {
				continue
			}
			s.handleToken(cmd)
		}
	}
}

func (s *Service) handleToken(cmd types.BLECommandMessage) {
	target, err := ParseToken(cmd.Token)
	if err != nil {
		s.log.Warn("rejected command token", zap.String("token", cmd.Token))
		return
	}

	if s.suppressed(target) {
		s.log.Debug("suppressed app command echo", zap.Stringer("target", target))
		return
	}

	ev := types.NewEvent(types.EvAppCommand, target, "app:"+cmd.Token, types.OriginApp)
	s.conn.Publish(s.conn.NewMessage(bus.TopicEvent, ev, false))
}

// suppressed reports whether target falls inside the active burst
// suppression window.
func (s *Service) suppressed(target types.SystemState) bool {
	snap := s.tracker.Snapshot()
	return snap.SuppressedState == target && s.now().Before(snap.SuppressUntil)
}

// ParseToken maps a raw wire token to its target state. "Login" matches
// by prefix (the app appends session suffixes); everything else is an
// exact, case-sensitive match.
func ParseToken(token string) (types.SystemState, error) {
	if strings.HasPrefix(token, "Login") {
		return types.StateLogin, nil
	}
	switch token {
	case "Unlock":
		return types.StateUnlock, nil
	case "Record":
		return types.StateRecording, nil
	case "Upload":
		return types.StateUploading, nil
	case "Logout":
		return types.StateLogo, nil
	case "Setup":
		return types.StateSetup, nil
	default:
		return types.StateStartup, errcode.InvalidToken
	}
}

// -----------------------------------------------------------------------------
// Outbound path
// -----------------------------------------------------------------------------

// Health returns a copy of the connection health record.
func (s *Service) Health() types.ConnectionHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// stableNow refreshes and reads the stability flag.
func (s *Service) stableNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.Refresh(s.now(), s.cfg.StabilityAge(), s.cfg.FailureCap)
	return s.health.Stable
}

// SendIndication transmits the indication associated with state. States
// without one are a no-op. The current state is re-verified immediately
// before every transmit attempt so a stale state is never indicated.
func (s *Service) SendIndication(state types.SystemState) error {
	text, ok := indicationText[state]
	if !ok {
		return nil
	}

	attempts := s.cfg.Retries
	if !s.stableNow() {
		attempts = s.cfg.RetriesShaky
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			s.sleep(s.cfg.Backoff())
		}
		if cur := s.tracker.Current(); cur != state {
			s.log.Debug("indication aborted, state moved on",
				zap.Stringer("wanted", state), zap.Stringer("current", cur))
			return errcode.StaleState
		}

		err := s.transport.Indicate(state, []byte(text))
		now := s.now()
		s.mu.Lock()
		if err == nil {
			s.health.RecordSuccess(now)
		} else {
			s.health.RecordFailure(s.cfg.FailureCap)
		}
		s.mu.Unlock()

		s.sleep(s.cfg.Settle())

		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Warn("indication attempt failed",
			zap.Stringer("state", state), zap.Int("attempt", i+1), zap.Error(err))
	}

	// Counted, never fatal: the connection-health budget already
	// widened for the next send.
	s.log.Warn("indication gave up", zap.Stringer("state", state), zap.Error(lastErr))
	return &errcode.E{C: errcode.SendFailed, Op: "SendIndication", Err: lastErr}
}

// SendBurst calls SendIndication repeats times with fixed spacing. When
// suppress is set, a suppression window against the same state is
// installed first so the app's acknowledgement of this burst cannot
// re-trigger a redundant transition request.
func (s *Service) SendBurst(state types.SystemState, repeats int, spacing time.Duration, suppress bool) {
	if repeats <= 0 {
		return
	}
	if suppress {
		window := time.Duration(repeats-1)*spacing + s.cfg.SuppressTail()
		until := s.now().Add(window)
		s.tracker.Update(func(st *status.SystemStatus) {
			st.SuppressedState = state
			st.SuppressUntil = until
		})
	}
	for i := 0; i < repeats; i++ {
		if i > 0 {
			s.sleep(spacing)
		}
		if err := s.SendIndication(state); err != nil {
			if errcode.Of(err) == errcode.StaleState {
				return
			}
		}
	}
}

// IndicateTransition runs the configured burst for a committed
// transition. Called by the controller after the state mutation is
// visible; runs on the controller's helper goroutine, not its loop.
func (s *Service) IndicateTransition(state types.SystemState) {
	s.SendBurst(state, s.cfg.BurstRepeats, s.cfg.BurstSpacing(), true)
}

// Unpair drops the current central and resets link health.
func (s *Service) Unpair() error {
	s.mu.Lock()
	s.health.MarkDisconnected()
	s.mu.Unlock()
	if err := s.transport.ClearBonds(); err != nil {
		return &errcode.E{C: errcode.HardwareFault, Op: "Unpair", Err: err}
	}
	return nil
}
