// Package hardware translates the committed state into LED and buzzer
// output. It is a thin consumer: it subscribes to state announcements
// and button events and drives output lines; it never requests
// transitions and never touches the status record.
package hardware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/drivers/gpio"
	"recbutton-go/types"
)

// pattern is the per-state LED/buzzer recipe.
type pattern struct {
	red, green, blue bool
	blink            bool
	buzzPulse        time.Duration
	buzzRepeat       int
}

func patternFor(state types.SystemState) pattern {
	switch state {
	case types.StateLogo:
		return pattern{green: true}
	case types.StateSetup:
		return pattern{blue: true, blink: true}
	case types.StateLogin:
		return pattern{blue: true}
	case types.StateUnlock:
		return pattern{green: true, blink: true}
	case types.StateRecording:
		return pattern{red: true, buzzPulse: 100 * time.Millisecond, buzzRepeat: 1}
	case types.StateUploading:
		return pattern{red: true, blink: true, buzzPulse: 80 * time.Millisecond, buzzRepeat: 2}
	case types.StateError:
		return pattern{red: true, blink: true, buzzPulse: 200 * time.Millisecond, buzzRepeat: 3}
	default:
		return pattern{}
	}
}

type Service struct {
	conn   *bus.Connection
	red    gpio.Output
	green  gpio.Output
	blue   gpio.Output
	buzzer gpio.Output
	log    *zap.Logger

	now func() time.Time

	cur      pattern
	blinkOn  bool
	buzzLeft int       // pulses remaining
	buzzOn   bool      // buzzer currently sounding
	buzzFlip time.Time // next buzzer edge; zero = idle
	buzzLen  time.Duration
}

func New(conn *bus.Connection, red, green, blue, buzzer gpio.Output, log *zap.Logger) *Service {
	return &Service{
		conn:   conn,
		red:    red,
		green:  green,
		blue:   blue,
		buzzer: buzzer,
		log:    log,
		now:    time.Now,
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) {
	stateSub := s.conn.Subscribe(bus.TopicState)
	btnSub := s.conn.Subscribe(bus.TopicButton)
	defer s.conn.Unsubscribe(stateSub)
	defer s.conn.Unsubscribe(btnSub)

	// One ticker drives blinking and the buzzer pulse train; both are
	// deadline data checked per tick, never free-running callbacks.
	tick := time.NewTicker(125 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.allOff()
			s.log.Info("hardware service stopping")
			return

		case msg := <-stateSub.Channel():
			sc, ok := msg.Payload.(types.StateChange)
			if !ok {
				continue
			}
			s.applyState(sc)

		case msg := <-btnSub.Channel():
			be, ok := msg.Payload.(types.ButtonEvent)
			if !ok {
				continue
			}
			// Tactile ack: one short pulse on the press edge only.
			if be.Pressed && !be.IsLongPress {
				s.startBuzz(30*time.Millisecond, 1)
			}

		case <-tick.C:
			s.tick()
		}
	}
}

func (s *Service) applyState(sc types.StateChange) {
	s.cur = patternFor(sc.State)
	s.blinkOn = true
	s.applyLEDs(true)
	if s.cur.buzzRepeat > 0 {
		s.startBuzz(s.cur.buzzPulse, s.cur.buzzRepeat)
	}
}

func (s *Service) tick() {
	if s.cur.blink {
		s.blinkOn = !s.blinkOn
		s.applyLEDs(s.blinkOn)
	}

	if s.buzzFlip.IsZero() || s.now().Before(s.buzzFlip) {
		return
	}
	if s.buzzOn {
		// End of a pulse.
		s.buzzOn = false
		s.setOut(s.buzzer, false)
		s.buzzLeft--
		if s.buzzLeft <= 0 {
			s.buzzFlip = time.Time{}
			return
		}
		s.buzzFlip = s.now().Add(s.buzzLen) // inter-pulse gap
	} else {
		s.buzzOn = true
		s.setOut(s.buzzer, true)
		s.buzzFlip = s.now().Add(s.buzzLen)
	}
}

func (s *Service) startBuzz(pulse time.Duration, repeat int) {
	s.buzzLen = pulse
	s.buzzLeft = repeat
	s.buzzOn = true
	s.buzzFlip = s.now().Add(pulse)
	s.setOut(s.buzzer, true)
}

func (s *Service) applyLEDs(on bool) {
	s.setOut(s.red, on && s.cur.red)
	s.setOut(s.green, on && s.cur.green)
	s.setOut(s.blue, on && s.cur.blue)
}

func (s *Service) allOff() {
	s.setOut(s.red, false)
	s.setOut(s.green, false)
	s.setOut(s.blue, false)
	s.setOut(s.buzzer, false)
}

func (s *Service) setOut(out gpio.Output, on bool) {
	if err := out.Set(on); err != nil {
		s.log.Warn("output line failed", zap.Error(err))
	}
}
