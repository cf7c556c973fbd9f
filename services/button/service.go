package button

import (
	"context"
	"time"

	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/drivers/gpio"
)

// Service polls the physical input on a fixed cadence and publishes
// classified events on the button topic. It never blocks on hardware
// and has no knowledge of system state.
type Service struct {
	conn *bus.Connection
	in   gpio.Input
	cls  *Classifier
	poll time.Duration
	log  *zap.Logger
}

func New(conn *bus.Connection, in gpio.Input, cfg config.ButtonConfig, log *zap.Logger) *Service {
	return &Service{
		conn: conn,
		in:   in,
		cls:  NewClassifier(cfg.Debounce(), cfg.LongPress()),
		poll: cfg.Poll(),
		log:  log,
	}
}

// Start launches the polling loop.
func (s *Service) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) {
	tick := time.NewTicker(s.poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("button service stopping")
			return
		case now := <-tick.C:
			raw, err := s.in.Read()
			if err != nil {
				// Transient read failures are logged and skipped; the
				// next poll retries.
				s.log.Warn("button read failed", zap.Error(err))
				continue
			}
			ev := s.cls.Process(raw, now)
			if ev == nil {
				continue
			}
			s.log.Debug("button event",
				zap.Bool("pressed", ev.Pressed),
				zap.Duration("duration", ev.Duration),
				zap.Bool("long", ev.IsLongPress))
			s.conn.Publish(s.conn.NewMessage(bus.TopicButton, *ev, false))
		}
	}
}
