// Package watchdog observes system liveness without taking part in the
// transition protocol. A stalled event loop or a runaway error counter
// is fatal: the supervisor requests a full restart, exactly once.
// Queue-pressure findings are non-fatal and surface as error events.
package watchdog

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/status"
	"recbutton-go/types"
)

// goroutineCeiling is the headroom proxy for task stacks: the daemon
// runs a fixed set of loops, so unbounded goroutine growth means a
// leak in one of them.
const goroutineCeiling = 64

type Service struct {
	conn    *bus.Connection
	tracker *status.Tracker
	b       *bus.Bus
	cfg     config.WatchdogConfig
	restart func()
	log     *zap.Logger

	now func() time.Time

	fired        bool
	lastDropWarn uint32
	warnedStacks bool
}

// New creates the supervisor. restart performs the full system restart
// (in production, exiting the process so the init system relaunches it).
func New(conn *bus.Connection, tracker *status.Tracker, b *bus.Bus, cfg config.WatchdogConfig, restart func(), log *zap.Logger) *Service {
	return &Service{
		conn:    conn,
		tracker: tracker,
		b:       b,
		cfg:     cfg,
		restart: restart,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) {
	tick := time.NewTicker(s.cfg.Interval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("watchdog stopping")
			return
		case <-tick.C:
			s.Check()
		}
	}
}

// Check runs one supervision pass.
func (s *Service) Check() {
	snap := s.tracker.Snapshot()
	now := s.now()

	stalled := now.Sub(snap.LastActivity) > s.cfg.ActivityCeiling()
	errorsOver := snap.ErrorCount > s.cfg.ErrorCap

	if stalled || errorsOver {
		if s.fired {
			return
		}
		s.fired = true
		s.log.Error("liveness failure, restarting",
			zap.Bool("stalled", stalled),
			zap.Int("error_count", snap.ErrorCount),
			zap.Time("last_activity", snap.LastActivity))
		s.restart()
		return
	}

	// Queue headroom: rising bus drop counts mean a consumer is not
	// keeping up. Non-fatal; the controller counts it as an error.
	drops := s.b.Drops()
	if drops-s.lastDropWarn >= s.cfg.DropWarnStep {
		s.lastDropWarn = drops
		s.log.Warn("queue pressure", zap.Uint32("total_drops", drops))
		s.raise("queue_pressure")
	}

	// Stack headroom proxy.
	if n := runtime.NumGoroutine(); n > goroutineCeiling && !s.warnedStacks {
		s.warnedStacks = true
		s.log.Warn("goroutine headroom low", zap.Int("count", n))
		s.raise("goroutine_headroom")
	}
}

func (s *Service) raise(cause string) {
	ev := types.NewEvent(types.EvError, types.StateError, cause, types.OriginInternal)
	s.conn.Publish(s.conn.NewMessage(bus.TopicEvent, ev, false))
	// Retained so diagnostics joining later still see the last finding.
	s.conn.Publish(s.conn.NewMessage(bus.TopicWatchdog, ev, true))
}

// Fired reports whether the restart has been requested.
func (s *Service) Fired() bool { return s.fired }
