// Package battery samples the pack voltage and publishes the charge
// level. The reading is averaged over a sample window, scaled by the
// divider ratio and mapped linearly between the empty and full points.
package battery

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/drivers/adc"
	"recbutton-go/status"
	"recbutton-go/types"
	"recbutton-go/x/mathx"
)

// LevelSink receives the battery level for the BLE battery service
// characteristic.
type LevelSink interface {
	SetBattery(percent string) error
}

type Service struct {
	conn    *bus.Connection
	tracker *status.Tracker
	source  adc.VoltageSource
	sink    LevelSink
	cfg     config.BatteryConfig
	log     *zap.Logger

	now func() time.Time

	lowWarned bool
}

func New(conn *bus.Connection, tracker *status.Tracker, source adc.VoltageSource, sink LevelSink, cfg config.BatteryConfig, log *zap.Logger) *Service {
	return &Service{
		conn:    conn,
		tracker: tracker,
		source:  source,
		sink:    sink,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) {
	// Take one reading right away so the retained topic is populated
	// before the first interval elapses.
	s.Sample()

	tick := time.NewTicker(s.cfg.Interval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("battery service stopping")
			return
		case <-tick.C:
			s.Sample()
		}
	}
}

// Sample reads the averaged pack voltage once and publishes the result.
func (s *Service) Sample() {
	mv, err := s.average()
	if err != nil {
		s.log.Warn("battery read failed", zap.Error(err))
		return
	}

	st := types.BatteryStatus{
		Percent:  s.percent(mv),
		MilliV:   mv,
		SampleAt: s.now(),
	}
	st.Low = st.Percent <= s.cfg.LowWarnPct

	s.tracker.Update(func(ss *status.SystemStatus) {
		ss.BatteryPercent = st.Percent
	})
	s.conn.Publish(s.conn.NewMessage(bus.TopicBattery, st, true))
	if s.sink != nil {
		if err := s.sink.SetBattery(st.Label()); err != nil {
			s.log.Warn("battery characteristic update failed", zap.Error(err))
		}
	}

	if st.Low && !s.lowWarned {
		s.lowWarned = true
		s.log.Warn("battery low", zap.String("level", st.Label()))
		s.conn.Publish(s.conn.NewMessage(bus.TopicEvent, types.NewEvent(
			types.EvError, types.StateError, "battery_low", types.OriginInternal), false))
		s.conn.Publish(s.conn.NewMessage(bus.TopicRender, types.UIRenderCommand{
			Kind:     types.RenderShowMessage,
			Message:  "LOW BATTERY " + st.Label(),
			Duration: 3 * time.Second,
			At:       s.now(),
		}, false))
	}
	if !st.Low {
		s.lowWarned = false
	}
}

// average reads the configured number of samples and returns the mean
// pack voltage in millivolts, after divider scaling.
func (s *Service) average() (int, error) {
	sum := 0
	got := 0
	for i := 0; i < s.cfg.Samples; i++ {
		mv, err := s.source.ReadMilliV()
		if err != nil {
			if got == 0 {
				return 0, err
			}
			continue // partial window is still usable
		}
		sum += mv
		got++
	}
	mean := float64(sum) / float64(got)
	return int(math.Round(mean * s.cfg.DividerRatio)), nil
}

// percent maps pack millivolts linearly onto 0..100, one-decimal
// resolution, clamped at both ends.
func (s *Service) percent(mv int) float64 {
	span := float64(s.cfg.FullMilliV - s.cfg.EmptyMilliV)
	p := float64(mv-s.cfg.EmptyMilliV) / span * 100
	p = mathx.Clamp(p, 0, 100)
	return math.Round(p*10) / 10
}
