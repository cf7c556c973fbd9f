package battery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/drivers/adc"
	"recbutton-go/drivers/ble"
	"recbutton-go/status"
	"recbutton-go/types"
)

type fixture struct {
	svc     *Service
	source  *adc.Fake
	sink    *ble.Fake
	tracker *status.Tracker
	battery *bus.Subscription
	events  *bus.Subscription
	now     time.Time
}

func newFixture(t *testing.T, cfg config.BatteryConfig) *fixture {
	t.Helper()
	b := bus.NewBus(16)
	tracker := status.NewTracker(time.Now())
	source := adc.NewFake()
	sink := ble.NewFake()

	svc := New(b.NewConnection("battery"), tracker, source, sink, cfg, zap.NewNop())

	test := b.NewConnection("test")
	f := &fixture{
		svc:     svc,
		source:  source,
		sink:    sink,
		tracker: tracker,
		battery: test.Subscribe(bus.TopicBattery),
		events:  test.Subscribe(bus.TopicEvent),
		now:     time.Unix(1700000000, 0),
	}
	svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) lastReading(t *testing.T) *types.BatteryStatus {
	t.Helper()
	var last *types.BatteryStatus
	for {
		select {
		case msg := <-f.battery.Channel():
			st, ok := msg.Payload.(types.BatteryStatus)
			require.True(t, ok)
			last = &st
		default:
			return last
		}
	}
}

func TestSamplePublishesAveragedReading(t *testing.T) {
	cfg := config.Default().Battery
	f := newFixture(t, cfg)

	// Divider ratio 2.0: 1875mV at the pin is 3750mV pack.
	f.source.SetSamples(1870, 1880, 1875, 1875, 1875, 1875, 1875, 1875)
	f.svc.Sample()

	st := f.lastReading(t)
	require.NotNil(t, st)
	assert.Equal(t, 3750, st.MilliV)
	// (3750-3300)/(4200-3300) = 50.0%
	assert.Equal(t, 50.0, st.Percent)
	assert.False(t, st.Low)

	assert.Equal(t, 50.0, f.tracker.Snapshot().BatteryPercent)
	assert.Equal(t, "50.0%", f.sink.Battery)
}

func TestPercentClamps(t *testing.T) {
	cfg := config.Default().Battery
	f := newFixture(t, cfg)

	assert.Equal(t, 100.0, f.svc.percent(5000))
	assert.Equal(t, 0.0, f.svc.percent(3000))
	assert.Equal(t, 0.0, f.svc.percent(cfg.EmptyMilliV))
	assert.Equal(t, 100.0, f.svc.percent(cfg.FullMilliV))
}

func TestLowBatteryWarnsOnce(t *testing.T) {
	cfg := config.Default().Battery
	f := newFixture(t, cfg)

	// 3400mV pack is ~11.1%, under the 15% warning line.
	f.source.SetSamples(1700)
	f.svc.Sample()

	st := f.lastReading(t)
	require.NotNil(t, st)
	assert.True(t, st.Low)

	ev := nextEvent(f.events)
	require.NotNil(t, ev)
	assert.Equal(t, types.EvError, ev.Kind)
	assert.Equal(t, "battery_low", ev.Cause)
	assert.False(t, ev.Critical, "low battery must not enter Error state")

	// Still low on the next sample: no second warning.
	f.svc.Sample()
	assert.Nil(t, nextEvent(f.events))

	// Recovery re-arms the warning.
	f.source.SetSamples(2000)
	f.svc.Sample()
	assert.Nil(t, nextEvent(f.events))
	f.source.SetSamples(1700)
	f.svc.Sample()
	assert.NotNil(t, nextEvent(f.events))
}

func TestReadFailureSkipsPublish(t *testing.T) {
	cfg := config.Default().Battery
	f := newFixture(t, cfg)

	f.source.FailReads(assert.AnError)
	f.svc.Sample()
	assert.Nil(t, f.lastReading(t))
}

func TestPartialWindowStillAverages(t *testing.T) {
	cfg := config.Default().Battery
	cfg.Samples = 4
	f := newFixture(t, cfg)

	// The script has a single value; repeats fill the window.
	f.source.SetSamples(1875)
	f.svc.Sample()

	st := f.lastReading(t)
	require.NotNil(t, st)
	assert.Equal(t, 3750, st.MilliV)
}

func nextEvent(sub *bus.Subscription) *types.SystemEvent {
	select {
	case msg := <-sub.Channel():
		if ev, ok := msg.Payload.(types.SystemEvent); ok {
			return &ev
		}
		return nil
	default:
		return nil
	}
}
