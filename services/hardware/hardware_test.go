package hardware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/drivers/gpio"
	"recbutton-go/types"
)

type fixture struct {
	b      *bus.Bus
	svc    *Service
	red    *gpio.FakeOutput
	green  *gpio.FakeOutput
	blue   *gpio.FakeOutput
	buzzer *gpio.FakeOutput
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bus.NewBus(16)
	f := &fixture{
		b:      b,
		red:    gpio.NewFakeOutput(),
		green:  gpio.NewFakeOutput(),
		blue:   gpio.NewFakeOutput(),
		buzzer: gpio.NewFakeOutput(),
		now:    time.Unix(1700000000, 0),
	}
	f.svc = New(b.NewConnection("hardware"), f.red, f.green, f.blue, f.buzzer, zap.NewNop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestPatternTable(t *testing.T) {
	assert.Equal(t, pattern{green: true}, patternFor(types.StateLogo))
	assert.Equal(t, pattern{}, patternFor(types.StateStartup))
	assert.Equal(t, pattern{}, patternFor(types.StateShutdown))

	rec := patternFor(types.StateRecording)
	assert.True(t, rec.red)
	assert.False(t, rec.blink)
	assert.Equal(t, 1, rec.buzzRepeat)

	errp := patternFor(types.StateError)
	assert.True(t, errp.red)
	assert.True(t, errp.blink)
	assert.Equal(t, 3, errp.buzzRepeat)
}

func TestStateDrivesLEDs(t *testing.T) {
	f := newFixture(t)

	f.svc.applyState(types.StateChange{State: types.StateLogo})
	assert.True(t, f.green.Level())
	assert.False(t, f.red.Level())
	assert.False(t, f.blue.Level())

	f.svc.applyState(types.StateChange{State: types.StateRecording})
	assert.True(t, f.red.Level())
	assert.False(t, f.green.Level())
	assert.True(t, f.buzzer.Level(), "recording entry chirps")
}

func TestBlinkTogglesOnTick(t *testing.T) {
	f := newFixture(t)
	f.svc.applyState(types.StateChange{State: types.StateSetup})
	require.True(t, f.blue.Level())

	f.svc.tick()
	assert.False(t, f.blue.Level())
	f.svc.tick()
	assert.True(t, f.blue.Level())
}

func TestBuzzerPulseTrainCompletes(t *testing.T) {
	f := newFixture(t)
	f.svc.applyState(types.StateChange{State: types.StateError}) // 3 pulses of 200ms
	require.True(t, f.buzzer.Level())

	pulses := 1
	for i := 0; i < 20; i++ {
		f.now = f.now.Add(200 * time.Millisecond)
		wasOn := f.svc.buzzOn
		f.svc.tick()
		if !wasOn && f.svc.buzzOn {
			pulses++
		}
	}
	assert.Equal(t, 3, pulses)
	assert.False(t, f.buzzer.Level())
	assert.True(t, f.svc.buzzFlip.IsZero(), "train is disarmed when done")
}

func TestPressEdgeChirps(t *testing.T) {
	f := newFixture(t)
	f.svc.Start(t.Context())
	conn := f.b.NewConnection("test")

	// The clock is pinned, so a started pulse never ends: the buzzer
	// level is a latch for whether the ack sounded.
	conn.Publish(conn.NewMessage(bus.TopicButton,
		types.ButtonEvent{Pressed: true, At: f.now}, false))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !f.buzzer.Level() {
		time.Sleep(2 * time.Millisecond)
	}
	assert.True(t, f.buzzer.Level(), "press edge sounds the ack pulse")
}

func TestHoldFireAndReleaseDoNotChirp(t *testing.T) {
	f := newFixture(t)
	f.svc.Start(t.Context())
	conn := f.b.NewConnection("test")

	conn.Publish(conn.NewMessage(bus.TopicButton,
		types.ButtonEvent{Pressed: true, IsLongPress: true, At: f.now}, false))
	conn.Publish(conn.NewMessage(bus.TopicButton,
		types.ButtonEvent{Pressed: false, Duration: 100 * time.Millisecond, At: f.now}, false))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, f.buzzer.Level())
}

func TestSteadyPatternDoesNotBlink(t *testing.T) {
	f := newFixture(t)
	f.svc.applyState(types.StateChange{State: types.StateLogin})
	require.True(t, f.blue.Level())

	f.svc.tick()
	f.svc.tick()
	assert.True(t, f.blue.Level())
}
