// Package status holds the shared SystemStatus record behind a single
// lock. The controller is the only writer of the state fields; every
// other service reads point-in-time copies via Snapshot. Raw references
// never escape, so readers cannot observe torn updates.
package status

import (
	"sync"
	"time"

	"recbutton-go/types"
)

// SystemStatus is the whole shared record. Timers are plain data here
// (deadline fields) checked by the controller's housekeeping tick and
// disarmed by zeroing on state exit; nothing fires asynchronously.
type SystemStatus struct {
	Current        types.SystemState
	Previous       types.SystemState
	StateEnterTime time.Time
	StateDeadline  time.Time // zero = no timeout armed

	Connected bool
	UIReady   bool

	BatteryPercent float64
	ErrorCount     int

	// UI bookkeeping, written by the UI monitor only.
	LastRenderedState types.SystemState
	LastUIUpdate      time.Time
	MissedUpdates     int
	ForceRefresh      bool

	// Cyclic-flow bookkeeping.
	LoginFirstScreen bool
	LoginPhaseAt     time.Time // zero = login phase timer disarmed
	RecordingHint    bool      // show "hold to upload" on next recording render
	LogoAlt          bool
	LogoAltAt        time.Time // zero = logo alternation disarmed

	// App-command burst suppression window.
	SuppressedState types.SystemState
	SuppressUntil   time.Time

	// Liveness.
	LastActivity time.Time
}

// Tracker owns a SystemStatus behind one mutex.
type Tracker struct {
	mu sync.Mutex
	s  SystemStatus
}

// NewTracker creates a tracker in the Startup state.
func NewTracker(now time.Time) *Tracker {
	return &Tracker{s: SystemStatus{
		Current:           types.StateStartup,
		Previous:          types.StateStartup,
		StateEnterTime:    now,
		LastRenderedState: types.StateStartup,
		LastActivity:      now,
	}}
}

// Snapshot returns a copy of the current record. The copy is a value;
// it is safe to use after the lock is released.
func (t *Tracker) Snapshot() SystemStatus {
	t.mu.Lock()
	s := t.s
	t.mu.Unlock()
	return s
}

// Update applies fn to the record under the lock. fn must not block,
// publish to the bus, or touch hardware.
func (t *Tracker) Update(fn func(*SystemStatus)) {
	t.mu.Lock()
	fn(&t.s)
	t.mu.Unlock()
}

// Current returns the current state. Shorthand for the hot read path.
func (t *Tracker) Current() types.SystemState {
	t.mu.Lock()
	s := t.s.Current
	t.mu.Unlock()
	return s
}

// Touch refreshes the liveness timestamp.
func (t *Tracker) Touch(now time.Time) {
	t.mu.Lock()
	t.s.LastActivity = now
	t.mu.Unlock()
}
