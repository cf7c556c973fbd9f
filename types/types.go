package types

import (
	"strconv"
	"time"
)

// ---- System state ----

// SystemState is the single operating mode of the device. Exactly one
// value is current at any time; Startup is the only initial value.
type SystemState uint8

const (
	StateStartup SystemState = iota
	StateLogo
	StateSetup
	StateLogin
	StateUnlock
	StateRecording
	StateUploading
	StateError
	StateShutdown

	stateCount
)

// Valid reports whether s is inside the declared enumeration.
func (s SystemState) Valid() bool { return s < stateCount }

func (s SystemState) String() string {
	switch s {
	case StateStartup:
		return "startup"
	case StateLogo:
		return "logo"
	case StateSetup:
		return "setup"
	case StateLogin:
		return "login"
	case StateUnlock:
		return "unlock"
	case StateRecording:
		return "recording"
	case StateUploading:
		return "uploading"
	case StateError:
		return "error"
	case StateShutdown:
		return "shutdown"
	default:
		return "invalid"
	}
}

// ---- Events ----

// EventKind tags a SystemEvent.
type EventKind uint8

const (
	EvStartupComplete EventKind = iota
	EvBleConnected
	EvBleDisconnected
	EvAppCommand
	EvButtonShortPress
	EvButtonLongPress
	EvTimeout
	EvError
	EvUnpairRequest
)

func (k EventKind) String() string {
	switch k {
	case EvStartupComplete:
		return "startup_complete"
	case EvBleConnected:
		return "ble_connected"
	case EvBleDisconnected:
		return "ble_disconnected"
	case EvAppCommand:
		return "app_command"
	case EvButtonShortPress:
		return "button_short"
	case EvButtonLongPress:
		return "button_long"
	case EvTimeout:
		return "timeout"
	case EvError:
		return "error"
	case EvUnpairRequest:
		return "unpair"
	default:
		return "unknown"
	}
}

// Origin identifies which actor produced a transition request.
type Origin uint8

const (
	OriginInternal Origin = iota
	OriginButton
	OriginApp
	OriginTimer
)

// MaxCauseLen bounds the free-text cause label on events.
const MaxCauseLen = 48

// SystemEvent is a transition request. Created by exactly one producer
// (button, gateway, timer or main) and consumed exactly once by the
// controller.
type SystemEvent struct {
	Kind     EventKind
	Target   SystemState // meaningful for AppCommand/Timeout/Error/Unpair
	Cause    string      // bounded by MaxCauseLen, see NewEvent
	Origin   Origin
	Duration time.Duration // button press duration, zero otherwise
	Critical bool          // for EvError only
	At       time.Time
}

// NewEvent builds an event with the cause label clamped to MaxCauseLen.
func NewEvent(kind EventKind, target SystemState, cause string, origin Origin) SystemEvent {
	if len(cause) > MaxCauseLen {
		cause = cause[:MaxCauseLen]
	}
	return SystemEvent{Kind: kind, Target: target, Cause: cause, Origin: origin, At: time.Now()}
}

// StateChange is the retained bus payload announcing a committed
// transition. Consumers (hardware reaction layer, diagnostics) treat it
// as read-only.
type StateChange struct {
	State    SystemState
	Previous SystemState
	Critical bool
	Cause    string
	Origin   Origin
	At       time.Time
}

// ---- UI render commands ----

type RenderKind uint8

const (
	RenderLoadScreen RenderKind = iota
	RenderShowMessage
	RenderStartAnimation
	RenderStopAnimation
	RenderUpdateProgress
	RenderClearScreen
)

// MaxMessageLen bounds transient display messages.
const MaxMessageLen = 64

// UIRenderCommand is produced only by the controller (directly or via
// the hardware service's hint path) and consumed only by the UI monitor.
type UIRenderCommand struct {
	Kind         RenderKind
	State        SystemState
	Message      string
	Duration     time.Duration
	Progress     uint8 // 0..100 for RenderUpdateProgress
	IsError      bool
	HighPriority bool
	ForceRefresh bool
	At           time.Time
}

// ---- BLE wire messages ----

// BLECommandMessage is an inbound raw token from the transport's write
// callback. The gateway converts it to a closed event immediately; raw
// strings never travel past the parse step.
type BLECommandMessage struct {
	Token string
	At    time.Time
}

// ---- Button events ----

// ButtonEvent is a debounced press/release observation.
// Pressed==true with IsLongPress set is the one-shot "held past
// threshold" fire; Pressed==false carries the measured hold duration.
type ButtonEvent struct {
	Pressed     bool
	Duration    time.Duration
	IsLongPress bool
	At          time.Time
}

// ---- Connection health ----

// ConnectionHealth tracks indication delivery quality. Failures degrade
// it gradually; a single success recovers it fully.
type ConnectionHealth struct {
	Connected           bool
	ConnectedAt         time.Time
	LastIndicationAt    time.Time
	ConsecutiveFailures int
	TotalSent           int
	Stable              bool
}

// RecordSuccess notes a delivered indication at now.
func (h *ConnectionHealth) RecordSuccess(now time.Time) {
	h.LastIndicationAt = now
	h.TotalSent++
	h.ConsecutiveFailures = 0
	h.Stable = true
}

// RecordFailure notes a failed attempt. The connection is marked
// unstable once failures exceed failureCap.
func (h *ConnectionHealth) RecordFailure(failureCap int) {
	h.ConsecutiveFailures++
	h.TotalSent++
	if h.ConsecutiveFailures > failureCap {
		h.Stable = false
	}
}

// MarkConnected resets health for a fresh connection.
func (h *ConnectionHealth) MarkConnected(now time.Time) {
	*h = ConnectionHealth{Connected: true, ConnectedAt: now}
}

func (h *ConnectionHealth) MarkDisconnected() {
	h.Connected = false
	h.Stable = false
}

// Refresh re-derives Stable from connection age and recent failures.
// Stability is only granted once the link has aged past stabilityAge
// with failures at or under the cap.
func (h *ConnectionHealth) Refresh(now time.Time, stabilityAge time.Duration, failureCap int) {
	if !h.Connected {
		h.Stable = false
		return
	}
	if h.ConsecutiveFailures > failureCap {
		h.Stable = false
		return
	}
	if now.Sub(h.ConnectedAt) >= stabilityAge {
		h.Stable = true
	}
}

// ---- Battery ----

// BatteryStatus is the retained battery reading.
type BatteryStatus struct {
	Percent  float64 // 0..100, one-decimal resolution
	MilliV   int     // averaged pack voltage
	Low      bool    // at or below the warning threshold
	SampleAt time.Time
}

// Label formats the percentage for display, one decimal place.
func (b BatteryStatus) Label() string {
	return strconv.FormatFloat(b.Percent, 'f', 1, 64) + "%"
}
