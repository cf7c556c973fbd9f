// Package ble provides the BLE peripheral transport for the record
// button. It advertises one GATT service with a writable command
// characteristic, per-state indication characteristics, and a readable
// battery characteristic. Connection management and GATT internals stay
// behind the Transport interface; the gateway only sees tokens in and
// indications out.
package ble

import (
	"recbutton-go/types"
)

// Service and characteristic UUIDs (Nordic UART style layout).
const (
	ServiceUUID       = "7a1b0001-93a2-4c5e-8f4d-2e9b61a04c11"
	CommandCharUUID   = "7a1b0002-93a2-4c5e-8f4d-2e9b61a04c11" // Write
	UnlockCharUUID    = "7a1b0003-93a2-4c5e-8f4d-2e9b61a04c11" // Indicate
	RecordCharUUID    = "7a1b0004-93a2-4c5e-8f4d-2e9b61a04c11" // Indicate
	UploadCharUUID    = "7a1b0005-93a2-4c5e-8f4d-2e9b61a04c11" // Indicate
	BatteryCharUUID   = "7a1b0006-93a2-4c5e-8f4d-2e9b61a04c11" // Read/Notify
)

// Handlers receives transport callbacks. All callbacks run on the
// transport's goroutine and must not block.
type Handlers struct {
	// OnCommand delivers a raw inbound token written to the command
	// characteristic.
	OnCommand func(token string)

	// OnConnect reports central connect/disconnect.
	OnConnect func(connected bool)
}

// Transport is the narrow surface the rest of the system uses.
type Transport interface {
	// Start enables the adapter, registers the GATT service, and
	// begins advertising.
	Start(h Handlers) error

	// Indicate transmits payload on the characteristic associated with
	// state. States without an associated characteristic return
	// an error; the gateway treats that as a no-op upstream.
	Indicate(state types.SystemState, payload []byte) error

	// SetBattery updates the readable battery characteristic.
	SetBattery(percent string) error

	// Connected reports whether a central is currently connected.
	Connected() bool

	// ClearBonds drops the current central and forces re-pairing.
	ClearBonds() error

	// Close stops advertising and releases the adapter.
	Close() error
}
