//go:build linux

package ble

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"recbutton-go/types"
)

// BlueZ is the Linux Transport implementation on top of the BlueZ
// stack via tinygo.org/x/bluetooth.
type BlueZ struct {
	name    string
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement

	mu        sync.Mutex
	connected bool
	handlers  Handlers

	cmdChar    bluetooth.Characteristic
	unlockChar bluetooth.Characteristic
	recordChar bluetooth.Characteristic
	uploadChar bluetooth.Characteristic
	battChar   bluetooth.Characteristic
}

// NewBlueZ creates a transport advertising under the given local name.
func NewBlueZ(name string) *BlueZ {
	return &BlueZ{name: name, adapter: bluetooth.DefaultAdapter}
}

func (t *BlueZ) Start(h Handlers) error {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()

	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		t.mu.Lock()
		t.connected = connected
		onConnect := t.handlers.OnConnect
		t.mu.Unlock()
		if onConnect != nil {
			onConnect(connected)
		}
	})

	svcUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service uuid: %w", err)
	}

	svc := bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &t.cmdChar,
				UUID:   mustUUID(CommandCharUUID),
				Flags: bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					t.mu.Lock()
					onCommand := t.handlers.OnCommand
					t.mu.Unlock()
					if onCommand != nil && len(value) > 0 {
						onCommand(string(value))
					}
				},
			},
			{
				Handle: &t.unlockChar,
				UUID:   mustUUID(UnlockCharUUID),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicIndicatePermission,
			},
			{
				Handle: &t.recordChar,
				UUID:   mustUUID(RecordCharUUID),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicIndicatePermission,
			},
			{
				Handle: &t.uploadChar,
				UUID:   mustUUID(UploadCharUUID),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicIndicatePermission,
			},
			{
				Handle: &t.battChar,
				UUID:   mustUUID(BatteryCharUUID),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
		},
	}
	if err := t.adapter.AddService(&svc); err != nil {
		return fmt.Errorf("ble: add service: %w", err)
	}

	t.adv = t.adapter.DefaultAdvertisement()
	if err := t.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    t.name,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := t.adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	return nil
}

func (t *BlueZ) charFor(state types.SystemState) *bluetooth.Characteristic {
	switch state {
	case types.StateUnlock:
		return &t.unlockChar
	case types.StateRecording:
		return &t.recordChar
	case types.StateUploading:
		return &t.uploadChar
	default:
		return nil
	}
}

func (t *BlueZ) Indicate(state types.SystemState, payload []byte) error {
	ch := t.charFor(state)
	if ch == nil {
		return fmt.Errorf("ble: no characteristic for state %s", state)
	}
	if !t.Connected() {
		return fmt.Errorf("ble: not connected")
	}
	if _, err := ch.Write(payload); err != nil {
		return fmt.Errorf("ble: indicate %s: %w", state, err)
	}
	return nil
}

func (t *BlueZ) SetBattery(percent string) error {
	if _, err := t.battChar.Write([]byte(percent)); err != nil {
		return fmt.Errorf("ble: set battery: %w", err)
	}
	return nil
}

func (t *BlueZ) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// ClearBonds drops the current central by cycling the advertisement.
// Bond records themselves are managed by the BlueZ agent; cycling the
// advertisement forces the phone back through pairing.
func (t *BlueZ) ClearBonds() error {
	if t.adv == nil {
		return nil
	}
	if err := t.adv.Stop(); err != nil {
		return fmt.Errorf("ble: stop advertising: %w", err)
	}
	if err := t.adv.Start(); err != nil {
		return fmt.Errorf("ble: restart advertising: %w", err)
	}
	return nil
}

func (t *BlueZ) Close() error {
	if t.adv != nil {
		return t.adv.Stop()
	}
	return nil
}

func mustUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic("ble: bad uuid constant: " + s)
	}
	return u
}
