package ble

import (
	"errors"
	"sync"

	"recbutton-go/types"
)

// Fake is a scriptable Transport for tests. Indication attempts can be
// made to fail per-attempt via FailNext, and every transmitted payload
// is recorded.
type Fake struct {
	mu        sync.Mutex
	started   bool
	connected bool
	handlers  Handlers

	failQueue []error // consumed one per Indicate attempt
	failAll   error   // returned when failQueue is empty and set

	Sent    []SentIndication
	Battery string
	Cleared int
}

type SentIndication struct {
	State   types.SystemState
	Payload string
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) Start(h Handlers) error {
	f.mu.Lock()
	f.handlers = h
	f.started = true
	f.mu.Unlock()
	return nil
}

// Connect simulates a central connecting or disconnecting.
func (f *Fake) Connect(connected bool) {
	f.mu.Lock()
	f.connected = connected
	onConnect := f.handlers.OnConnect
	f.mu.Unlock()
	if onConnect != nil {
		onConnect(connected)
	}
}

// WriteCommand simulates the phone writing a token to the command
// characteristic.
func (f *Fake) WriteCommand(token string) {
	f.mu.Lock()
	onCommand := f.handlers.OnCommand
	f.mu.Unlock()
	if onCommand != nil {
		onCommand(token)
	}
}

// FailNext queues n failing attempts before sends succeed again.
func (f *Fake) FailNext(n int) {
	f.mu.Lock()
	for i := 0; i < n; i++ {
		f.failQueue = append(f.failQueue, errors.New("fake: indicate failed"))
	}
	f.mu.Unlock()
}

// FailAll makes every attempt fail until cleared with nil.
func (f *Fake) FailAll(err error) {
	f.mu.Lock()
	f.failAll = err
	f.mu.Unlock()
}

func (f *Fake) Indicate(state types.SystemState, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failQueue) > 0 {
		err := f.failQueue[0]
		f.failQueue = f.failQueue[1:]
		return err
	}
	if f.failAll != nil {
		return f.failAll
	}
	if !f.connected {
		return errors.New("fake: not connected")
	}
	f.Sent = append(f.Sent, SentIndication{State: state, Payload: string(payload)})
	return nil
}

func (f *Fake) SetBattery(percent string) error {
	f.mu.Lock()
	f.Battery = percent
	f.mu.Unlock()
	return nil
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) ClearBonds() error {
	f.mu.Lock()
	f.Cleared++
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) Close() error { return nil }

// SentCount returns the number of successfully transmitted indications.
func (f *Fake) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// LastSent returns the most recent indication, or nil.
func (f *Fake) LastSent() *SentIndication {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return nil
	}
	s := f.Sent[len(f.Sent)-1]
	return &s
}
