package display

import (
	"sync"
	"time"
)

// Op records a single call against the fake display.
type Op struct {
	Kind    string // "load", "message", "anim_start", "anim_stop", "progress", "clear"
	Screen  Screen
	Message string
	IsError bool
	Percent uint8
}

// Fake records every call for assertions.
type Fake struct {
	mu  sync.Mutex
	ops []Op

	FailWith error // returned from every call when set
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) record(op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return f.FailWith
	}
	f.ops = append(f.ops, op)
	return nil
}

func (f *Fake) LoadScreen(s Screen) error {
	return f.record(Op{Kind: "load", Screen: s})
}

func (f *Fake) ShowMessage(msg string, isError bool, d time.Duration) error {
	return f.record(Op{Kind: "message", Message: msg, IsError: isError})
}

func (f *Fake) StartAnimation(s Screen) error {
	return f.record(Op{Kind: "anim_start", Screen: s})
}

func (f *Fake) StopAnimation() error {
	return f.record(Op{Kind: "anim_stop"})
}

func (f *Fake) UpdateProgress(percent uint8) error {
	return f.record(Op{Kind: "progress", Percent: percent})
}

func (f *Fake) Clear() error {
	return f.record(Op{Kind: "clear"})
}

func (f *Fake) Close() error { return nil }

// Ops returns a copy of the recorded calls.
func (f *Fake) Ops() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Op, len(f.ops))
	copy(out, f.ops)
	return out
}

// LastLoaded returns the most recently loaded screen and whether any
// load has happened.
func (f *Fake) LastLoaded() (Screen, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.ops) - 1; i >= 0; i-- {
		if f.ops[i].Kind == "load" {
			return f.ops[i].Screen, true
		}
	}
	return ScreenBlank, false
}

// LoadCount returns how many LoadScreen calls were recorded.
func (f *Fake) LoadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, op := range f.ops {
		if op.Kind == "load" {
			n++
		}
	}
	return n
}
