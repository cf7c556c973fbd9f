package adc

import (
	"errors"
	"sync"
)

// Fake returns scripted millivolt readings. Each call consumes the
// next sample; when exhausted, the last sample repeats.
type Fake struct {
	mu      sync.Mutex
	samples []int
	index   int
	readErr error
}

func NewFake(samples ...int) *Fake { return &Fake{samples: samples} }

// SetSamples replaces the script and rewinds.
func (f *Fake) SetSamples(samples ...int) {
	f.mu.Lock()
	f.samples = samples
	f.index = 0
	f.mu.Unlock()
}

// FailReads makes ReadMilliV return err until cleared with nil.
func (f *Fake) FailReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

func (f *Fake) ReadMilliV() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.samples) == 0 {
		return 0, errors.New("adc: no samples configured")
	}
	v := f.samples[f.index]
	if f.index < len(f.samples)-1 {
		f.index++
	}
	return v, nil
}
