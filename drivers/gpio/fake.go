package gpio

import "sync"

// FakeInput is a test double whose level is set by the test.
type FakeInput struct {
	mu        sync.Mutex
	level     bool
	readErr   error
	closed    bool
	readCount int
}

func NewFakeInput() *FakeInput { return &FakeInput{} }

// SetLevel sets the logical level returned by Read.
func (f *FakeInput) SetLevel(on bool) {
	f.mu.Lock()
	f.level = on
	f.mu.Unlock()
}

// FailReads makes Read return err until cleared with nil.
func (f *FakeInput) FailReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

func (f *FakeInput) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCount++
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.level, nil
}

func (f *FakeInput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakeInput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeInput) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCount
}

// FakeOutput records the levels it was driven to.
type FakeOutput struct {
	mu     sync.Mutex
	level  bool
	sets   int
	closed bool
}

func NewFakeOutput() *FakeOutput { return &FakeOutput{} }

func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	f.level = on
	f.sets++
	f.mu.Unlock()
	return nil
}

func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.level = false
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

func (f *FakeOutput) Sets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}
