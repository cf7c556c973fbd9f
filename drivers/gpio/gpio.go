// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device; the
// fake implementation allows testing without hardware.
package gpio

// Input reads a single logical input line. Implementations apply
// active-low inversion so callers only ever see pressed/not-pressed.
type Input interface {
	// Read returns the logical level of the line.
	Read() (bool, error)

	// Close releases the line.
	Close() error
}

// Output drives a single logical output line.
type Output interface {
	// Set drives the line to the logical level.
	Set(on bool) error

	// Close releases the line, leaving it driven low.
	Close() error
}
