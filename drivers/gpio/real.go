//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealInput reads a line from actual hardware via the Linux GPIO
// character device.
type RealInput struct {
	line *gpiocdev.Line
}

// NewRealInput requests line offset on chip as an input. activeLow
// requests hardware inversion so Read returns the logical level (for
// the button: true = pressed).
func NewRealInput(chip string, offset int, activeLow bool) (*RealInput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input line %d on %s: %w", offset, chip, err)
	}
	return &RealInput{line: line}, nil
}

func (r *RealInput) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line: %w", err)
	}
	return v != 0, nil
}

func (r *RealInput) Close() error {
	return r.line.Close()
}

// RealOutput drives a line via the Linux GPIO character device.
type RealOutput struct {
	line *gpiocdev.Line
}

// NewRealOutput requests line offset on chip as an output, initially low.
func NewRealOutput(chip string, offset int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output line %d on %s: %w", offset, chip, err)
	}
	return &RealOutput{line: line}, nil
}

func (r *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set line: %w", err)
	}
	return nil
}

func (r *RealOutput) Close() error {
	_ = r.line.SetValue(0)
	return r.line.Close()
}
