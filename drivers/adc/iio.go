//go:build linux

package adc

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// IIO reads raw ADC counts from a sysfs IIO channel file, e.g.
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type IIO struct {
	path string
	// ScaleMicroV converts one raw count to microvolts, from the
	// channel's in_voltage_scale (default 1000 = 1 mV/count).
	ScaleMicroV int
}

func NewIIO(path string, scaleMicroV int) *IIO {
	if scaleMicroV <= 0 {
		scaleMicroV = 1000
	}
	return &IIO{path: path, ScaleMicroV: scaleMicroV}
}

func (a *IIO) ReadMilliV() (int, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return 0, fmt.Errorf("adc: read %s: %w", a.path, err)
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("adc: parse %s: %w", a.path, err)
	}
	return raw * a.ScaleMicroV / 1000, nil
}
