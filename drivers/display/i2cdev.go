//go:build linux

package display

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const i2cSlave = 0x0703 // I2C_SLAVE from linux/i2c-dev.h

// I2CDev is a Linux i2c-dev bus, e.g. /dev/i2c-1. It implements the
// drivers.I2C contract used by the SSD1306 driver.
type I2CDev struct {
	mu   sync.Mutex
	f    *os.File
	addr uint16 // last selected slave address
}

// OpenI2C opens an i2c-dev character device.
func OpenI2C(path string) (*I2CDev, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &I2CDev{f: f}, nil
}

// Tx selects addr, writes w, then reads into r. Either slice may be
// empty.
func (d *I2CDev) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.addr != addr {
		if err := unix.IoctlSetInt(int(d.f.Fd()), i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("i2c: select 0x%02x: %w", addr, err)
		}
		d.addr = addr
	}
	if len(w) > 0 {
		if _, err := d.f.Write(w); err != nil {
			return fmt.Errorf("i2c: write 0x%02x: %w", addr, err)
		}
	}
	if len(r) > 0 {
		if _, err := d.f.Read(r); err != nil {
			return fmt.Errorf("i2c: read 0x%02x: %w", addr, err)
		}
	}
	return nil
}

func (d *I2CDev) Close() error {
	return d.f.Close()
}
