package display

import (
	"image/color"
	"sync"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ssd1306"
)

// OLED renders on a 128x64 SSD1306 over I2C. Screens are drawn as
// large text banners; this is the whole rendering engine for the
// device, which has no bitmap assets.
type OLED struct {
	mu  sync.Mutex
	dev *ssd1306.Device
}

const (
	oledWidth  = 128
	oledHeight = 64
)

var pixelOn = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// NewOLED configures an SSD1306 on the given I2C bus at addr
// (typically 0x3C).
func NewOLED(i2c drivers.I2C, addr uint16) (*OLED, error) {
	dev := ssd1306.NewI2C(i2c)
	dev.Configure(ssd1306.Config{Address: addr, Width: oledWidth, Height: oledHeight})
	o := &OLED{dev: dev}
	o.dev.ClearBuffer()
	if err := o.dev.Display(); err != nil {
		return nil, err
	}
	return o, nil
}

func screenLabel(s Screen) string {
	switch s {
	case ScreenLogo:
		return "CAMKEY"
	case ScreenLogoAlt:
		return "READY"
	case ScreenSetup:
		return "SETUP"
	case ScreenLoginFirst:
		return "LOGIN"
	case ScreenLoginSecond:
		return "LOGIN.."
	case ScreenUnlock:
		return "UNLOCK"
	case ScreenRecording:
		return "REC"
	case ScreenUploading:
		return "UPLOAD"
	case ScreenError:
		return "ERROR"
	case ScreenShutdown:
		return "BYE"
	default:
		return ""
	}
}

func (o *OLED) LoadScreen(s Screen) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dev.ClearBuffer()
	o.drawTextCentered(screenLabel(s), 24, 2)
	return o.dev.Display()
}

func (o *OLED) ShowMessage(msg string, isError bool, _ time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dev.ClearBuffer()
	if isError {
		// Error styling: framed box.
		o.drawRect(0, 0, oledWidth-1, oledHeight-1)
		o.drawRect(2, 2, oledWidth-3, oledHeight-3)
	}
	o.drawTextCentered(msg, 28, 1)
	return o.dev.Display()
}

func (o *OLED) StartAnimation(s Screen) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	// Busy marker under the banner. The device has no frame scheduler;
	// the marker is static between renders.
	o.drawTextCentered("...", 50, 1)
	return o.dev.Display()
}

func (o *OLED) StopAnimation() error {
	// The marker is cleared by the next full-screen render.
	return nil
}

func (o *OLED) UpdateProgress(percent uint8) error {
	if percent > 100 {
		percent = 100
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	const y = 54
	o.drawRect(8, y, oledWidth-9, y+6)
	fill := int16(8 + (int(oledWidth-18) * int(percent) / 100))
	for x := int16(9); x < fill; x++ {
		for yy := int16(y + 1); yy < y+6; yy++ {
			o.dev.SetPixel(x, yy, pixelOn)
		}
	}
	return o.dev.Display()
}

func (o *OLED) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dev.ClearBuffer()
	return o.dev.Display()
}

func (o *OLED) Close() error {
	return o.Clear()
}

// ---- drawing helpers ----

func (o *OLED) drawRect(x0, y0, x1, y1 int16) {
	for x := x0; x <= x1; x++ {
		o.dev.SetPixel(x, y0, pixelOn)
		o.dev.SetPixel(x, y1, pixelOn)
	}
	for y := y0; y <= y1; y++ {
		o.dev.SetPixel(x0, y, pixelOn)
		o.dev.SetPixel(x1, y, pixelOn)
	}
}

func (o *OLED) drawTextCentered(s string, y int16, scale int16) {
	w := int16(len(s)) * 6 * scale
	x := (oledWidth - w) / 2
	if x < 0 {
		x = 0
	}
	o.drawText(s, x, y, scale)
}

func (o *OLED) drawText(s string, x, y, scale int16) {
	for _, r := range s {
		o.drawGlyph(r, x, y, scale)
		x += 6 * scale
		if x >= oledWidth {
			return
		}
	}
}

func (o *OLED) drawGlyph(r rune, x, y, scale int16) {
	g, ok := font5x7[r]
	if !ok {
		g = font5x7['?']
	}
	for col := int16(0); col < 5; col++ {
		bits := g[col]
		for row := int16(0); row < 7; row++ {
			if bits&(1<<uint(row)) == 0 {
				continue
			}
			for dx := int16(0); dx < scale; dx++ {
				for dy := int16(0); dy < scale; dy++ {
					o.dev.SetPixel(x+col*scale+dx, y+row*scale+dy, pixelOn)
				}
			}
		}
	}
}
