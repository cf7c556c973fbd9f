// Package display defines the display surface contract. The rendering
// engine proper (screen assets, layout) lives behind this interface;
// the UI monitor only issues "load screen by id" style calls.
package display

import "time"

// Screen identifies a full-screen asset. Login and Logo have alternate
// screens selected by the controller's phase flags.
type Screen uint8

const (
	ScreenBlank Screen = iota
	ScreenLogo
	ScreenLogoAlt
	ScreenSetup
	ScreenLoginFirst
	ScreenLoginSecond
	ScreenUnlock
	ScreenRecording
	ScreenUploading
	ScreenError
	ScreenShutdown
)

func (s Screen) String() string {
	switch s {
	case ScreenBlank:
		return "blank"
	case ScreenLogo:
		return "logo"
	case ScreenLogoAlt:
		return "logo_alt"
	case ScreenSetup:
		return "setup"
	case ScreenLoginFirst:
		return "login_first"
	case ScreenLoginSecond:
		return "login_second"
	case ScreenUnlock:
		return "unlock"
	case ScreenRecording:
		return "recording"
	case ScreenUploading:
		return "uploading"
	case ScreenError:
		return "error"
	case ScreenShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Display is the narrow surface the UI monitor draws through.
// Implementations serialize access internally; callers never hold the
// display lock across other locks.
type Display interface {
	// LoadScreen replaces the whole display with the screen.
	LoadScreen(s Screen) error

	// ShowMessage overlays a transient message. isError selects the
	// error styling; d bounds how long the renderer keeps it up.
	ShowMessage(msg string, isError bool, d time.Duration) error

	// StartAnimation begins the busy animation for the screen.
	StartAnimation(s Screen) error

	// StopAnimation halts any running animation.
	StopAnimation() error

	// UpdateProgress draws a 0..100 progress indicator.
	UpdateProgress(percent uint8) error

	// Clear blanks the display.
	Clear() error

	// Close releases the underlying device.
	Close() error
}
