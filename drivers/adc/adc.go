// Package adc provides the battery voltage source. The real
// implementation reads a raw sample from a sysfs IIO channel; the fake
// returns scripted millivolt values.
package adc

// VoltageSource returns one instantaneous reading at the ADC input, in
// millivolts. Averaging and divider scaling happen in the battery
// service, not here.
type VoltageSource interface {
	ReadMilliV() (int, error)
}
