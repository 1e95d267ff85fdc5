//go:build !linux

package gpio

import "errors"

// Trigger is not available on non-Linux platforms.
type Trigger struct{}

// SetHigh is not implemented on non-Linux platforms.
func (t *Trigger) SetHigh() error {
	return errors.New("gpio: not supported")
}

// SetLow is not implemented on non-Linux platforms.
func (t *Trigger) SetLow() error {
	return errors.New("gpio: not supported")
}

// Lines is not available on non-Linux platforms.
type Lines struct{}

// RequestLines returns an error on non-Linux platforms.
func RequestLines(chipName string, pinTrigger, pinEcho int, tickHz uint32, onEdge EdgeFunc) (*Lines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Trigger is not implemented on non-Linux platforms.
func (l *Lines) Trigger() *Trigger {
	return &Trigger{}
}

// Close is not implemented on non-Linux platforms.
func (l *Lines) Close() error {
	return nil
}
