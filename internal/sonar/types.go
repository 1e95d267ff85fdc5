// Package sonar implements the measurement state machine for an HC-SR04
// style ultrasonic rangefinder. This package has NO hardware dependencies
// (no GPIO, MQTT, OS, or time.Sleep beyond the injected delay provider).
// The trigger pin, the microsecond delay, and the tick clock are all
// supplied by the caller.
package sonar

import (
	"errors"
	"fmt"
	"time"
)

// State represents the measurement state of the sensor.
type State string

const (
	// StateIdle: ready to start a new measurement.
	StateIdle State = "IDLE"
	// StateTriggered: trigger pulse sent, waiting for the echo to start.
	StateTriggered State = "TRIGGERED"
	// StateMeasuring: rising edge seen, waiting for the echo to end.
	StateMeasuring State = "MEASURING"
	// StateCompleted: both edges captured, a distance is ready to drain.
	StateCompleted State = "COMPLETED"
	// StateTimedOut: the guard timer fired before the echo completed.
	StateTimedOut State = "TIMED_OUT"
)

// ErrNotReady is returned by Distance while a measurement is in flight.
// It signals "poll again later" and is not a fault.
var ErrNotReady = errors.New("sonar: measurement in progress")

// ErrWrongMode is returned by Capture and Timeout when the notification
// does not match the current state. It indicates a protocol violation in
// the caller's interrupt wiring (duplicate edge, stale timer), never a
// fault inside the driver; state is left untouched.
var ErrWrongMode = errors.New("sonar: event does not match sensor state")

// TriggerPin is a two-state digital output driving the sensor's trigger line.
type TriggerPin interface {
	SetHigh() error
	SetLow() error
}

// Delayer blocks for at least the given duration. Only used for the
// trigger pulse width, so overshoot is harmless.
type Delayer interface {
	Delay(d time.Duration)
}

// Distance is one distance measurement, stored in millimeters.
type Distance struct {
	mm uint32
}

// DistanceFromMillimeters builds a Distance from a raw millimeter value.
// Measurements come out of Sensor.Distance; this exists for consumers
// replaying stored readings and for tests.
func DistanceFromMillimeters(mm uint32) Distance {
	return Distance{mm: mm}
}

// Millimeters returns the distance in millimeters.
func (d Distance) Millimeters() uint32 {
	return d.mm
}

// Centimeters returns the distance in whole centimeters, truncated.
func (d Distance) Centimeters() uint32 {
	return d.mm / 10
}

func (d Distance) String() string {
	return fmt.Sprintf("%dmm", d.mm)
}

// Reading is the record of one completed measurement cycle.
// Distance is nil when the cycle timed out with no echo.
type Reading struct {
	Time     time.Time
	Distance *Distance
}
