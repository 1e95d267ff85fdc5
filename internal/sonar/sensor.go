package sonar

import (
	"fmt"
	"sync"
	"time"
)

// triggerPulse is the width of the high pulse on the trigger line.
// The HC-SR04 datasheet asks for at least 10 microseconds.
const triggerPulse = 10 * time.Microsecond

// mmFactor converts elapsed ticks to millimeters when divided by the tick
// frequency: speed of sound 343.21 m/s, halved for the round trip, scaled
// to mm and to Hz (343.21 * 0.5 * 1000 * 1000).
const mmFactor = 171_605

// Sensor drives an ultrasonic rangefinder through a trigger pulse and a
// timed echo pulse. It never blocks: Distance is a poll, and Capture and
// Timeout are notifications pushed in by the caller's interrupt wiring
// (edge events on the echo line and an external guard timer).
//
// A single mutex serializes every state transition, so the three entry
// points may be called from any goroutine, including an edge-event
// handler preempting an in-progress poll.
type Sensor struct {
	mu     sync.Mutex
	pin    TriggerPin
	delay  Delayer
	tickHz uint32

	state State
	// Edge ticks are only meaningful in StateMeasuring and StateCompleted
	// and are cleared on every return to StateIdle.
	riseTick uint32
	fallTick uint32
}

// New creates a Sensor owning the given trigger pin and delay provider.
// tickHz is the fixed frequency of the clock whose ticks are passed to
// Capture. The pin is driven low so trigger can assume a known level.
func New(pin TriggerPin, delay Delayer, tickHz uint32) (*Sensor, error) {
	if tickHz == 0 {
		return nil, fmt.Errorf("sonar: tick frequency must be non-zero")
	}
	if err := pin.SetLow(); err != nil {
		return nil, fmt.Errorf("drive trigger low: %w", err)
	}
	return &Sensor{
		pin:    pin,
		delay:  delay,
		tickHz: tickHz,
		state:  StateIdle,
	}, nil
}

// Distance polls the sensor for a measurement. It never blocks.
//
// While idle it emits a trigger pulse, starts a new measurement and
// returns ErrNotReady. While a measurement is in flight it returns
// ErrNotReady with no side effect. Once the measurement completes the
// next call returns the distance and the sensor is idle again. If the
// measurement timed out instead, the next call returns (nil, nil): an
// explicit "no echo", distinct from ErrNotReady.
//
// The only hard error is a trigger pin failure, in which case the sensor
// stays idle and the next poll retries the pulse.
func (s *Sensor) Distance() (*Distance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		if err := s.trigger(); err != nil {
			return nil, fmt.Errorf("trigger: %w", err)
		}
		s.state = StateTriggered
		return nil, ErrNotReady

	case StateTriggered, StateMeasuring:
		return nil, ErrNotReady

	case StateCompleted:
		elapsed := s.fallTick - s.riseTick // uint32 wraparound is correct here
		mm := uint64(elapsed) * mmFactor / uint64(s.tickHz)
		d := Distance{mm: uint32(mm)}
		s.reset()
		return &d, nil

	case StateTimedOut:
		s.reset()
		return nil, nil
	}

	return nil, fmt.Errorf("sonar: invalid state %q", s.state)
}

// Capture records an edge transition on the echo line. The direction is
// inferred from the current state: the first edge after a trigger is the
// start of the echo pulse, the second is its end. Callers wire a single
// both-edges notification and need no edge bookkeeping of their own.
//
// Any other state returns ErrWrongMode and leaves the sensor untouched.
func (s *Sensor) Capture(tick uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTriggered:
		s.riseTick = tick
		s.state = StateMeasuring
		return nil
	case StateMeasuring:
		s.fallTick = tick
		s.state = StateCompleted
		return nil
	}
	return fmt.Errorf("%w: capture while %s", ErrWrongMode, s.state)
}

// Timeout records that the external guard timer fired before the echo
// completed. The in-flight measurement is abandoned and the next Distance
// poll reports "no echo".
//
// A timeout racing a normal completion is a no-op: the completed result
// is kept and drained as usual. A timeout with no measurement outstanding
// returns ErrWrongMode.
func (s *Sensor) Timeout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTriggered, StateMeasuring:
		s.state = StateTimedOut
		return nil
	case StateCompleted:
		// The echo won the race; keep the result.
		return nil
	}
	return fmt.Errorf("%w: timeout while %s", ErrWrongMode, s.state)
}

// State returns the current measurement state.
func (s *Sensor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// trigger emits the start pulse on the trigger line. Caller holds s.mu.
func (s *Sensor) trigger() error {
	if err := s.pin.SetHigh(); err != nil {
		return err
	}
	s.delay.Delay(triggerPulse)
	if err := s.pin.SetLow(); err != nil {
		return err
	}
	return nil
}

// reset clears the edge ticks and returns to idle. Caller holds s.mu.
func (s *Sensor) reset() {
	s.riseTick = 0
	s.fallTick = 0
	s.state = StateIdle
}
