package gpio

import (
	"sync"
	"time"
)

// FakeTrigger is a test double recording level changes on the trigger line.
// Safe for concurrent use so it can back a sensor polled from one
// goroutine while a test inspects it from another.
type FakeTrigger struct {
	mu sync.Mutex

	// Ops records the sequence of level changes ("high" / "low").
	Ops []string

	// HighErr and LowErr, if set, are returned by SetHigh / SetLow.
	HighErr error
	LowErr  error
}

// NewFakeTrigger creates a FakeTrigger.
func NewFakeTrigger() *FakeTrigger {
	return &FakeTrigger{}
}

// SetHigh records a high transition.
func (f *FakeTrigger) SetHigh() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HighErr != nil {
		return f.HighErr
	}
	f.Ops = append(f.Ops, "high")
	return nil
}

// SetLow records a low transition.
func (f *FakeTrigger) SetLow() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LowErr != nil {
		return f.LowErr
	}
	f.Ops = append(f.Ops, "low")
	return nil
}

// OpsSnapshot returns a copy of the recorded transitions.
func (f *FakeTrigger) OpsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.Ops))
	copy(ops, f.Ops)
	return ops
}

// Pulses counts complete high-then-low trigger pulses.
func (f *FakeTrigger) Pulses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i := 0; i+1 < len(f.Ops); i++ {
		if f.Ops[i] == "high" && f.Ops[i+1] == "low" {
			n++
		}
	}
	return n
}

// FakeDelayer records requested delays without sleeping.
type FakeDelayer struct {
	mu sync.Mutex

	// Delays records every requested delay.
	Delays []time.Duration
}

// NewFakeDelayer creates a FakeDelayer.
func NewFakeDelayer() *FakeDelayer {
	return &FakeDelayer{}
}

// Delay records the requested duration and returns immediately.
func (f *FakeDelayer) Delay(d time.Duration) {
	f.mu.Lock()
	f.Delays = append(f.Delays, d)
	f.mu.Unlock()
}

// Count returns the number of recorded delays.
func (f *FakeDelayer) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Delays)
}
