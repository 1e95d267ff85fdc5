package sonar

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePin records the sequence of level changes.
type fakePin struct {
	ops      []string // "high" / "low"
	highErr  error
	lowErr   error
	lowCalls int
}

func (p *fakePin) SetHigh() error {
	if p.highErr != nil {
		return p.highErr
	}
	p.ops = append(p.ops, "high")
	return nil
}

func (p *fakePin) SetLow() error {
	p.lowCalls++
	if p.lowErr != nil {
		return p.lowErr
	}
	p.ops = append(p.ops, "low")
	return nil
}

// fakeDelay records requested delays without sleeping.
type fakeDelay struct {
	delays []time.Duration
}

func (d *fakeDelay) Delay(dur time.Duration) {
	d.delays = append(d.delays, dur)
}

func newTestSensor(t *testing.T, tickHz uint32) (*Sensor, *fakePin, *fakeDelay) {
	t.Helper()
	pin := &fakePin{}
	delay := &fakeDelay{}
	s, err := New(pin, delay, tickHz)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, pin, delay
}

func TestNewDrivesPinLow(t *testing.T) {
	_, pin, _ := newTestSensor(t, 1_000_000)
	if len(pin.ops) != 1 || pin.ops[0] != "low" {
		t.Errorf("expected construction to drive pin low, got ops %v", pin.ops)
	}
}

func TestNewRejectsZeroFrequency(t *testing.T) {
	if _, err := New(&fakePin{}, &fakeDelay{}, 0); err == nil {
		t.Error("expected error for zero tick frequency")
	}
}

func TestNewPinFailure(t *testing.T) {
	pinErr := errors.New("gpio busy")
	if _, err := New(&fakePin{lowErr: pinErr}, &fakeDelay{}, 1_000_000); !errors.Is(err, pinErr) {
		t.Errorf("expected pin error, got %v", err)
	}
}

// TestFullMeasurementCycle walks Idle -> Triggered -> Measuring ->
// Completed -> Idle through the public API.
func TestFullMeasurementCycle(t *testing.T) {
	s, pin, delay := newTestSensor(t, 1_000_000)

	d, err := s.Distance()
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("first poll: got (%v, %v), want ErrNotReady", d, err)
	}
	if got := s.State(); got != StateTriggered {
		t.Fatalf("after first poll: state %s, want %s", got, StateTriggered)
	}

	// Trigger pulse: high, 10us delay, low (after the construction low).
	wantOps := []string{"low", "high", "low"}
	if len(pin.ops) != len(wantOps) {
		t.Fatalf("pin ops: got %v, want %v", pin.ops, wantOps)
	}
	for i, op := range wantOps {
		if pin.ops[i] != op {
			t.Errorf("pin op %d: got %q, want %q", i, pin.ops[i], op)
		}
	}
	if len(delay.delays) != 1 || delay.delays[0] != 10*time.Microsecond {
		t.Errorf("expected one 10us delay, got %v", delay.delays)
	}

	if err := s.Capture(100); err != nil {
		t.Fatalf("rising capture: %v", err)
	}
	if got := s.State(); got != StateMeasuring {
		t.Fatalf("after rising edge: state %s, want %s", got, StateMeasuring)
	}

	if err := s.Capture(500); err != nil {
		t.Fatalf("falling capture: %v", err)
	}
	if got := s.State(); got != StateCompleted {
		t.Fatalf("after falling edge: state %s, want %s", got, StateCompleted)
	}

	d, err = s.Distance()
	if err != nil {
		t.Fatalf("drain poll: %v", err)
	}
	if d == nil {
		t.Fatal("drain poll returned nil distance")
	}
	// 400 ticks at 1MHz -> 400us -> 68mm.
	if got := d.Millimeters(); got != 68 {
		t.Errorf("distance: got %dmm, want 68mm", got)
	}
	if got := s.State(); got != StateIdle {
		t.Errorf("after drain: state %s, want %s", got, StateIdle)
	}
}

// TestKnownDistance checks the reference conversion: 60 ticks at 1MHz is
// 10mm (1cm).
func TestKnownDistance(t *testing.T) {
	s, _, _ := newTestSensor(t, 1_000_000)

	s.Distance()
	if err := s.Capture(1000); err != nil {
		t.Fatal(err)
	}
	if err := s.Capture(1060); err != nil {
		t.Fatal(err)
	}

	d, err := s.Distance()
	if err != nil || d == nil {
		t.Fatalf("drain poll: got (%v, %v)", d, err)
	}
	if d.Millimeters() != 10 {
		t.Errorf("Millimeters: got %d, want 10", d.Millimeters())
	}
	if d.Centimeters() != 1 {
		t.Errorf("Centimeters: got %d, want 1", d.Centimeters())
	}
}

// TestTickWraparound verifies that a counter wrap between the two edges
// still yields the true elapsed tick count.
func TestTickWraparound(t *testing.T) {
	const hz = 1_000_000
	const span = 60 // same true duration in both runs

	measure := func(t *testing.T, rise, fall uint32) uint32 {
		t.Helper()
		s, _, _ := newTestSensor(t, hz)
		s.Distance()
		if err := s.Capture(rise); err != nil {
			t.Fatal(err)
		}
		if err := s.Capture(fall); err != nil {
			t.Fatal(err)
		}
		d, err := s.Distance()
		if err != nil || d == nil {
			t.Fatalf("drain poll: got (%v, %v)", d, err)
		}
		return d.Millimeters()
	}

	plain := measure(t, 1000, 1000+span)
	wrapped := measure(t, ^uint32(0)-20, span-21) // wraps 21 ticks before the end
	if plain != wrapped {
		t.Errorf("wrapped interval: got %dmm, want %dmm", wrapped, plain)
	}
}

// TestPollIsIdempotentWhilePending covers repeated polls in Triggered and
// Measuring: always not-ready, never a second trigger pulse, edge ticks
// untouched.
func TestPollIsIdempotentWhilePending(t *testing.T) {
	s, pin, delay := newTestSensor(t, 1_000_000)

	s.Distance()
	opsAfterTrigger := len(pin.ops)

	for i := 0; i < 3; i++ {
		if _, err := s.Distance(); !errors.Is(err, ErrNotReady) {
			t.Fatalf("poll %d in Triggered: got %v, want ErrNotReady", i, err)
		}
	}
	if len(pin.ops) != opsAfterTrigger {
		t.Errorf("extra pin activity on no-op polls: %v", pin.ops)
	}
	if len(delay.delays) != 1 {
		t.Errorf("extra delays on no-op polls: %v", delay.delays)
	}

	s.Capture(100)
	for i := 0; i < 3; i++ {
		if _, err := s.Distance(); !errors.Is(err, ErrNotReady) {
			t.Fatalf("poll %d in Measuring: got %v, want ErrNotReady", i, err)
		}
	}
	if s.riseTick != 100 {
		t.Errorf("riseTick mutated by no-op polls: got %d, want 100", s.riseTick)
	}
}

func TestTimeoutWhileTriggered(t *testing.T) {
	s, _, _ := newTestSensor(t, 1_000_000)

	s.Distance()
	if err := s.Timeout(); err != nil {
		t.Fatalf("timeout in Triggered: %v", err)
	}
	if got := s.State(); got != StateTimedOut {
		t.Fatalf("state %s, want %s", got, StateTimedOut)
	}

	d, err := s.Distance()
	if err != nil {
		t.Fatalf("drain poll after timeout: %v", err)
	}
	if d != nil {
		t.Errorf("expected no-echo result, got %v", d)
	}
	if got := s.State(); got != StateIdle {
		t.Errorf("after drain: state %s, want %s", got, StateIdle)
	}
}

func TestTimeoutWhileMeasuring(t *testing.T) {
	s, _, _ := newTestSensor(t, 1_000_000)

	s.Distance()
	s.Capture(100)
	if err := s.Timeout(); err != nil {
		t.Fatalf("timeout in Measuring: %v", err)
	}

	d, err := s.Distance()
	if err != nil || d != nil {
		t.Errorf("expected (nil, nil) after timeout, got (%v, %v)", d, err)
	}
}

// TestLateTimeoutKeepsResult covers the guard timer racing a normal
// completion: the completed result must survive.
func TestLateTimeoutKeepsResult(t *testing.T) {
	s, _, _ := newTestSensor(t, 1_000_000)

	s.Distance()
	s.Capture(100)
	s.Capture(500)

	if err := s.Timeout(); err != nil {
		t.Fatalf("late timeout should be a no-op, got %v", err)
	}
	if got := s.State(); got != StateCompleted {
		t.Fatalf("late timeout changed state to %s", got)
	}

	d, err := s.Distance()
	if err != nil {
		t.Fatalf("drain poll: %v", err)
	}
	if d == nil {
		t.Fatal("late timeout discarded the completed result")
	}
}

func TestCaptureWrongMode(t *testing.T) {
	s, _, _ := newTestSensor(t, 1_000_000)

	// Idle: no measurement outstanding.
	if err := s.Capture(10); !errors.Is(err, ErrWrongMode) {
		t.Errorf("capture while idle: got %v, want ErrWrongMode", err)
	}
	if got := s.State(); got != StateIdle {
		t.Errorf("rejected capture mutated state to %s", got)
	}

	// Completed: a result is pending, a third edge is spurious.
	s.Distance()
	s.Capture(100)
	s.Capture(500)
	if err := s.Capture(900); !errors.Is(err, ErrWrongMode) {
		t.Errorf("capture while completed: got %v, want ErrWrongMode", err)
	}
	if got := s.State(); got != StateCompleted {
		t.Errorf("rejected capture mutated state to %s", got)
	}

	// TimedOut: nothing left to time.
	if err := s.Timeout(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	s2, _, _ := newTestSensor(t, 1_000_000)
	s2.Distance()
	s2.Timeout()
	if err := s2.Capture(10); !errors.Is(err, ErrWrongMode) {
		t.Errorf("capture while timed out: got %v, want ErrWrongMode", err)
	}
}

func TestTimeoutWrongMode(t *testing.T) {
	s, _, _ := newTestSensor(t, 1_000_000)

	if err := s.Timeout(); !errors.Is(err, ErrWrongMode) {
		t.Errorf("timeout while idle: got %v, want ErrWrongMode", err)
	}

	s.Distance()
	s.Timeout()
	if err := s.Timeout(); !errors.Is(err, ErrWrongMode) {
		t.Errorf("second timeout: got %v, want ErrWrongMode", err)
	}
}

// TestNoDoubleDelivery: once a result is drained the sensor is idle, so
// an edge arriving before the next trigger is rejected.
func TestNoDoubleDelivery(t *testing.T) {
	s, _, _ := newTestSensor(t, 1_000_000)

	s.Distance()
	s.Capture(100)
	s.Capture(500)
	if d, err := s.Distance(); err != nil || d == nil {
		t.Fatalf("drain poll: got (%v, %v)", d, err)
	}

	if err := s.Capture(600); !errors.Is(err, ErrWrongMode) {
		t.Errorf("capture after drain, before new trigger: got %v, want ErrWrongMode", err)
	}
	if got := s.State(); got != StateIdle {
		t.Errorf("state %s, want %s", got, StateIdle)
	}
}

func TestTriggerPinFailureStaysIdle(t *testing.T) {
	pin := &fakePin{}
	s, err := New(pin, &fakeDelay{}, 1_000_000)
	if err != nil {
		t.Fatal(err)
	}

	pinErr := errors.New("gpio busy")
	pin.highErr = pinErr
	if _, err := s.Distance(); !errors.Is(err, pinErr) {
		t.Fatalf("expected pin error, got %v", err)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("failed trigger left state %s, want %s", got, StateIdle)
	}

	// Next poll retries the pulse.
	pin.highErr = nil
	if _, err := s.Distance(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("retry poll: got %v, want ErrNotReady", err)
	}
	if got := s.State(); got != StateTriggered {
		t.Errorf("retry poll left state %s, want %s", got, StateTriggered)
	}
}

// TestConcurrentEvents hammers the sensor from a polling goroutine and an
// event goroutine. Run with -race; the invariant checked here is that
// every cycle drains exactly one result.
func TestConcurrentEvents(t *testing.T) {
	s, _, _ := newTestSensor(t, 1_000_000)

	const cycles = 200
	var wg sync.WaitGroup
	results := make(chan *Distance, cycles)

	wg.Add(1)
	go func() {
		defer wg.Done()
		drained := 0
		for drained < cycles {
			d, err := s.Distance()
			if errors.Is(err, ErrNotReady) {
				continue
			}
			if err != nil {
				t.Errorf("poll: %v", err)
				return
			}
			results <- d
			drained++
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := uint32(0)
		for i := 0; i < cycles; i++ {
			// Wait for the poller to trigger, then deliver both edges.
			for s.State() != StateTriggered {
			}
			tick += 50
			if err := s.Capture(tick); err != nil {
				t.Errorf("rising capture: %v", err)
				return
			}
			tick += 60
			if err := s.Capture(tick); err != nil {
				t.Errorf("falling capture: %v", err)
				return
			}
			for s.State() == StateCompleted {
			}
		}
	}()

	wg.Wait()
	close(results)

	n := 0
	for d := range results {
		n++
		if d == nil {
			t.Error("unexpected no-echo result")
		} else if d.Millimeters() != 10 {
			t.Errorf("distance: got %dmm, want 10mm", d.Millimeters())
		}
	}
	if n != cycles {
		t.Errorf("drained %d results, want %d", n, cycles)
	}
}
