// Package gpio provides the hardware side of the rangefinder: the trigger
// output line, the microsecond delay for the trigger pulse, and edge
// events on the echo line. The real implementation uses the Linux GPIO
// character device; fakes allow testing without hardware.
package gpio

import "time"

// Pin defaults (BCM numbering).
const (
	DefaultChip       = "gpiochip0"
	DefaultPinTrigger = 23
	DefaultPinEcho    = 24
)

// EdgeFunc receives the tick timestamp of an edge on the echo line.
// It is invoked for both rising and falling edges; the driver infers the
// direction from its own state.
type EdgeFunc func(tick uint32)

// SleepDelayer implements sonar.Delayer with time.Sleep. Sleep resolution
// is far coarser than a microsecond, but the trigger pulse only has a
// minimum width, so overshooting is harmless.
type SleepDelayer struct{}

// Delay sleeps for at least d.
func (SleepDelayer) Delay(d time.Duration) {
	time.Sleep(d)
}

// ticksAt converts a kernel event timestamp (duration since an arbitrary
// monotonic epoch) to ticks of a clock running at hz. The result wraps at
// 32 bits; the driver subtracts ticks with modular arithmetic, so the
// wrap is harmless as long as both edges come from the same clock.
func ticksAt(ts time.Duration, hz uint32) uint32 {
	sec := uint64(ts / time.Second)
	rem := uint64(ts % time.Second)
	return uint32(sec*uint64(hz) + rem*uint64(hz)/uint64(time.Second))
}
