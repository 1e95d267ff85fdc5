//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Trigger drives the sensor's trigger line through a requested output.
// It implements sonar.TriggerPin.
type Trigger struct {
	line *gpiocdev.Line
}

// SetHigh drives the trigger line high.
func (t *Trigger) SetHigh() error {
	return t.line.SetValue(1)
}

// SetLow drives the trigger line low.
func (t *Trigger) SetLow() error {
	return t.line.SetValue(0)
}

// Lines owns the GPIO chip plus the trigger and echo lines for one sensor.
type Lines struct {
	chip *gpiocdev.Chip
	trig *gpiocdev.Line
	echo *gpiocdev.Line
}

// RequestLines requests the trigger line as output (initially low) and the
// echo line as input reporting both edges. Every echo edge invokes onEdge
// with the kernel event timestamp converted to ticks at tickHz. The kernel
// stamps events with the monotonic clock in the interrupt path, well before
// userspace scheduling, which is what makes the pulse width measurable at
// all from a non-realtime process.
func RequestLines(chipName string, pinTrigger, pinEcho int, tickHz uint32, onEdge EdgeFunc) (*Lines, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("range-sensor"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	trig, err := chip.RequestLine(pinTrigger, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request trigger pin %d: %w", pinTrigger, err)
	}

	echo, err := chip.RequestLine(pinEcho,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			onEdge(ticksAt(evt.Timestamp, tickHz))
		}))
	if err != nil {
		trig.Close()
		chip.Close()
		return nil, fmt.Errorf("request echo pin %d: %w", pinEcho, err)
	}

	return &Lines{
		chip: chip,
		trig: trig,
		echo: echo,
	}, nil
}

// Trigger returns the trigger pin handle for the sensor driver to own.
func (l *Lines) Trigger() *Trigger {
	return &Trigger{line: l.trig}
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults)
// before closing to ensure clean state for system shutdown/reboot.
func (l *Lines) Close() error {
	var errs []error

	if l.trig != nil {
		if err := l.trig.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure trigger pin: %w", err))
		}
		if err := l.trig.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trigger pin: %w", err))
		}
	}
	if l.echo != nil {
		if err := l.echo.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure echo pin: %w", err))
		}
		if err := l.echo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close echo pin: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
