package store

import (
	"sync"

	"github.com/sweeney/range-sensor/internal/sonar"
)

// FakeWriter records readings for test assertions.
type FakeWriter struct {
	mu sync.Mutex

	// Readings contains everything written, in order.
	Readings []sonar.Reading

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeWriter creates a FakeWriter for testing.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// WriteReading records the reading.
func (f *FakeWriter) WriteReading(r sonar.Reading) {
	f.mu.Lock()
	f.Readings = append(f.Readings, r)
	f.mu.Unlock()
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
}

// Len returns the number of recorded readings.
func (f *FakeWriter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Readings)
}
