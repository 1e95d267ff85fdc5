package store

import (
	"testing"
	"time"

	"github.com/sweeney/range-sensor/internal/sonar"
)

func TestReadingFields(t *testing.T) {
	d := sonar.DistanceFromMillimeters(247)
	fields := readingFields(sonar.Reading{Time: time.Now(), Distance: &d})

	if got, ok := fields["distance_mm"].(int64); !ok || got != 247 {
		t.Errorf("distance_mm: got %v", fields["distance_mm"])
	}
	if got, ok := fields["distance_cm"].(int64); !ok || got != 24 {
		t.Errorf("distance_cm: got %v", fields["distance_cm"])
	}
	if _, ok := fields["timeout"]; ok {
		t.Error("timeout field present on a completed reading")
	}
}

func TestReadingFieldsNoEcho(t *testing.T) {
	fields := readingFields(sonar.Reading{Time: time.Now()})

	if got, ok := fields["timeout"].(bool); !ok || !got {
		t.Errorf("timeout: got %v", fields["timeout"])
	}
	if _, ok := fields["distance_mm"]; ok {
		t.Error("distance_mm field present on a no-echo reading")
	}
}

func TestFakeWriter(t *testing.T) {
	f := NewFakeWriter()

	d := sonar.DistanceFromMillimeters(100)
	f.WriteReading(sonar.Reading{Time: time.Now(), Distance: &d})
	f.WriteReading(sonar.Reading{Time: time.Now()})

	if f.Len() != 2 {
		t.Fatalf("expected 2 readings, got %d", f.Len())
	}
	if f.Readings[0].Distance == nil {
		t.Error("first reading lost its distance")
	}
	if f.Readings[1].Distance != nil {
		t.Error("second reading should be no-echo")
	}

	f.Close()
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}
