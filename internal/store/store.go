// Package store persists distance readings to a time-series database.
// The real implementation writes to InfluxDB; the fake records readings
// for tests. The sink is optional — the daemon runs without one.
package store

import "github.com/sweeney/range-sensor/internal/sonar"

// Measurement is the InfluxDB measurement name for readings.
const Measurement = "range"

// Writer persists readings. Writes are fire-and-forget: the daemon never
// blocks its measurement loop on storage.
type Writer interface {
	// WriteReading queues one reading for persistence.
	WriteReading(r sonar.Reading)

	// Close flushes pending writes and releases resources.
	Close()
}

// readingFields maps a reading onto InfluxDB fields. Completed cycles
// carry the distance; no-echo cycles carry a timeout marker so gaps are
// distinguishable from downtime.
func readingFields(r sonar.Reading) map[string]interface{} {
	if r.Distance == nil {
		return map[string]interface{}{"timeout": true}
	}
	return map[string]interface{}{
		"distance_mm": int64(r.Distance.Millimeters()),
		"distance_cm": int64(r.Distance.Centimeters()),
	}
}
