// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/range-sensor/internal/sonar"
)

// Topic is the MQTT topic for distance readings.
const Topic = "sensors/range/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "sensors/range/system"

// Reading event names on the wire.
const (
	EventReading = "READING"
	EventNoEcho  = "NO_ECHO"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a distance reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(r sonar.Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Range RangePayload `json:"range"`
}

// RangePayload contains the reading details. DistanceMM and DistanceCM are
// omitted for NO_ECHO events.
type RangePayload struct {
	Timestamp  string  `json:"timestamp"`
	Event      string  `json:"event"`
	DistanceMM *uint32 `json:"distance_mm,omitempty"`
	DistanceCM *uint32 `json:"distance_cm,omitempty"`
}

// FormatPayload creates the JSON payload for a distance reading.
func FormatPayload(r sonar.Reading) ([]byte, error) {
	rp := RangePayload{
		Timestamp: r.Time.UTC().Format(time.RFC3339Nano),
		Event:     EventNoEcho,
	}
	if r.Distance != nil {
		mm := r.Distance.Millimeters()
		cm := r.Distance.Centimeters()
		rp.Event = EventReading
		rp.DistanceMM = &mm
		rp.DistanceCM = &cm
	}
	return json.Marshal(Payload{Range: rp})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
