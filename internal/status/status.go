// Package status provides a thread-safe status tracker for the range-sensor
// daemon. It is read by the HTTP handlers and serialized into MQTT system
// events (startup, shutdown, heartbeat).
package status

import (
	"sync"
	"time"

	"github.com/sweeney/range-sensor/internal/sonar"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs        int64
	EchoTimeoutMs int64
	HeartbeatMs   int64
	TickHz        uint32
	Chip          string
	PinTrigger    int
	PinEcho       int
	Broker        string
	HTTPPort      string
	WSBroker      string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Counts tracks measurement outcomes since startup.
type Counts struct {
	// Readings is the number of completed measurements.
	Readings int
	// Timeouts is the number of cycles that ended with no echo.
	Timeouts int
	// WrongMode is the number of rejected event notifications, i.e.
	// spurious edges or stale guard timers.
	WrongMode int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	State         sonar.State
	LastReading   *sonar.Reading // nil until the first cycle completes
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     sonar.StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetState records the sensor's current measurement state.
// Called from the run loop on every tick.
func (t *Tracker) SetState(state sonar.State) {
	t.mu.Lock()
	t.snap.State = state
	t.mu.Unlock()
}

// RecordReading records a completed cycle and bumps the matching counter.
func (t *Tracker) RecordReading(r sonar.Reading) {
	t.mu.Lock()
	rc := r
	t.snap.LastReading = &rc
	if r.Distance != nil {
		t.snap.Counts.Readings++
	} else {
		t.snap.Counts.Timeouts++
	}
	t.mu.Unlock()
}

// RecordWrongMode bumps the protocol-violation counter.
func (t *Tracker) RecordWrongMode() {
	t.mu.Lock()
	t.snap.Counts.WrongMode++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// CountsSnapshot returns a copy of the current counters.
func (t *Tracker) CountsSnapshot() Counts {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Counts
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
