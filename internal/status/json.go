package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Last          *LastJSON    `json:"last_reading,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LastJSON is the JSON representation of the most recent cycle.
type LastJSON struct {
	Timestamp  string  `json:"timestamp"`
	Event      string  `json:"event"` // READING or NO_ECHO
	DistanceMM *uint32 `json:"distance_mm,omitempty"`
	DistanceCM *uint32 `json:"distance_cm,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of measurement counts.
type CountsJSON struct {
	Readings  int `json:"readings"`
	Timeouts  int `json:"timeouts"`
	WrongMode int `json:"wrong_mode"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs        int64  `json:"poll_ms"`
	EchoTimeoutMs int64  `json:"echo_timeout_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	TickHz        uint32 `json:"tick_hz"`
	Chip          string `json:"chip"`
	PinTrigger    int    `json:"pin_trigger"`
	PinEcho       int    `json:"pin_echo"`
	Broker        string `json:"broker"`
	HTTPPort      string `json:"http_port"`
	WSBroker      string `json:"ws_broker,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Readings:  snap.Counts.Readings,
			Timeouts:  snap.Counts.Timeouts,
			WrongMode: snap.Counts.WrongMode,
		},
		Config: ConfigJSON{
			PollMs:        snap.Config.PollMs,
			EchoTimeoutMs: snap.Config.EchoTimeoutMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			TickHz:        snap.Config.TickHz,
			Chip:          snap.Config.Chip,
			PinTrigger:    snap.Config.PinTrigger,
			PinEcho:       snap.Config.PinEcho,
			Broker:        snap.Config.Broker,
			HTTPPort:      snap.Config.HTTPPort,
			WSBroker:      snap.Config.WSBroker,
		},
	}

	if snap.LastReading != nil {
		last := &LastJSON{
			Timestamp: snap.LastReading.Time.UTC().Format(time.RFC3339Nano),
			Event:     "NO_ECHO",
		}
		if d := snap.LastReading.Distance; d != nil {
			mm := d.Millimeters()
			cm := d.Centimeters()
			last.Event = "READING"
			last.DistanceMM = &mm
			last.DistanceCM = &cm
		}
		inner.Last = last
	}

	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
