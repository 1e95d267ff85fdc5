// Command range-sensor drives an HC-SR04 ultrasonic rangefinder over GPIO
// and publishes distance readings to MQTT, optionally mirroring them to
// InfluxDB.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweeney/range-sensor/internal/gpio"
	"github.com/sweeney/range-sensor/internal/mqtt"
	"github.com/sweeney/range-sensor/internal/sonar"
	"github.com/sweeney/range-sensor/internal/status"
	"github.com/sweeney/range-sensor/internal/store"
	"github.com/sweeney/range-sensor/internal/web"
)

func main() {
	poll := flag.Duration("poll", 100*time.Millisecond, "Measurement cycle interval")
	echoTimeout := flag.Duration("echo-timeout", 30*time.Millisecond, "Guard window for a missing echo")
	tickHz := flag.Uint("tick-hz", 1_000_000, "Tick frequency used for edge timestamps (Hz)")
	chip := flag.String("chip", gpio.DefaultChip, "GPIO character device")
	pinTrigger := flag.Int("pin-trigger", gpio.DefaultPinTrigger, "BCM pin number for the trigger line")
	pinEcho := flag.Int("pin-echo", gpio.DefaultPinEcho, "BCM pin number for the echo line")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	measure := flag.Bool("measure", false, "Take a single measurement, print it and exit")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	wsBroker := flag.String("ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)

	flag.Parse()

	// Influx settings come from the environment; a .env next to the
	// binary works for dev setups.
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded settings from .env")
	}

	ws := resolveWSBroker(*wsBroker, *broker)
	cfg := config{
		poll:        *poll,
		echoTimeout: *echoTimeout,
		tickHz:      uint32(*tickHz),
		chip:        *chip,
		pinTrigger:  *pinTrigger,
		pinEcho:     *pinEcho,
		broker:      *broker,
		heartbeat:   *heartbeat,
		measure:     *measure,
		httpAddr:    *httpAddr,
		wsBroker:    ws,
	}
	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

type config struct {
	poll        time.Duration
	echoTimeout time.Duration
	tickHz      uint32
	chip        string
	pinTrigger  int
	pinEcho     int
	broker      string
	heartbeat   time.Duration
	measure     bool
	httpAddr    string
	wsBroker    string
}

// edgeSink routes echo-line edge events into the sensor driver. Events
// can arrive as soon as the line is requested, before the driver exists,
// so the sensor is bound after construction and earlier edges dropped.
type edgeSink struct {
	mu      sync.Mutex
	sensor  *sonar.Sensor
	tracker *status.Tracker
}

func (e *edgeSink) bind(s *sonar.Sensor, tr *status.Tracker) {
	e.mu.Lock()
	e.sensor = s
	e.tracker = tr
	e.mu.Unlock()
}

func (e *edgeSink) onEdge(tick uint32) {
	e.mu.Lock()
	s, tr := e.sensor, e.tracker
	e.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.Capture(tick); err != nil {
		// Spurious or duplicate edge; the wiring is suspect but the
		// driver state is intact.
		log.Printf("echo edge rejected: %v", err)
		if tr != nil {
			tr.RecordWrongMode()
		}
	}
}

func run(cfg config) error {
	edges := &edgeSink{}

	lines, err := gpio.RequestLines(cfg.chip, cfg.pinTrigger, cfg.pinEcho, cfg.tickHz, edges.onEdge)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer lines.Close()

	sensor, err := sonar.New(lines.Trigger(), gpio.SleepDelayer{}, cfg.tickHz)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}

	// One-shot mode
	if cfg.measure {
		edges.bind(sensor, nil)
		d, err := measureOnce(sensor, cfg.echoTimeout)
		if err != nil {
			return fmt.Errorf("measure: %w", err)
		}
		if d == nil {
			fmt.Println("no echo")
		} else {
			fmt.Printf("%d mm (%d cm)\n", d.Millimeters(), d.Centimeters())
		}
		return nil
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:        cfg.poll.Milliseconds(),
		EchoTimeoutMs: cfg.echoTimeout.Milliseconds(),
		HeartbeatMs:   cfg.heartbeat.Milliseconds(),
		TickHz:        cfg.tickHz,
		Chip:          cfg.chip,
		PinTrigger:    cfg.pinTrigger,
		PinEcho:       cfg.pinEcho,
		Broker:        cfg.broker,
		HTTPPort:      cfg.httpAddr,
		WSBroker:      cfg.wsBroker,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	edges.bind(sensor, tracker)

	publisher := mqtt.NewRealPublisher(cfg.broker)
	defer publisher.Close()

	sink := newStoreFromEnv()
	if sink != nil {
		defer sink.Close()
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	log.Printf("started: poll=%v echo-timeout=%v tick-hz=%d broker=%s heartbeat=%v",
		cfg.poll, cfg.echoTimeout, cfg.tickHz, cfg.broker, cfg.heartbeat)

	ticker := time.NewTicker(cfg.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sensor, publisher, publisher, tracker, sink, cfg.echoTimeout, cfg.heartbeat, time.Now, ticker.C, sigCh)
}

func runLoop(sensor *sonar.Sensor, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, sink store.Writer, echoTimeout, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	lastHeartbeat := startTime

	// Guard timer injecting the timeout event when no echo arrives.
	// Rearmed on every new trigger; a stale fire after the cycle drained
	// is rejected by the driver and only logged.
	var guard *time.Timer
	defer func() {
		if guard != nil {
			guard.Stop()
		}
	}()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			wasIdle := sensor.State() == sonar.StateIdle
			d, err := sensor.Distance()

			switch {
			case errors.Is(err, sonar.ErrNotReady):
				if wasIdle {
					// A new cycle just started; arm the guard timer.
					if guard != nil {
						guard.Stop()
					}
					guard = time.AfterFunc(echoTimeout, func() {
						if err := sensor.Timeout(); err != nil {
							log.Printf("guard timer: %v", err)
						}
					})
				}

			case err != nil:
				log.Printf("sensor error: %v", err)

			default:
				if guard != nil {
					guard.Stop()
				}
				reading := sonar.Reading{Time: t, Distance: d}
				if d != nil {
					log.Printf("reading: %s", d)
				} else {
					log.Printf("no echo within %v", echoTimeout)
				}

				if tracker != nil {
					tracker.RecordReading(reading)
				}
				if err := publisher.Publish(reading); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
				if sink != nil {
					sink.WriteReading(reading)
				}
			}

			// Update status tracker for HTTP consumers
			if tracker != nil {
				tracker.SetState(sensor.State())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			// Check for heartbeat
			if tracker != nil && heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				counts := tracker.CountsSnapshot()
				log.Printf("heartbeat: uptime=%v readings=%d timeouts=%d wrong_mode=%d",
					t.Sub(startTime).Truncate(time.Second), counts.Readings, counts.Timeouts, counts.WrongMode)

				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				hbEvent := mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// measureOnce runs one synchronous measurement cycle for the -measure
// flag. Returns nil when no echo arrived within the guard window.
func measureOnce(sensor *sonar.Sensor, echoTimeout time.Duration) (*sonar.Distance, error) {
	deadline := time.Now().Add(echoTimeout)
	timedOut := false
	for {
		d, err := sensor.Distance()
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, sonar.ErrNotReady) {
			return nil, err
		}
		if !timedOut && time.Now().After(deadline) {
			// No-op if the echo wins the race.
			sensor.Timeout()
			timedOut = true
		}
		time.Sleep(time.Millisecond)
	}
}

// Influx env var names (optionally loaded from .env).
const (
	envInfluxURL    = "INFLUX_URL"
	envInfluxToken  = "INFLUX_TOKEN"
	envInfluxOrg    = "INFLUX_ORG"
	envInfluxBucket = "INFLUX_BUCKET"
)

// newStoreFromEnv builds the optional InfluxDB sink. Returns nil when
// INFLUX_URL is not set.
func newStoreFromEnv() store.Writer {
	url := os.Getenv(envInfluxURL)
	if url == "" {
		return nil
	}
	log.Printf("influx sink enabled: %s", url)
	return store.NewInfluxWriter(url,
		os.Getenv(envInfluxToken),
		os.Getenv(envInfluxOrg),
		os.Getenv(envInfluxBucket),
		"hc-sr04")
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
