package store

import (
	"log"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sweeney/range-sensor/internal/sonar"
)

// InfluxWriter writes readings to an InfluxDB bucket using the
// non-blocking write API. Batching and retries are the client's.
type InfluxWriter struct {
	client influxdb2.Client
	write  api.WriteAPI
	sensor string
	done   chan struct{}
}

// NewInfluxWriter creates a writer for the given InfluxDB instance.
// sensorTag labels points so several sensors can share one bucket.
func NewInfluxWriter(url, token, org, bucket, sensorTag string) *InfluxWriter {
	client := influxdb2.NewClient(url, token)
	write := client.WriteAPI(org, bucket)

	w := &InfluxWriter{
		client: client,
		write:  write,
		sensor: sensorTag,
		done:   make(chan struct{}),
	}

	// The async write API reports failures on a channel; drain it so
	// errors surface in the log instead of piling up.
	go func() {
		defer close(w.done)
		for err := range write.Errors() {
			log.Printf("influx write error: %v", err)
		}
	}()

	return w
}

// WriteReading queues one reading. Never blocks.
func (w *InfluxWriter) WriteReading(r sonar.Reading) {
	p := influxdb2.NewPoint(
		Measurement,
		map[string]string{"sensor": w.sensor},
		readingFields(r),
		r.Time,
	)
	w.write.WritePoint(p)
}

// Close flushes pending points and shuts the client down.
func (w *InfluxWriter) Close() {
	w.write.Flush()
	w.client.Close()
	<-w.done
}
