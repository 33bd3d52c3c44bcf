// Package telemetry records every applied status frame in InfluxDB.
package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/prana-tool/internal/config"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/state"
)

const (
	connectTimeout = 10 * time.Second

	measurementStatus  = "prana_status"
	measurementSensors = "prana_sensors"
)

// PointWriter is the non-blocking half of the InfluxDB write API.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Recorder turns snapshots into points.
type Recorder struct {
	writer PointWriter
	tags   map[string]string
}

// NewRecorder writes points tagged with the device address.
func NewRecorder(w PointWriter, address string) *Recorder {
	return &Recorder{writer: w, tags: map[string]string{"device": address}}
}

// Record writes one snapshot. Unknown state writes nothing.
func (r *Recorder) Record(snap state.Snapshot) {
	for _, p := range Points(snap, r.tags) {
		r.writer.WritePoint(p)
	}
}

func flag(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Points converts a snapshot into status and, with a sensor board, sensor
// points stamped with the frame's arrival time.
func Points(snap state.Snapshot, tags map[string]string) []*write.Point {
	if !snap.Known() {
		return nil
	}
	s := snap.Status
	at := snap.LastUpdated
	if at.IsZero() {
		at = time.Now()
	}

	points := []*write.Point{write.NewPoint(measurementStatus, tags, map[string]any{
		"on":           flag(s.IsOn),
		"speed":        snap.Speed,
		"speed_in":     s.SpeedIn,
		"speed_out":    s.SpeedOut,
		"speed_locked": s.SpeedLocked,
		"brightness":   s.Brightness,
		"auto":         flag(s.AutoMode),
		"night":        flag(s.NightMode),
		"heating":      flag(s.MiniHeatingEnabled),
		"winter":       flag(s.WinterModeEnabled),
		"flows_locked": flag(s.FlowsLocked),
		"input_fan":    flag(s.InputFanOn),
		"output_fan":   flag(s.OutputFanOn),
	}, at)}

	if sensors := s.Sensors; sensors != nil {
		points = append(points, write.NewPoint(measurementSensors, tags, sensorFields(sensors), at))
	}
	return points
}

func sensorFields(s *protocol.Sensors) map[string]any {
	return map[string]any{
		"humidity":        s.Humidity,
		"pressure":        s.Pressure,
		"co2":             s.CO2,
		"voc":             s.VOC,
		"temperature_in":  s.TemperatureIn,
		"temperature_out": s.TemperatureOut,
	}
}

// Client owns an InfluxDB connection and its recorder.
type Client struct {
	*Recorder
	client influxdb2.Client
	flush  func()
}

// Connect pings the server and sets up a batching, non-blocking writer.
// Async write errors are logged.
func Connect(cfg config.InfluxDBConfig, address string, log logrus.FieldLogger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s not healthy", ErrConnectionFailed, cfg.URL)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	log = log.WithField("component", "telemetry")
	go func() {
		for err := range writeAPI.Errors() {
			log.WithError(err).Warn("InfluxDB write failed")
		}
	}()

	return &Client{
		Recorder: NewRecorder(writeAPI, address),
		client:   client,
		flush:    writeAPI.Flush,
	}, nil
}

// Close flushes pending points and closes the connection.
func (c *Client) Close() {
	c.flush()
	c.client.Close()
}
