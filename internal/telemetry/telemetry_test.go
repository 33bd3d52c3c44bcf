package telemetry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/prana-tool/internal/config"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/state"
	"github.com/vitaminmoo/prana-tool/internal/telemetry"
)

type fakeWriter struct {
	points []*write.Point
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.points = append(f.points, p)
}

func fields(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestRecordUnknownWritesNothing(t *testing.T) {
	w := &fakeWriter{}
	telemetry.NewRecorder(w, "AA").Record(state.Snapshot{})
	if len(w.points) != 0 {
		t.Errorf("wrote %d points, want 0", len(w.points))
	}
}

func TestRecordStatusAndSensors(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := state.Snapshot{
		Status: &protocol.Status{
			IsOn: true, FlowsLocked: true, SpeedLocked: 4, Brightness: 2,
			Sensors: &protocol.Sensors{CO2: 650, TemperatureIn: 21.5},
		},
		Speed:       4,
		LastUpdated: at,
	}

	w := &fakeWriter{}
	telemetry.NewRecorder(w, "00:A0:50:11:22:33").Record(snap)
	if len(w.points) != 2 {
		t.Fatalf("wrote %d points, want 2", len(w.points))
	}

	status := w.points[0]
	if status.Name() != "prana_status" {
		t.Errorf("Name() = %q", status.Name())
	}
	if !status.Time().Equal(at) {
		t.Errorf("Time() = %v, want frame time %v", status.Time(), at)
	}
	tags := status.TagList()
	if len(tags) != 1 || tags[0].Key != "device" || tags[0].Value != "00:A0:50:11:22:33" {
		t.Errorf("tags = %+v", tags)
	}
	f := fields(status)
	if f["speed"] != int64(4) || f["on"] != int64(1) || f["heating"] != int64(0) {
		t.Errorf("status fields = %v", f)
	}

	sensors := fields(w.points[1])
	if sensors["co2"] != int64(650) || sensors["temperature_in"] != 21.5 {
		t.Errorf("sensor fields = %v", sensors)
	}
}

func TestRecordWithoutSensorBoard(t *testing.T) {
	w := &fakeWriter{}
	telemetry.NewRecorder(w, "AA").Record(state.Snapshot{Status: &protocol.Status{IsOn: true}})
	if len(w.points) != 1 {
		t.Errorf("wrote %d points, want status only", len(w.points))
	}
}

func TestConnectDisabled(t *testing.T) {
	_, err := telemetry.Connect(config.InfluxDBConfig{}, "AA", logrus.New())
	if !errors.Is(err, telemetry.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}
