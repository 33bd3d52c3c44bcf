package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/vitaminmoo/prana-tool/internal/ble"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/state"
)

func TestStatusUnknown(t *testing.T) {
	var buf bytes.Buffer
	Status(&buf, NewStatusReport("AA", state.Snapshot{}, 0, false), time.Now())

	out := buf.String()
	if !strings.Contains(out, "No state received") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "Signal") {
		t.Error("signal shown without a reading")
	}
}

func TestStatusKnown(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := state.Snapshot{
		Status: &protocol.Status{
			IsOn: true, OutputFanOn: true, SpeedOut: 7, AutoMode: true, Brightness: 4,
			Sensors: &protocol.Sensors{CO2: 612, Humidity: 41},
		},
		Speed:       7,
		LastUpdated: updated,
	}
	var buf bytes.Buffer
	Status(&buf, NewStatusReport("00:A0:50:11:22:33", snap, -71, true), updated.Add(2*time.Minute))

	out := buf.String()
	for _, want := range []string{
		"Signal:          -71 dBm",
		"Power:           on",
		"Speed:           7/10 (70%)",
		"Flows:           in 0, out 7",
		"Mode:            auto",
		"Direction:       forward",
		"CO2:             612 ppm",
		"Updated:         2 minutes ago (stale)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusReportJSON(t *testing.T) {
	r := NewStatusReport("AA", state.Snapshot{Status: &protocol.Status{IsOn: true}, Fresh: true}, 0, false)
	var buf bytes.Buffer
	if err := PrintJSON(&buf, r); err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["rssi"]; ok {
		t.Error("rssi present without a reading")
	}
	snap, _ := m["snapshot"].(map[string]any)
	if snap["available"] != true {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestPrintPayload(t *testing.T) {
	var buf bytes.Buffer
	PrintPayload(&buf, []byte("PRANA-150 fw 1.0\r\n"))
	if buf.String() != "PRANA-150 fw 1.0\n" {
		t.Errorf("text payload = %q", buf.String())
	}

	buf.Reset()
	PrintPayload(&buf, []byte{0xBE, 0xEF, 0x01})
	if !strings.HasPrefix(buf.String(), "0000  be ef 01") {
		t.Errorf("binary payload = %q", buf.String())
	}
}

func TestAdvertisements(t *testing.T) {
	var buf bytes.Buffer
	Advertisements(&buf, nil)
	if buf.String() != "No units found\n" {
		t.Errorf("empty = %q", buf.String())
	}

	buf.Reset()
	Advertisements(&buf, []ble.Advertisement{{Address: "00:A0:50:11:22:33", Name: "PRANA", RSSI: -55}})
	if buf.String() != "00:A0:50:11:22:33   -55 dBm  PRANA\n" {
		t.Errorf("list = %q", buf.String())
	}
}
