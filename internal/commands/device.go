package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/ble"
	"github.com/vitaminmoo/prana-tool/internal/state"
)

// StatusReport is the JSON form of the status command.
type StatusReport struct {
	Address    string         `json:"address"`
	RSSI       *int16         `json:"rssi,omitempty"`
	Speed      int            `json:"speed"`
	Percentage int            `json:"percentage"`
	Preset     string         `json:"preset"`
	Direction  string         `json:"direction,omitempty"`
	Snapshot   state.Snapshot `json:"snapshot"`
}

// NewStatusReport collects what the status command shows.
func NewStatusReport(address string, snap state.Snapshot, rssi int16, haveRSSI bool) StatusReport {
	r := StatusReport{
		Address:    address,
		Speed:      snap.Speed,
		Percentage: api.SpeedToPct(snap.Speed),
		Preset:     api.PresetManual,
		Snapshot:   snap,
	}
	if haveRSSI {
		r.RSSI = &rssi
	}
	if snap.Known() {
		if snap.Status.AutoMode {
			r.Preset = api.PresetAuto
		}
		r.Direction = string(api.DirectionOf(*snap.Status, snap.Speed))
	}
	return r
}

// Status prints a report in the aligned label style.
func Status(w io.Writer, r StatusReport, now time.Time) {
	field(w, "Address", "%s", r.Address)
	if r.RSSI != nil {
		field(w, "Signal", "%d dBm", *r.RSSI)
	}
	if !r.Snapshot.Known() {
		fmt.Fprintln(w, "No state received")
		return
	}
	s := r.Snapshot.Status

	field(w, "Power", "%s", onOff(s.IsOn))
	field(w, "Speed", "%d/%d (%d%%)", r.Speed, api.MaxSpeed, r.Percentage)
	if s.FlowsLocked {
		field(w, "Flows", "locked")
	} else {
		field(w, "Flows", "in %d, out %d", s.SpeedIn, s.SpeedOut)
	}
	field(w, "Mode", "%s", r.Preset)
	if r.Direction != "" {
		field(w, "Direction", "%s", r.Direction)
	}
	field(w, "Brightness", "%d", s.Brightness)
	field(w, "Heating", "%s", onOff(s.MiniHeatingEnabled))
	field(w, "Winter mode", "%s", onOff(s.WinterModeEnabled))
	field(w, "Night mode", "%s", onOff(s.NightMode))

	if sensors := s.Sensors; sensors != nil {
		field(w, "Inside", "%.1f °C", sensors.TemperatureIn)
		field(w, "Outside", "%.1f °C", sensors.TemperatureOut)
		field(w, "Humidity", "%d%%", sensors.Humidity)
		field(w, "CO2", "%d ppm", sensors.CO2)
		field(w, "VOC", "%d ppb", sensors.VOC)
		field(w, "Pressure", "%d mmHg", sensors.Pressure)
	}

	updated := humanize.RelTime(r.Snapshot.LastUpdated, now, "ago", "from now")
	if !r.Snapshot.Fresh {
		updated += " (stale)"
	}
	field(w, "Updated", "%s", updated)
}

// Advertisements prints discovered units, one per line.
func Advertisements(w io.Writer, ads []ble.Advertisement) {
	if len(ads) == 0 {
		fmt.Fprintln(w, "No units found")
		return
	}
	for _, a := range ads {
		fmt.Fprintf(w, "%s  %4d dBm  %s\n", a.Address, a.RSSI, a.Name)
	}
}
