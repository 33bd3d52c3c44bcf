package api_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/retry"
	"github.com/vitaminmoo/prana-tool/internal/session"
	"github.com/vitaminmoo/prana-tool/internal/session/sessiontest"
	"github.com/vitaminmoo/prana-tool/internal/state"
)

type fixture struct {
	dev    *sessiontest.Device
	tr     *sessiontest.Transport
	client *api.Client
}

func newFixture(t *testing.T, setup func(*sessiontest.Device)) *fixture {
	t.Helper()
	dev := sessiontest.NewDevice()
	if setup != nil {
		dev.Update(setup)
	}
	tr := sessiontest.NewTransport(dev)
	s := session.New(tr, state.NewModel(0), session.Options{Address: "00:A0:50:11:22:33", IdleTimeout: time.Minute})
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	c := api.New(s, api.Options{ReplyTimeout: 200 * time.Millisecond})
	return &fixture{dev: dev, tr: tr, client: c}
}

func running(speed int) func(*sessiontest.Device) {
	return func(d *sessiontest.Device) {
		d.On = true
		d.SpeedLocked, d.SpeedIn, d.SpeedOut = speed, speed, speed
	}
}

func TestSetSpeedSteps(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		cmd      protocol.Command
		steps    int
	}{
		{"up", 3, 6, protocol.SpeedUp, 3},
		{"down", 5, 2, protocol.SpeedDown, 3},
		{"one up", 9, 10, protocol.SpeedUp, 1},
		{"same", 4, 4, protocol.SpeedUp, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, running(tt.from))

			if err := f.client.SetSpeed(context.Background(), tt.to); err != nil {
				t.Fatalf("SetSpeed() error = %v", err)
			}
			sent := f.dev.Sent()
			if len(sent) != tt.steps {
				t.Fatalf("sent %v, want %d x %s", sent, tt.steps, tt.cmd)
			}
			for _, c := range sent {
				if c != tt.cmd {
					t.Errorf("sent %s, want only %s", c, tt.cmd)
				}
			}
			if got := f.client.View().Speed; got != tt.to {
				t.Errorf("tracked speed = %d, want %d", got, tt.to)
			}
		})
	}
}

func TestSetSpeedFromOffCountsFromZero(t *testing.T) {
	f := newFixture(t, nil) // off, resumes at 3

	if err := f.client.SetSpeed(context.Background(), 5); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	want := []protocol.Command{
		protocol.TurnOn,
		protocol.SpeedUp, protocol.SpeedUp, protocol.SpeedUp, protocol.SpeedUp, protocol.SpeedUp,
	}
	if got := f.dev.Sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent %v, want %v", got, want)
	}
	// The unit resumed at 3, so five steps overshoot. The counter is not
	// re-read and the drift shows up in the next frame.
	var speed int
	f.dev.Update(func(d *sessiontest.Device) { speed = d.SpeedLocked })
	if speed != 8 {
		t.Errorf("device speed = %d, want 8", speed)
	}
}

func TestSetSpeedZeroStepsDown(t *testing.T) {
	f := newFixture(t, running(3))

	if err := f.client.SetSpeed(context.Background(), 0); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	want := []protocol.Command{protocol.SpeedDown, protocol.SpeedDown, protocol.SpeedDown}
	if got := f.dev.Sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent %v, want %v", got, want)
	}
	if n := f.dev.Count(protocol.TurnOff); n != 0 {
		t.Errorf("turn-off sent %d times, want 0", n)
	}
}

func TestRangeErrorsDoNoIO(t *testing.T) {
	f := newFixture(t, running(3))
	ctx := context.Background()

	checks := map[string]error{
		"speed 11":          f.client.SetSpeed(ctx, 11),
		"speed -1":          f.client.SetSpeed(ctx, -1),
		"brightness 7":      f.client.SetBrightness(ctx, 7),
		"brightness -1":     f.client.SetBrightness(ctx, -1),
		"brightness pct":    f.client.SetBrightnessPct(ctx, 101),
		"speed pct":         f.client.SetSpeedPct(ctx, -5),
		"preset":            f.client.SetPresetMode(ctx, "turbo"),
		"direction sideway": f.client.SetDirection(ctx, "sideways"),
	}
	for name, err := range checks {
		if !errors.Is(err, api.ErrValueRange) {
			t.Errorf("%s: error = %v, want ErrValueRange", name, err)
		}
	}
	if f.tr.Dials() != 0 {
		t.Errorf("Dials() = %d, want 0", f.tr.Dials())
	}
}

func TestSetBrightness(t *testing.T) {
	tests := []struct {
		from, to, presses int
	}{
		{3, 5, 2},
		{5, 2, 4},
		{6, 0, 1},
		{0, 6, 6},
		{3, 3, 0},
	}
	for _, tt := range tests {
		f := newFixture(t, func(d *sessiontest.Device) { d.Brightness = tt.from })

		if err := f.client.SetBrightness(context.Background(), tt.to); err != nil {
			t.Fatalf("SetBrightness(%d) error = %v", tt.to, err)
		}
		if got := f.dev.Count(protocol.ChangeBrightness); got != tt.presses {
			t.Errorf("%d -> %d: presses = %d, want %d", tt.from, tt.to, got, tt.presses)
		}
		if got := f.client.Snapshot().Status.Brightness; got != tt.to {
			t.Errorf("%d -> %d: device brightness = %d", tt.from, tt.to, got)
		}
	}
}

func TestSetBrightnessUsesFreshRead(t *testing.T) {
	f := newFixture(t, func(d *sessiontest.Device) { d.Brightness = 1 })
	ctx := context.Background()

	if _, err := f.client.Status(ctx); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	// Someone pressed the button on the unit; the model is now stale.
	f.dev.Update(func(d *sessiontest.Device) { d.Brightness = 4 })

	if err := f.client.SetBrightness(ctx, 5); err != nil {
		t.Fatalf("SetBrightness() error = %v", err)
	}
	if got := f.dev.Count(protocol.ChangeBrightness); got != 1 {
		t.Errorf("presses = %d, want 1", got)
	}
}

func TestSetBrightnessNoReply(t *testing.T) {
	f := newFixture(t, func(d *sessiontest.Device) { d.Silent = true })

	err := f.client.SetBrightness(context.Background(), 2)
	if !errors.Is(err, api.ErrNoReply) {
		t.Fatalf("SetBrightness() error = %v, want ErrNoReply", err)
	}
	if n := f.dev.Count(protocol.ChangeBrightness); n != 0 {
		t.Errorf("presses = %d without a reply, want 0", n)
	}
}

func TestBrightnessSteps(t *testing.T) {
	for from := 0; from <= protocol.MaxBrightness; from++ {
		for to := 0; to <= protocol.MaxBrightness; to++ {
			steps := api.BrightnessSteps(from, to)
			if steps < 0 || steps > protocol.MaxBrightness {
				t.Fatalf("BrightnessSteps(%d, %d) = %d out of range", from, to, steps)
			}
			if (from+steps)%7 != to {
				t.Errorf("BrightnessSteps(%d, %d) = %d does not land on target", from, to, steps)
			}
		}
	}
}

func TestPctConversions(t *testing.T) {
	bright := map[int]int{0: 0, 8: 0, 9: 1, 25: 2, 50: 3, 75: 4, 100: 6}
	for pct, want := range bright {
		if got := api.PctToBrightness(pct); got != want {
			t.Errorf("PctToBrightness(%d) = %d, want %d", pct, got, want)
		}
	}

	speed := map[int]int{0: 0, 1: 1, 10: 1, 11: 2, 35: 4, 100: 10}
	for pct, want := range speed {
		if got := api.PctToSpeed(pct); got != want {
			t.Errorf("PctToSpeed(%d) = %d, want %d", pct, got, want)
		}
	}
	if got := api.SpeedToPct(3); got != 30 {
		t.Errorf("SpeedToPct(3) = %d, want 30", got)
	}
}

func TestSetSpeedPct(t *testing.T) {
	f := newFixture(t, running(2))
	ctx := context.Background()

	if err := f.client.SetSpeedPct(ctx, 35); err != nil {
		t.Fatalf("SetSpeedPct(35) error = %v", err)
	}
	if got := f.client.SpeedPct(); got != 40 {
		t.Errorf("SpeedPct() = %d, want 40", got)
	}
	if err := f.client.SetSpeedPct(ctx, 0); err != nil {
		t.Fatalf("SetSpeedPct(0) error = %v", err)
	}
	if f.client.Snapshot().Status.IsOn {
		t.Error("SetSpeedPct(0) left the unit on")
	}
}

func TestTogglesCompareFirst(t *testing.T) {
	f := newFixture(t, running(3))
	ctx := context.Background()

	if err := f.client.SetHeating(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := f.client.SetHeating(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := f.client.SetWinterMode(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := f.client.SetAutoMode(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := f.client.SetFlowsLocked(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := f.client.SetNightMode(ctx, true); err != nil {
		t.Fatal(err)
	}

	want := []protocol.Command{protocol.ToggleHeating, protocol.ToggleAutoMode, protocol.NightMode}
	if got := f.dev.Sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent %v, want %v", got, want)
	}
	if f.client.PresetMode() != api.PresetAuto {
		t.Errorf("PresetMode() = %s, want auto", f.client.PresetMode())
	}

	if err := f.client.SetPresetMode(ctx, api.PresetManual); err != nil {
		t.Fatal(err)
	}
	if f.client.PresetMode() != api.PresetManual {
		t.Errorf("PresetMode() = %s, want manual", f.client.PresetMode())
	}
}

func TestUnconditionalToggles(t *testing.T) {
	f := newFixture(t, running(3))
	ctx := context.Background()

	if err := f.client.ToggleFlowLock(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.client.ToggleAutoMode(ctx); err != nil {
		t.Fatal(err)
	}
	want := []protocol.Command{protocol.ToggleFlowLock, protocol.ToggleAutoMode}
	if got := f.dev.Sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent %v, want %v", got, want)
	}
	if f.client.View().Status.FlowsLocked {
		t.Error("flows still locked after toggle")
	}
}

func TestOptimisticValuesUntilNextFrame(t *testing.T) {
	f := newFixture(t, running(3))
	ctx := context.Background()

	if _, err := f.client.Status(ctx); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	f.dev.Update(func(d *sessiontest.Device) { d.Silent = true })

	if err := f.client.SetHeating(ctx, true); err != nil {
		t.Fatal(err)
	}
	v := f.client.View()
	if !v.Optimistic || !v.Status.MiniHeatingEnabled {
		t.Fatalf("View() = %+v, want optimistic heating", v)
	}
	if f.client.Snapshot().Status.MiniHeatingEnabled {
		t.Error("optimistic value leaked into the model")
	}

	// A repeat is skipped on the tracked value alone.
	if err := f.client.SetHeating(ctx, true); err != nil {
		t.Fatal(err)
	}
	if n := f.dev.Count(protocol.ToggleHeating); n != 1 {
		t.Errorf("toggles = %d, want 1", n)
	}

	// The device disagrees; its next frame wins.
	f.dev.Update(func(d *sessiontest.Device) { d.Heating = false })
	f.tr.Last().Notify(f.dev.Frame())

	v = f.client.View()
	if v.Optimistic || v.Status.MiniHeatingEnabled {
		t.Errorf("View() after frame = %+v, want device state", v)
	}
}

func TestSetDirection(t *testing.T) {
	f := newFixture(t, running(3))
	ctx := context.Background()

	if err := f.client.SetDirection(ctx, api.Forward); err != nil {
		t.Fatal(err)
	}
	if got := f.dev.Sent(); !reflect.DeepEqual(got, []protocol.Command{protocol.ToggleAirIn}) {
		t.Errorf("sent %v, want [toggle-air-in]", got)
	}
	if d := f.client.Direction(); d != api.Forward {
		t.Errorf("Direction() = %q, want forward", d)
	}

	if err := f.client.SetDirection(ctx, api.Reverse); err != nil {
		t.Fatal(err)
	}
	want := []protocol.Command{protocol.ToggleAirIn, protocol.ToggleAirIn, protocol.ToggleAirOut}
	if got := f.dev.Sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent %v, want %v", got, want)
	}
	if d := f.client.Direction(); d != api.Reverse {
		t.Errorf("Direction() = %q, want reverse", d)
	}
}

func TestReadDeviceDetails(t *testing.T) {
	f := newFixture(t, nil)

	details, err := f.client.ReadDeviceDetails(context.Background())
	if err != nil {
		t.Fatalf("ReadDeviceDetails() error = %v", err)
	}
	if string(details) != "PRANA-150 fw 1.0\r\n" {
		t.Errorf("details = %q", details)
	}
}

func TestRetryReconnects(t *testing.T) {
	errFlaky := errors.New("flaky link")
	dev := sessiontest.NewDevice()
	tr := sessiontest.NewTransport(dev)
	tr.DialErrs = []error{errFlaky, errFlaky}
	s := session.New(tr, state.NewModel(0), session.Options{Address: "x"})
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	c := api.New(s, api.Options{Retry: retry.Policy{
		MaxAttempts: 3,
		Classify: func(err error) retry.Class {
			if errors.Is(err, errFlaky) {
				return retry.Immediate
			}
			return retry.NoRetry
		},
	}})

	if err := c.TurnOn(context.Background()); err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}
	if tr.Dials() != 3 {
		t.Errorf("Dials() = %d, want 3", tr.Dials())
	}

	tr.DialErrs = nil
	_ = s.Disconnect(context.Background())
	tr.DialErrs = []error{errFlaky, errFlaky, errFlaky}
	err := c.TurnOff(context.Background())
	if !errors.Is(err, errFlaky) {
		t.Errorf("TurnOff() error = %v, want last error %v", err, errFlaky)
	}
}

func TestReadDeviceDetailsWithPrefix(t *testing.T) {
	reply := []byte{0xBE, 0xEF, 0x05, 0x02, 0x01, 0x50, 0x00}
	f := newFixture(t, func(d *sessiontest.Device) { d.Details = reply })

	details, err := f.client.ReadDeviceDetails(context.Background())
	if err != nil {
		t.Fatalf("ReadDeviceDetails() error = %v", err)
	}
	if !reflect.DeepEqual(details, reply) {
		t.Errorf("details = % X, want % X", details, reply)
	}
}
