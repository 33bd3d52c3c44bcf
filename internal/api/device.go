package api

import (
	"context"
	"fmt"
	"time"

	"github.com/vitaminmoo/prana-tool/internal/protocol"
)

// Refresh asks the device for a status frame and returns without waiting
// for it.
func (c *Client) Refresh(ctx context.Context) error {
	return c.send(ctx, protocol.ReadState)
}

// Status reads the device state and waits for the answer.
func (c *Client) Status(ctx context.Context) (View, error) {
	if _, err := c.readAndWait(ctx); err != nil {
		return View{}, err
	}
	return c.View(), nil
}

// known returns the tracked view, reading the device first if nothing has
// been received yet so toggles never act on a guess.
func (c *Client) known(ctx context.Context) (View, error) {
	if v := c.View(); v.Known {
		return v, nil
	}
	return c.Status(ctx)
}

// TurnOn starts the unit.
func (c *Client) TurnOn(ctx context.Context) error {
	version := c.session.Model().Version()
	if err := c.send(ctx, protocol.TurnOn); err != nil {
		return err
	}
	c.track(version, func(v *View) {
		v.Status.IsOn = true
		v.Speed = v.Status.EffectiveSpeed()
	})
	return nil
}

// TurnOff stops the unit.
func (c *Client) TurnOff(ctx context.Context) error {
	version := c.session.Model().Version()
	if err := c.send(ctx, protocol.TurnOff); err != nil {
		return err
	}
	c.track(version, func(v *View) {
		v.Status.IsOn = false
		v.Speed = 0
	})
	return nil
}

// SetPower turns the unit on or off unless it is already there.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	v, err := c.known(ctx)
	if err != nil {
		return err
	}
	if v.Status.IsOn == on {
		return nil
	}
	if on {
		return c.TurnOn(ctx)
	}
	return c.TurnOff(ctx)
}

// flag selects one toggleable field of the status.
type flag func(*protocol.Status) *bool

var (
	heating     flag = func(s *protocol.Status) *bool { return &s.MiniHeatingEnabled }
	winterMode  flag = func(s *protocol.Status) *bool { return &s.WinterModeEnabled }
	autoMode    flag = func(s *protocol.Status) *bool { return &s.AutoMode }
	flowsLocked flag = func(s *protocol.Status) *bool { return &s.FlowsLocked }
	nightMode   flag = func(s *protocol.Status) *bool { return &s.NightMode }
	airIn       flag = func(s *protocol.Status) *bool { return &s.InputFanOn }
	airOut      flag = func(s *protocol.Status) *bool { return &s.OutputFanOn }
)

// setFlag sends the toggle cmd only when the tracked value differs from want.
func (c *Client) setFlag(ctx context.Context, f flag, want bool, cmd protocol.Command) error {
	v, err := c.known(ctx)
	if err != nil {
		return err
	}
	if *f(&v.Status) == want {
		c.log.WithField("command", cmd.String()).Debugf("Already %v, skipping", want)
		return nil
	}
	return c.toggle(ctx, f, cmd)
}

// toggle sends cmd and flips the tracked value.
func (c *Client) toggle(ctx context.Context, f flag, cmd protocol.Command) error {
	version := c.session.Model().Version()
	if err := c.send(ctx, cmd); err != nil {
		return err
	}
	c.track(version, func(v *View) {
		p := f(&v.Status)
		*p = !*p
		v.Speed = v.Status.EffectiveSpeed()
	})
	return nil
}

func (c *Client) SetHeating(ctx context.Context, on bool) error {
	return c.setFlag(ctx, heating, on, protocol.ToggleHeating)
}

func (c *Client) SetWinterMode(ctx context.Context, on bool) error {
	return c.setFlag(ctx, winterMode, on, protocol.ToggleWinterMode)
}

func (c *Client) SetAutoMode(ctx context.Context, on bool) error {
	return c.setFlag(ctx, autoMode, on, protocol.ToggleAutoMode)
}

func (c *Client) ToggleAutoMode(ctx context.Context) error {
	return c.toggle(ctx, autoMode, protocol.ToggleAutoMode)
}

func (c *Client) SetFlowsLocked(ctx context.Context, on bool) error {
	return c.setFlag(ctx, flowsLocked, on, protocol.ToggleFlowLock)
}

// ToggleFlowLock switches between locked and independent in/out speeds.
func (c *Client) ToggleFlowLock(ctx context.Context) error {
	return c.toggle(ctx, flowsLocked, protocol.ToggleFlowLock)
}

func (c *Client) SetNightMode(ctx context.Context, on bool) error {
	return c.setFlag(ctx, nightMode, on, protocol.NightMode)
}

func (c *Client) ToggleAirIn(ctx context.Context) error {
	return c.toggle(ctx, airIn, protocol.ToggleAirIn)
}

func (c *Client) ToggleAirOut(ctx context.Context) error {
	return c.toggle(ctx, airOut, protocol.ToggleAirOut)
}

// Preset modes.
const (
	PresetAuto   = "auto"
	PresetManual = "manual"
)

// PresetMode reports "auto" or "manual".
func (c *Client) PresetMode() string {
	if c.View().Status.AutoMode {
		return PresetAuto
	}
	return PresetManual
}

// SetPresetMode switches between automatic and manual control.
func (c *Client) SetPresetMode(ctx context.Context, preset string) error {
	switch preset {
	case PresetAuto:
		return c.SetAutoMode(ctx, true)
	case PresetManual:
		return c.SetAutoMode(ctx, false)
	default:
		return fmt.Errorf("%w: preset %q (want %s or %s)", ErrValueRange, preset, PresetAuto, PresetManual)
	}
}

// Direction of airflow.
type Direction string

const (
	// Forward runs only the output fan.
	Forward Direction = "forward"
	// Reverse runs only the input fan.
	Reverse Direction = "reverse"
	// Both runs both fans.
	Both Direction = "both"
)

// ParseDirection accepts forward, reverse and both.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Forward, Reverse, Both:
		return d, nil
	}
	return "", fmt.Errorf("%w: direction %q", ErrValueRange, s)
}

// Direction is the tracked airflow direction.
func (c *Client) Direction() Direction {
	v := c.View()
	return DirectionOf(v.Status, v.Speed)
}

// DirectionOf derives the airflow direction from the fan switches. It is
// empty while the unit is not moving air.
func DirectionOf(s protocol.Status, speed int) Direction {
	switch {
	case speed == 0:
		return ""
	case !s.InputFanOn:
		return Forward
	case !s.OutputFanOn:
		return Reverse
	default:
		return Both
	}
}

// SetDirection switches fans so that air flows in direction d. A fan is
// enabled before the other one is disabled.
func (c *Client) SetDirection(ctx context.Context, d Direction) error {
	if _, err := ParseDirection(string(d)); err != nil {
		return err
	}
	v, err := c.known(ctx)
	if err != nil {
		return err
	}

	wantIn := d == Reverse || d == Both
	wantOut := d == Forward || d == Both

	if wantIn && !v.Status.InputFanOn {
		if err := c.toggle(ctx, airIn, protocol.ToggleAirIn); err != nil {
			return err
		}
	}
	if wantOut && !v.Status.OutputFanOn {
		if err := c.toggle(ctx, airOut, protocol.ToggleAirOut); err != nil {
			return err
		}
	}
	if !wantIn && v.Status.InputFanOn {
		if err := c.toggle(ctx, airIn, protocol.ToggleAirIn); err != nil {
			return err
		}
	}
	if !wantOut && v.Status.OutputFanOn {
		if err := c.toggle(ctx, airOut, protocol.ToggleAirOut); err != nil {
			return err
		}
	}
	return nil
}

// ReadDeviceDetails asks for the details record and returns the first
// notification that either echoes the details opcode (BE EF 05 02) or
// lacks the status prefix. Plain status frames are skipped.
func (c *Client) ReadDeviceDetails(ctx context.Context) ([]byte, error) {
	frames, cancel := c.session.Tap(8)
	defer cancel()

	if err := c.send(ctx, protocol.ReadDeviceDetails); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.replyTimeout)
	defer timer.Stop()
	for {
		select {
		case f := <-frames:
			if protocol.IsStatusFrame(f) && !protocol.IsDetailsReply(f) {
				continue
			}
			return f, nil
		case <-timer.C:
			return nil, fmt.Errorf("%w after %s", ErrNoReply, c.replyTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
