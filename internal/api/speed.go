package api

import (
	"context"
	"fmt"
	"math"

	"github.com/vitaminmoo/prana-tool/internal/protocol"
)

// Speed range of the unit. Zero means off.
const (
	MinSpeed = 1
	MaxSpeed = 10
)

// SetSpeed walks the fan speed to target one notch at a time, sending
// exactly |target - speed| SpeedUp or SpeedDown commands where speed is the
// tracked effective speed. A unit that is off counts as speed 0 and is
// turned on before stepping.
//
// The counter is optimistic and never re-read: the unit resumes at its
// previous speed after TurnOn and ignores steps past its limits, so the
// tracked speed can drift from the real one until the next status frame.
func (c *Client) SetSpeed(ctx context.Context, target int) error {
	if target < 0 || target > MaxSpeed {
		return fmt.Errorf("%w: speed %d not in [0,%d]", ErrValueRange, target, MaxSpeed)
	}

	v, err := c.known(ctx)
	if err != nil {
		return err
	}
	if target == v.Speed {
		return nil
	}

	if !v.Status.IsOn {
		if err := c.TurnOn(ctx); err != nil {
			return err
		}
	}

	cmd, step := protocol.SpeedUp, 1
	if target < v.Speed {
		cmd, step = protocol.SpeedDown, -1
	}

	version := c.session.Model().Version()
	c.log.Debugf("Stepping speed %d -> %d", v.Speed, target)
	for counter := v.Speed; counter != target; counter += step {
		if err := c.send(ctx, cmd); err != nil {
			return err
		}
	}

	c.track(version, func(v *View) {
		if target > 0 {
			v.Status.IsOn = true
		}
		v.Status.SpeedLocked = target
		v.Status.SpeedIn = target
		v.Status.SpeedOut = target
		v.Speed = target
	})
	return nil
}

// SetHighSpeed jumps straight to the top speed.
func (c *Client) SetHighSpeed(ctx context.Context) error {
	version := c.session.Model().Version()
	if err := c.send(ctx, protocol.HighSpeed); err != nil {
		return err
	}
	c.track(version, func(v *View) {
		v.Status.IsOn = true
		v.Status.SpeedLocked = MaxSpeed
		v.Status.SpeedIn = MaxSpeed
		v.Status.SpeedOut = MaxSpeed
		v.Speed = MaxSpeed
	})
	return nil
}

// SpeedToPct maps a speed onto 0..100.
func SpeedToPct(speed int) int {
	return speed * 100 / (MaxSpeed - MinSpeed + 1)
}

// PctToSpeed maps a percentage onto the speed range, rounding up so any
// non-zero percentage keeps the fan running.
func PctToSpeed(pct int) int {
	return int(math.Ceil(float64(pct) * float64(MaxSpeed-MinSpeed+1) / 100))
}

// SpeedPct is the tracked speed as a percentage.
func (c *Client) SpeedPct() int {
	return SpeedToPct(c.View().Speed)
}

// SetSpeedPct sets the speed from a percentage; 0 turns the unit off.
func (c *Client) SetSpeedPct(ctx context.Context, pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: percentage %d not in [0,100]", ErrValueRange, pct)
	}
	speed := PctToSpeed(pct)
	if speed == 0 {
		return c.SetPower(ctx, false)
	}
	return c.SetSpeed(ctx, speed)
}
