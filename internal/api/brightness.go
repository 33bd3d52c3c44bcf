package api

import (
	"context"
	"fmt"
	"math"

	"github.com/vitaminmoo/prana-tool/internal/protocol"
)

// BrightnessSteps counts ChangeBrightness presses from one level to
// another. Brightness only goes up and wraps from 6 back to 0.
func BrightnessSteps(from, to int) int {
	n := protocol.MaxBrightness + 1
	return ((to-from)%n + n) % n
}

// SetBrightness reads the real brightness, then steps forward to target.
func (c *Client) SetBrightness(ctx context.Context, target int) error {
	if target < 0 || target > protocol.MaxBrightness {
		return fmt.Errorf("%w: brightness %d not in [0,%d]", ErrValueRange, target, protocol.MaxBrightness)
	}

	snap, err := c.readAndWait(ctx)
	if err != nil {
		return err
	}
	current := snap.Status.Brightness
	steps := BrightnessSteps(current, target)
	if steps == 0 {
		return nil
	}

	c.log.Debugf("Stepping brightness %d -> %d (%d presses)", current, target, steps)
	for i := 0; i < steps; i++ {
		if err := c.send(ctx, protocol.ChangeBrightness); err != nil {
			return err
		}
	}

	c.track(snap.Version, func(v *View) { v.Status.Brightness = target })
	return nil
}

// SetBrightnessPct maps 0..100 onto the brightness scale, rounding half
// to even.
func (c *Client) SetBrightnessPct(ctx context.Context, pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: percentage %d not in [0,100]", ErrValueRange, pct)
	}
	return c.SetBrightness(ctx, PctToBrightness(pct))
}

// PctToBrightness converts a percentage to a brightness level.
func PctToBrightness(pct int) int {
	return int(math.RoundToEven(float64(protocol.MaxBrightness*pct) / 100))
}

// CycleBrightness presses the brightness button once.
func (c *Client) CycleBrightness(ctx context.Context) error {
	version := c.session.Model().Version()
	if err := c.send(ctx, protocol.ChangeBrightness); err != nil {
		return err
	}
	c.track(version, func(v *View) {
		v.Status.Brightness = (v.Status.Brightness + 1) % (protocol.MaxBrightness + 1)
	})
	return nil
}
