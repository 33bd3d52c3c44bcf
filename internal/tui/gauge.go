package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
)

// Gauge renders a bounded integer as a bar with a "n/max" suffix.
type Gauge struct {
	bar progress.Model
	max int
}

// NewGauge creates a gauge for values in 0..max.
func NewGauge(max int) Gauge {
	return Gauge{
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		max: max,
	}
}

// View renders value.
func (g Gauge) View(value int) string {
	pct := 0.0
	if g.max > 0 {
		pct = float64(value) / float64(g.max)
	}
	return fmt.Sprintf("%s %2d/%d", g.bar.ViewAs(pct), value, g.max)
}
