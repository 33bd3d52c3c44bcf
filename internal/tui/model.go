package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/state"
)

const actionTimeout = time.Minute

// Model is the Bubbletea model for the live dashboard.
type Model struct {
	ctx     context.Context
	client  *api.Client
	updates <-chan state.Snapshot
	now     func() time.Time

	// Data
	view      api.View
	snap      state.Snapshot
	busy      string // name of the running action, empty when idle
	errorMsg  string
	statusMsg string
	width     int

	// Components
	keys       KeyMap
	help       help.Model
	spinner    spinner.Model
	styles     Styles
	speed      Gauge
	brightness Gauge
}

// --- Custom messages for async operations ---

// snapshotMsg carries a newly applied frame.
type snapshotMsg state.Snapshot

// actionMsg reports a finished device operation.
type actionMsg struct {
	name string
	err  error
}

// tickMsg re-renders relative timestamps.
type tickMsg time.Time

// NewModel creates the dashboard for client. updates delivers snapshots as
// frames arrive.
func NewModel(ctx context.Context, client *api.Client, updates <-chan state.Snapshot) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		ctx:        ctx,
		client:     client,
		updates:    updates,
		now:        time.Now,
		view:       client.View(),
		snap:       client.Snapshot(),
		busy:       "connect",
		keys:       DefaultKeyMap(),
		help:       help.New(),
		spinner:    s,
		styles:     DefaultStyles(),
		speed:      NewGauge(api.MaxSpeed),
		brightness: NewGauge(protocol.MaxBrightness),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.action("connect", m.client.Refresh),
		waitForSnapshotCmd(m.updates),
		m.spinner.Tick,
		tickCmd(),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.snap = state.Snapshot(msg)
		m.view = m.client.View()
		return m, waitForSnapshotCmd(m.updates)

	case actionMsg:
		m.busy = ""
		m.view = m.client.View()
		m.snap = m.client.Snapshot()
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("%s failed: %v", msg.name, msg.err)
			m.statusMsg = ""
			return m, nil
		}
		m.errorMsg = ""
		m.statusMsg = msg.name + " done"
		return m, nil

	case tickMsg:
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	name, fn := m.actionFor(msg)
	if fn == nil {
		return m, nil
	}
	// One logical operation at a time.
	if m.busy != "" {
		m.statusMsg = "busy: " + m.busy
		return m, nil
	}
	m.busy = name
	m.statusMsg = ""
	return m, m.action(name, fn)
}

// actionFor maps a key to a device operation based on the tracked state.
func (m Model) actionFor(msg tea.KeyMsg) (string, func(context.Context) error) {
	c := m.client
	s := m.view.Status

	switch {
	case key.Matches(msg, m.keys.SpeedUp):
		if !s.IsOn {
			return "turn on", c.TurnOn
		}
		target := min(m.view.Speed+1, api.MaxSpeed)
		return fmt.Sprintf("speed %d", target), func(ctx context.Context) error { return c.SetSpeed(ctx, target) }
	case key.Matches(msg, m.keys.SpeedDown):
		if s.IsOn && m.view.Speed <= api.MinSpeed {
			return "turn off", c.TurnOff
		}
		target := max(m.view.Speed-1, 0)
		return fmt.Sprintf("speed %d", target), func(ctx context.Context) error { return c.SetSpeed(ctx, target) }
	case key.Matches(msg, m.keys.Power):
		if s.IsOn {
			return "turn off", c.TurnOff
		}
		return "turn on", c.TurnOn
	case key.Matches(msg, m.keys.Boost):
		return "boost", c.SetHighSpeed
	case key.Matches(msg, m.keys.Brightness):
		return "brightness", c.CycleBrightness
	case key.Matches(msg, m.keys.Heating):
		return "heating", func(ctx context.Context) error { return c.SetHeating(ctx, !s.MiniHeatingEnabled) }
	case key.Matches(msg, m.keys.Winter):
		return "winter mode", func(ctx context.Context) error { return c.SetWinterMode(ctx, !s.WinterModeEnabled) }
	case key.Matches(msg, m.keys.Auto):
		return "auto mode", c.ToggleAutoMode
	case key.Matches(msg, m.keys.Night):
		return "night mode", func(ctx context.Context) error { return c.SetNightMode(ctx, !s.NightMode) }
	case key.Matches(msg, m.keys.FlowLock):
		return "flow lock", c.ToggleFlowLock
	case key.Matches(msg, m.keys.Direction):
		next := nextDirection(api.DirectionOf(s, m.view.Speed))
		return "direction " + string(next), func(ctx context.Context) error { return c.SetDirection(ctx, next) }
	case key.Matches(msg, m.keys.Refresh):
		return "refresh", c.Refresh
	}
	return "", nil
}

func nextDirection(d api.Direction) api.Direction {
	switch d {
	case api.Both:
		return api.Forward
	case api.Forward:
		return api.Reverse
	default:
		return api.Both
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTitleBar())
	b.WriteString("\n\n")

	if !m.view.Known {
		if m.busy != "" {
			b.WriteString(m.spinner.View() + " " + m.styles.Warning.Render("Waiting for the unit..."))
		} else {
			b.WriteString(m.styles.Muted.Render("No state received yet. Press r to retry."))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(m.viewStatus())
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	b.WriteString(m.styles.Help.Render(m.help.View(m.keys)))

	return m.styles.App.Render(b.String())
}

// renderTitleBar renders the title with link and availability.
func (m Model) renderTitleBar() string {
	sess := m.client.Session()
	parts := []string{m.styles.Title.Render("Prana")}

	if m.snap.Fresh {
		parts = append(parts, m.styles.StatusOnline.Render("● Online"))
	} else {
		parts = append(parts, m.styles.StatusOffline.Render("○ Unavailable"))
	}
	parts = append(parts, m.styles.Subtitle.Render(sess.Address()))
	parts = append(parts, m.styles.Subtitle.Render(sess.State().String()))
	if rssi, ok := sess.RSSI(); ok {
		parts = append(parts, m.styles.Subtitle.Render(fmt.Sprintf("%d dBm", rssi)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) viewStatus() string {
	var b strings.Builder
	s := m.view.Status

	b.WriteString(m.renderField("Power", m.onOff(s.IsOn)))
	b.WriteString(m.renderField("Speed", m.speed.View(m.view.Speed)))
	preset := api.PresetManual
	if s.AutoMode {
		preset = api.PresetAuto
	}
	b.WriteString(m.renderField("Mode", m.styles.Value.Render(preset)))
	if d := api.DirectionOf(s, m.view.Speed); d != "" {
		b.WriteString(m.renderField("Direction", m.styles.Value.Render(string(d))))
	}
	b.WriteString(m.renderField("Brightness", m.brightness.View(s.Brightness)))
	b.WriteString(m.renderField("Heating", m.onOff(s.MiniHeatingEnabled)))
	b.WriteString(m.renderField("Winter mode", m.onOff(s.WinterModeEnabled)))
	b.WriteString(m.renderField("Night mode", m.onOff(s.NightMode)))
	b.WriteString(m.renderField("Flow lock", m.onOff(s.FlowsLocked)))

	if sensors := s.Sensors; sensors != nil {
		b.WriteString(m.styles.Section.Render("Sensors"))
		b.WriteString("\n")
		b.WriteString(m.renderField("Inside", m.styles.Value.Render(fmt.Sprintf("%.1f °C", sensors.TemperatureIn))))
		b.WriteString(m.renderField("Outside", m.styles.Value.Render(fmt.Sprintf("%.1f °C", sensors.TemperatureOut))))
		b.WriteString(m.renderField("Humidity", m.styles.Value.Render(fmt.Sprintf("%d %%", sensors.Humidity))))
		b.WriteString(m.renderField("CO2", m.styles.Value.Render(fmt.Sprintf("%d ppm", sensors.CO2))))
		b.WriteString(m.renderField("VOC", m.styles.Value.Render(fmt.Sprintf("%d ppb", sensors.VOC))))
		b.WriteString(m.renderField("Pressure", m.styles.Value.Render(fmt.Sprintf("%d mmHg", sensors.Pressure))))
	}

	b.WriteString("\n")
	updated := "never"
	if !m.snap.LastUpdated.IsZero() {
		updated = humanize.RelTime(m.snap.LastUpdated, m.now(), "ago", "from now")
	}
	line := m.styles.Muted.Render("Updated " + updated)
	if m.view.Optimistic {
		line += "  " + m.styles.Warning.Render("(awaiting confirmation)")
	}
	if !m.snap.Fresh && m.snap.Known() {
		line += "  " + m.styles.Warning.Render("(stale)")
	}
	b.WriteString(line + "\n")
	return b.String()
}

func (m Model) renderStatusLine() string {
	switch {
	case m.busy != "":
		return m.spinner.View() + " " + m.styles.Warning.Render(m.busy+"...") + "\n"
	case m.errorMsg != "":
		return m.styles.Error.Render(m.errorMsg) + "\n"
	case m.statusMsg != "":
		return m.styles.Muted.Render(m.statusMsg) + "\n"
	}
	return ""
}

func (m Model) renderField(label, value string) string {
	return m.styles.Label.Render(label+":") + " " + value + "\n"
}

func (m Model) onOff(v bool) string {
	if v {
		return m.styles.On.Render("on")
	}
	return m.styles.Off.Render("off")
}

// --- Async commands ---

// action runs fn against the device and reports the result.
func (m Model) action(name string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		return actionMsg{name: name, err: fn(ctx)}
	}
}

// waitForSnapshotCmd blocks until the next snapshot is published.
func waitForSnapshotCmd(updates <-chan state.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

// tickCmd triggers a re-render so relative times stay current.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
