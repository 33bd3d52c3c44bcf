package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/session"
	"github.com/vitaminmoo/prana-tool/internal/session/sessiontest"
	"github.com/vitaminmoo/prana-tool/internal/state"
)

func newTestModel(t *testing.T) (Model, *sessiontest.Device) {
	t.Helper()
	dev := sessiontest.NewDevice()
	s := session.New(sessiontest.NewTransport(dev), state.NewModel(0), session.Options{Address: "00:A0:50:11:22:33", IdleTimeout: time.Minute})
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	c := api.New(s, api.Options{ReplyTimeout: 200 * time.Millisecond})

	m := NewModel(context.Background(), c, make(chan state.Snapshot))
	m.busy = ""
	return m, dev
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting action to completion.
func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	res := cmd()
	if _, ok := res.(actionMsg); !ok {
		t.Fatalf("key %q produced %T, want actionMsg", msg.String(), res)
	}
	next, _ = m.Update(res)
	return next.(Model)
}

func TestPowerKeyTogglesFromTrackedState(t *testing.T) {
	m, dev := newTestModel(t)

	m = press(t, m, runes("o"))
	if m.errorMsg != "" {
		t.Fatalf("errorMsg = %q", m.errorMsg)
	}
	if m.statusMsg != "turn on done" {
		t.Errorf("statusMsg = %q", m.statusMsg)
	}
	if !m.view.Status.IsOn {
		t.Error("view not on after turn on")
	}

	m = press(t, m, runes("o"))
	if dev.Count(protocol.TurnOff) != 1 {
		t.Errorf("turn-off sent %d times, want 1", dev.Count(protocol.TurnOff))
	}
	if m.view.Status.IsOn {
		t.Error("view still on after turn off")
	}
}

func TestSpeedKeysStepOneNotch(t *testing.T) {
	m, dev := newTestModel(t)
	dev.Update(func(d *sessiontest.Device) {
		d.On = true
	})

	m = press(t, m, runes("r"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.view.Speed != 4 {
		t.Errorf("Speed = %d after up, want 4", m.view.Speed)
	}
	m = press(t, m, runes("j"))
	m = press(t, m, runes("j"))
	if m.view.Speed != 2 {
		t.Errorf("Speed = %d after two downs, want 2", m.view.Speed)
	}
}

func TestSpeedDownAtLowestTurnsOff(t *testing.T) {
	m, dev := newTestModel(t)
	dev.Update(func(d *sessiontest.Device) {
		d.On = true
		d.SpeedLocked, d.SpeedIn, d.SpeedOut = 1, 1, 1
	})

	m = press(t, m, runes("r"))
	m = press(t, m, runes("-"))
	if dev.Count(protocol.TurnOff) != 1 {
		t.Errorf("turn-off sent %d times, want 1", dev.Count(protocol.TurnOff))
	}
	if dev.Count(protocol.SpeedDown) != 0 {
		t.Errorf("speed-down sent %d times, want 0", dev.Count(protocol.SpeedDown))
	}
	if m.view.Status.IsOn {
		t.Error("view still on")
	}
}

func TestKeysIgnoredWhileBusy(t *testing.T) {
	m, dev := newTestModel(t)
	m.busy = "refresh"

	next, cmd := m.Update(runes("o"))
	if cmd != nil {
		t.Error("action started while busy")
	}
	if got := next.(Model).statusMsg; !strings.Contains(got, "busy") {
		t.Errorf("statusMsg = %q, want busy notice", got)
	}
	if len(dev.Sent()) != 0 {
		t.Errorf("sent %v while busy", dev.Sent())
	}
}

func TestActionErrorShown(t *testing.T) {
	m, _ := newTestModel(t)
	m.busy = "heating"

	next, _ := m.Update(actionMsg{name: "heating", err: errors.New("link lost")})
	m = next.(Model)
	if m.busy != "" {
		t.Error("still busy after action finished")
	}
	if !strings.Contains(m.View(), "heating failed: link lost") {
		t.Error("error not rendered")
	}
}

func TestViewRendersState(t *testing.T) {
	m, _ := newTestModel(t)
	if !strings.Contains(m.View(), "No state received yet") {
		t.Error("unknown state not rendered")
	}

	m = press(t, m, runes("r"))
	now := m.snap.LastUpdated.Add(3 * time.Second)
	m.now = func() time.Time { return now }

	out := m.View()
	for _, want := range []string{"Speed", "Flow lock", "Sensors", "Updated 3 seconds ago", "00:A0:50:11:22:33"} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestSnapshotMsgRearmsWatcher(t *testing.T) {
	m, _ := newTestModel(t)
	snap := state.Snapshot{Status: &protocol.Status{IsOn: true}, Version: 7}

	next, cmd := m.Update(snapshotMsg(snap))
	if cmd == nil {
		t.Error("no follow-up wait after snapshot")
	}
	if next.(Model).snap.Version != 7 {
		t.Error("snapshot not stored")
	}
}

func TestNextDirection(t *testing.T) {
	d := api.Direction("")
	var got []api.Direction
	for i := 0; i < 4; i++ {
		d = nextDirection(d)
		got = append(got, d)
	}
	want := []api.Direction{api.Both, api.Forward, api.Reverse, api.Both}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cycle = %v, want %v", got, want)
			break
		}
	}
}
