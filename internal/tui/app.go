package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/state"
)

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, client *api.Client) error {
	updates := make(chan state.Snapshot, 1)
	client.Session().OnStateChange(func(snap state.Snapshot) {
		// Keep only the newest snapshot.
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- snap:
		default:
		}
	})

	m := NewModel(ctx, client, updates)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return err
	}

	return nil
}
