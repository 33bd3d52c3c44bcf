// Package state holds the last known device state for one session.
package state

import (
	"sync"
	"time"

	"github.com/vitaminmoo/prana-tool/internal/protocol"
)

// DefaultStaleAfter is how long a snapshot stays fresh without a new frame.
const DefaultStaleAfter = 5 * time.Minute

// Snapshot is an immutable copy of the model.
type Snapshot struct {
	// Status is nil until the first frame has been decoded.
	Status      *protocol.Status `json:"status"`
	Speed       int              `json:"speed"`
	LastUpdated time.Time        `json:"last_updated"`
	Version     uint64           `json:"version"`
	Fresh       bool             `json:"available"`
}

// Known reports whether at least one frame has been applied.
func (s Snapshot) Known() bool {
	return s.Status != nil
}

// Model is the single-owner record of decoded device state. Only Apply
// writes it; readers always see a whole frame.
type Model struct {
	mu          sync.RWMutex
	status      *protocol.Status
	speed       int
	lastUpdated time.Time
	version     uint64

	staleAfter time.Duration
	now        func() time.Time
}

// NewModel creates an empty model. A zero staleAfter selects the default.
func NewModel(staleAfter time.Duration) *Model {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Model{
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// SetClock replaces the time source (tests).
func (m *Model) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Apply replaces the state with a freshly decoded frame and returns the
// resulting snapshot.
func (m *Model) Apply(status *protocol.Status) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status = status.Clone()
	m.speed = m.status.EffectiveSpeed()
	m.lastUpdated = m.now()
	m.version++

	return m.snapshotLocked()
}

// Snapshot returns a copy of the current state.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Version increments on every Apply.
func (m *Model) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Fresh reports whether a frame arrived within the staleness window.
// Stale state means availability is unknown, not that the unit is off.
func (m *Model) Fresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.freshLocked()
}

func (m *Model) freshLocked() bool {
	if m.lastUpdated.IsZero() {
		return false
	}
	return m.now().Sub(m.lastUpdated) <= m.staleAfter
}

func (m *Model) snapshotLocked() Snapshot {
	return Snapshot{
		Status:      m.status.Clone(),
		Speed:       m.speed,
		LastUpdated: m.lastUpdated,
		Version:     m.version,
		Fresh:       m.freshLocked(),
	}
}
