// Package session supervises the BLE link to one ventilation unit: it
// connects on demand, disconnects when idle and turns notifications into
// state updates.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/state"
	"github.com/vitaminmoo/prana-tool/internal/util"
)

// DefaultIdleTimeout is how long an unused link stays up.
const DefaultIdleTimeout = 120 * time.Second

// State of the link.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Session.
type Options struct {
	Address     string
	IdleTimeout time.Duration
	Logger      logrus.FieldLogger
}

// Session owns the connection to one device and the model it feeds.
type Session struct {
	transport   Transport
	model       *state.Model
	address     string
	idleTimeout time.Duration
	log         logrus.FieldLogger

	// connectLock serializes connect and teardown. It is a channel so
	// waiters can give up when their context ends.
	connectLock chan struct{}

	mu               sync.Mutex
	state            State
	conn             Conn
	connGen          uint64
	idleTimer        *time.Timer
	timerGen         uint64
	expectDisconnect bool
	closed           bool
	dialCancel       context.CancelFunc

	obsMu          sync.RWMutex
	stateObservers []func(state.Snapshot)
	taps           map[int]chan []byte
	nextTap        int
	updated        chan struct{}
}

// New creates a disconnected session. Nothing happens on the radio until
// the first operation.
func New(transport Transport, model *state.Model, opts Options) *Session {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Session{
		transport:   transport,
		model:       model,
		address:     opts.Address,
		idleTimeout: opts.IdleTimeout,
		log:         log.WithFields(logrus.Fields{"component": "session", "address": opts.Address}),
		connectLock: make(chan struct{}, 1),
		taps:        make(map[int]chan []byte),
		updated:     make(chan struct{}),
	}
}

// Address is the peer this session talks to.
func (s *Session) Address() string { return s.address }

// Model returns the state model fed by this session.
func (s *Session) Model() *state.Model { return s.model }

// State returns the current link state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RSSI is for diagnostics only.
func (s *Session) RSSI() (int16, bool) {
	return s.transport.RSSI(s.address)
}

// OnStateChange registers fn to run after every applied status frame.
// Observers run on the notification path and must not block.
func (s *Session) OnStateChange(fn func(state.Snapshot)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.stateObservers = append(s.stateObservers, fn)
}

// Tap returns a channel that receives a copy of every raw notification,
// status or not, until cancel is called. Frames are dropped when the
// channel is full.
func (s *Session) Tap(buffer int) (<-chan []byte, func()) {
	ch := make(chan []byte, buffer)

	s.obsMu.Lock()
	id := s.nextTap
	s.nextTap++
	s.taps[id] = ch
	s.obsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.taps, id)
			s.obsMu.Unlock()
		})
	}
}

// EnsureConnected returns once the link is up and subscribed, connecting
// if needed. Concurrent callers share one connect attempt.
func (s *Session) EnsureConnected(ctx context.Context) error {
	_, err := s.ensureConn(ctx)
	return err
}

func (s *Session) ensureConn(ctx context.Context) (Conn, error) {
	if conn, done, err := s.fastPath(); done {
		return conn, err
	}

	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	// Another caller may have connected while we waited.
	if conn, done, err := s.fastPath(); done {
		return conn, err
	}

	s.mu.Lock()
	s.state = Connecting
	s.connGen++
	gen := s.connGen
	dialCtx, cancel := context.WithCancel(ctx)
	s.dialCancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.log.Debug("Connecting")
	conn, err := s.transport.Dial(dialCtx, s.address, func() { s.handleDisconnect(gen) })
	if err == nil {
		if serr := conn.Subscribe(s.handleNotification); serr != nil {
			_ = conn.Disconnect()
			err = fmt.Errorf("subscribing to notifications: %w", serr)
		}
	}

	s.mu.Lock()
	s.dialCancel = nil
	if err != nil {
		s.state = Disconnected
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, errors.Join(ErrSessionClosed, err)
		}
		return nil, fmt.Errorf("connecting to %s: %w", s.address, err)
	}
	if s.closed {
		// Stop ran while we were dialing.
		s.state = Disconnected
		s.expectDisconnect = true
		s.mu.Unlock()
		s.closeConn(conn)
		return nil, ErrSessionClosed
	}
	s.conn = conn
	s.state = Connected
	s.expectDisconnect = false
	s.resetIdleLocked()
	s.mu.Unlock()

	s.log.Info("Connected")
	return conn, nil
}

// fastPath reports done when the caller can return without connecting.
func (s *Session) fastPath() (Conn, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, true, ErrSessionClosed
	}
	if s.state == Connected && s.conn != nil {
		s.resetIdleLocked()
		return s.conn, true, nil
	}
	return nil, false, nil
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.connectLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlock() { <-s.connectLock }

// Send writes cmd and, unless cmd is itself a read, follows it with a
// state read so the device reports the effect.
func (s *Session) Send(ctx context.Context, cmd protocol.Command) error {
	conn, err := s.ensureConn(ctx)
	if err != nil {
		return err
	}

	if err := s.write(conn, cmd, cmd == protocol.ReadState); err != nil {
		return err
	}
	if cmd != protocol.ReadState {
		if err := s.write(conn, protocol.ReadState, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) write(conn Conn, cmd protocol.Command, withResponse bool) error {
	data := cmd.Bytes()
	s.log.WithField("command", cmd.String()).Debugf("Writing %d bytes\n%s", len(data), util.HexDump(data))

	if err := conn.Write(data, withResponse); err != nil {
		// Drop the link so the next attempt reconnects.
		s.mu.Lock()
		var stale Conn
		if s.conn == conn {
			stale = s.detachLocked()
		}
		s.mu.Unlock()
		if stale != nil {
			s.closeConn(stale)
		}
		return fmt.Errorf("writing %s: %w", cmd, err)
	}
	return nil
}

// WaitForUpdate blocks until the model holds a frame newer than version.
func (s *Session) WaitForUpdate(ctx context.Context, version uint64) (state.Snapshot, error) {
	for {
		s.obsMu.RLock()
		ch := s.updated
		s.obsMu.RUnlock()

		if snap := s.model.Snapshot(); snap.Version > version {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return state.Snapshot{}, ctx.Err()
		}
	}
}

// Disconnect drops the link if there is one. The next operation reconnects.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	s.mu.Lock()
	conn := s.detachLocked()
	s.mu.Unlock()
	if conn != nil {
		s.log.Debug("Disconnecting")
		s.closeConn(conn)
	}
	return nil
}

// Stop tears the session down for good. It is safe to call more than once
// and while a connect is in flight.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.dialCancel != nil {
		s.dialCancel()
	}
	s.mu.Unlock()

	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	s.mu.Lock()
	conn := s.detachLocked()
	s.mu.Unlock()
	if conn != nil {
		s.closeConn(conn)
	}
	s.log.Debug("Stopped")
	return nil
}

// detachLocked moves to Disconnected and hands back the connection for
// closing outside the lock.
func (s *Session) detachLocked() Conn {
	conn := s.conn
	s.conn = nil
	s.state = Disconnected
	s.stopIdleLocked()
	if conn != nil {
		s.expectDisconnect = true
	}
	return conn
}

func (s *Session) closeConn(conn Conn) {
	if err := conn.Unsubscribe(); err != nil {
		s.log.WithError(err).Debug("Unsubscribe failed")
	}
	if err := conn.Disconnect(); err != nil {
		s.log.WithError(err).Warn("Disconnect failed")
	}
}

func (s *Session) resetIdleLocked() {
	s.stopIdleLocked()
	gen := s.timerGen
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() { s.idleExpired(gen) })
}

func (s *Session) stopIdleLocked() {
	s.timerGen++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func (s *Session) idleExpired(gen uint64) {
	_ = s.lock(context.Background())
	defer s.unlock()

	s.mu.Lock()
	if gen != s.timerGen || s.state != Connected {
		// A newer timer or a teardown already superseded this one.
		s.mu.Unlock()
		return
	}
	conn := s.detachLocked()
	s.mu.Unlock()

	s.log.Debugf("Disconnecting after %s idle", s.idleTimeout)
	if conn != nil {
		s.closeConn(conn)
	}
}

func (s *Session) handleDisconnect(gen uint64) {
	s.mu.Lock()
	if gen != s.connGen || s.conn == nil {
		s.expectDisconnect = false
		s.mu.Unlock()
		s.log.Debug("Disconnected")
		return
	}
	if s.expectDisconnect {
		s.expectDisconnect = false
		s.mu.Unlock()
		s.log.Debug("Disconnected")
		return
	}
	s.conn = nil
	s.state = Disconnected
	s.stopIdleLocked()
	s.mu.Unlock()

	rssi, _ := s.RSSI()
	s.log.WithField("rssi", rssi).Warn("Device unexpectedly disconnected")
}

func (s *Session) handleNotification(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.obsMu.RLock()
	for _, ch := range s.taps {
		select {
		case ch <- buf:
		default:
		}
	}
	s.obsMu.RUnlock()

	status, err := protocol.DecodeStatus(buf)
	switch {
	case errors.Is(err, protocol.ErrNotStatusFrame):
		s.log.Debugf("Ignoring non-status notification (%d bytes)\n%s", len(buf), util.HexDump(buf))
		return
	case err != nil:
		s.log.WithError(err).Warn("Discarding status frame")
		return
	}

	s.log.Debugf("Status frame\n%s", util.HexDump(buf))
	snap := s.model.Apply(status)

	s.obsMu.Lock()
	close(s.updated)
	s.updated = make(chan struct{})
	stateObs := s.stateObservers
	s.obsMu.Unlock()

	for _, fn := range stateObs {
		fn(snap)
	}
}
