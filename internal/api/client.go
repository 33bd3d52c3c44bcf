// Package api turns user intents (a target speed, a brightness level, a
// switch position) into sequences of single-step device commands.
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/retry"
	"github.com/vitaminmoo/prana-tool/internal/session"
	"github.com/vitaminmoo/prana-tool/internal/state"
)

// DefaultReplyTimeout bounds waits for a status frame after a read.
const DefaultReplyTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	Retry        retry.Policy
	ReplyTimeout time.Duration
	Logger       logrus.FieldLogger
}

// Client is the actuation layer over one session. It is meant for a single
// controlling user: logical operations must not overlap.
type Client struct {
	session      *session.Session
	policy       retry.Policy
	replyTimeout time.Duration
	log          logrus.FieldLogger

	mu  sync.Mutex
	opt *overlay
}

// overlay holds values set optimistically since the model's version. It
// is dropped as soon as a newer frame is applied. A step the device never
// saw keeps the overlay wrong until then.
type overlay struct {
	version uint64
	status  protocol.Status
	speed   int
}

// View is the client's belief about the device: the last frame with any
// optimistic changes on top.
type View struct {
	Status     protocol.Status
	Speed      int
	Known      bool
	Optimistic bool
}

// New creates a client over s.
func New(s *session.Session, opts Options) *Client {
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	log := opts.Logger
	if log == nil {
		log = opts.Retry.Logger
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	policy := opts.Retry
	if policy.Logger == nil {
		policy.Logger = log
	}
	return &Client{
		session:      s,
		policy:       policy,
		replyTimeout: opts.ReplyTimeout,
		log:          log.WithField("component", "api"),
	}
}

// Session returns the underlying session.
func (c *Client) Session() *session.Session { return c.session }

// Snapshot returns the last applied frame, without optimistic values.
func (c *Client) Snapshot() state.Snapshot {
	return c.session.Model().Snapshot()
}

// View returns the tracked state.
func (c *Client) View() View {
	snap := c.session.Model().Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opt != nil && c.opt.version == snap.Version {
		return View{Status: *c.opt.status.Clone(), Speed: c.opt.speed, Known: true, Optimistic: true}
	}
	c.opt = nil

	v := View{Speed: snap.Speed, Known: snap.Known()}
	if snap.Status != nil {
		v.Status = *snap.Status.Clone()
	}
	return v
}

// track records an optimistic change made against the model at version.
func (c *Client) track(version uint64, fn func(*View)) {
	v := c.View()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Model().Version() != version {
		// The device already answered; its frame wins.
		return
	}
	fn(&v)
	c.opt = &overlay{version: version, status: v.Status, speed: v.Speed}
}

// send issues one command under the retry policy.
func (c *Client) send(ctx context.Context, cmd protocol.Command) error {
	c.log.WithField("command", cmd.String()).Debug("Sending")
	err := retry.Run(ctx, c.policy, func(ctx context.Context) error {
		return c.session.Send(ctx, cmd)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// Send issues an arbitrary command without any bookkeeping.
func (c *Client) Send(ctx context.Context, cmd protocol.Command) error {
	return c.send(ctx, cmd)
}

// readAndWait sends ReadState and waits for the frame it provokes.
func (c *Client) readAndWait(ctx context.Context) (state.Snapshot, error) {
	before := c.session.Model().Version()
	if err := c.send(ctx, protocol.ReadState); err != nil {
		return state.Snapshot{}, err
	}

	wctx, cancel := context.WithTimeout(ctx, c.replyTimeout)
	defer cancel()
	snap, err := c.session.WaitForUpdate(wctx, before)
	if err != nil {
		if ctx.Err() == nil {
			return state.Snapshot{}, fmt.Errorf("%w after %s", ErrNoReply, c.replyTimeout)
		}
		return state.Snapshot{}, err
	}
	return snap, nil
}
