// Package retry runs device operations under a bounded retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Class tells the policy what to do after a failed attempt.
type Class int

const (
	// NoRetry fails the operation at once.
	NoRetry Class = iota
	// Backoff sleeps for Policy.Backoff before the next attempt.
	Backoff
	// Immediate retries without sleeping.
	Immediate
)

func (c Class) String() string {
	switch c {
	case NoRetry:
		return "no-retry"
	case Backoff:
		return "backoff"
	case Immediate:
		return "immediate"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 250 * time.Millisecond
)

// Policy configures Do and Run. The zero value is usable.
type Policy struct {
	MaxAttempts int

	// Backoff is the wait before a Backoff-class retry. Zero selects
	// DefaultBackoff and a negative value retries without waiting.
	Backoff time.Duration

	// Classify maps an error to a Class. Nil treats every error as NoRetry.
	Classify func(error) Class

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger logrus.FieldLogger
}

// Do calls op until it succeeds, the classifier says stop, or attempts run
// out. The returned error always wraps the last error op returned.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		class := p.Classify(err)
		log := p.Logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     p.MaxAttempts,
			"class":   class.String(),
		})

		if class == NoRetry {
			log.WithError(err).Debug("Attempt failed, not retrying")
			return zero, err
		}
		if attempt == p.MaxAttempts {
			log.WithError(err).Debug("Attempt failed, giving up")
			break
		}

		if class == Backoff {
			log.WithError(err).Debugf("Attempt failed, retrying in %s", p.Backoff)
			if serr := p.Sleep(ctx, p.Backoff); serr != nil {
				return zero, errors.Join(serr, lastErr)
			}
		} else {
			log.WithError(err).Debug("Attempt failed, retrying")
			if cerr := ctx.Err(); cerr != nil {
				return zero, errors.Join(cerr, lastErr)
			}
		}
	}

	return zero, fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	switch {
	case p.Backoff == 0:
		p.Backoff = DefaultBackoff
	case p.Backoff < 0:
		p.Backoff = 0
	}
	if p.Classify == nil {
		p.Classify = func(error) Class { return NoRetry }
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		p.Logger = l
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
