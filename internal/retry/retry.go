// Package retry implements the composable retry policies used by the
// WellKnown resolver, the aggregate runtime, and the event projector. A
// policy is one of never, once,
// constant(delay), or exponential(initial, factor, maxDelay, maxRetries,
// randomFactor) — only errors the caller marks Retriable are ever retried;
// domain rejections always pass straight through on the first attempt.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

// Retriable wraps an error to mark it as a transient infrastructure fault
// eligible for retry. Domain rejections (RealmRejection, TokenRejection)
// must never be wrapped this way.
type Retriable struct {
	Err error
}

func (r *Retriable) Error() string { return r.Err.Error() }
func (r *Retriable) Unwrap() error { return r.Err }

// MarkRetriable wraps err so Do will retry it. A nil err returns nil.
func MarkRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &Retriable{Err: err}
}

// isRetriable reports whether err was marked as transient.
func isRetriable(err error) bool {
	var r *Retriable
	return errors.As(err, &r)
}

// Policy describes a retry strategy. The zero value is Never.
type Policy struct {
	kind         kind
	delay        time.Duration
	factor       float64
	maxDelay     time.Duration
	maxRetries   int
	randomFactor float64
}

type kind int

const (
	kindNever kind = iota
	kindOnce
	kindConstant
	kindExponential
)

// Never never retries; the first failure is returned to the caller.
func Never() Policy { return Policy{kind: kindNever} }

// Once retries exactly one additional time with no delay.
func Once() Policy { return Policy{kind: kindOnce} }

// Constant retries indefinitely (bounded by ctx) with a fixed delay between
// attempts.
func Constant(delay time.Duration) Policy {
	return Policy{kind: kindConstant, delay: delay}
}

// Exponential retries with exponentially increasing delay starting at
// initial, multiplied by factor each attempt (factor defaults to 2 when
// <= 1), capped at maxDelay, for at most maxRetries retries after the first
// attempt (unbounded when maxRetries <= 0), jittered by randomFactor
// (0.2 means +/-20%).
func Exponential(initial time.Duration, factor float64, maxDelay time.Duration, maxRetries int, randomFactor float64) Policy {
	if factor <= 1 {
		factor = 2
	}
	if randomFactor < 0 {
		randomFactor = 0
	}
	return Policy{
		kind:         kindExponential,
		delay:        initial,
		factor:       factor,
		maxDelay:     maxDelay,
		maxRetries:   maxRetries,
		randomFactor: randomFactor,
	}
}

// DefaultExponential builds an Exponential policy with factor=2 and
// randomFactor=0.2.
func DefaultExponential(initial, maxDelay time.Duration, maxRetries int) Policy {
	return Exponential(initial, 2, maxDelay, maxRetries, 0.2)
}

// Do runs fn, retrying per the policy while fn returns a Retriable error and
// ctx is not done. Non-retriable errors (including domain rejections) are
// returned immediately without retry. Do itself never sleeps past ctx's
// deadline — cancellation propagates through the backoff ticker.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	switch p.kind {
	case kindNever:
		return fn(ctx)
	case kindOnce:
		err := fn(ctx)
		if err == nil || !isRetriable(err) {
			return err
		}
		return fn(ctx)
	case kindConstant:
		return p.runWithBackOff(ctx, fn, &backoff.ConstantBackOff{Interval: p.delay})
	case kindExponential:
		eb := &backoff.ExponentialBackOff{
			InitialInterval:     p.delay,
			RandomizationFactor: p.randomFactor,
			Multiplier:          p.factor,
			MaxInterval:         p.maxDelay,
			MaxElapsedTime:      0,
			Clock:               backoff.SystemClock,
		}
		eb.Reset()
		var b backoff.BackOff = eb
		if p.maxRetries > 0 {
			b = backoff.WithMaxRetries(b, uint64(p.maxRetries))
		}
		return p.runWithBackOff(ctx, fn, b)
	default:
		return fn(ctx)
	}
}

func (p Policy) runWithBackOff(ctx context.Context, fn func(ctx context.Context) error, b backoff.BackOff) error {
	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
