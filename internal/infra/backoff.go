package infra

import (
	"context"
	"log/slog"
	"time"

	"autobay/internal/domain"

	"github.com/cenkalti/backoff/v5"
)

// maxDoublings caps the exponent of the delay formula.
const maxDoublings = 10

// Backoff is an explicit retry policy: delays follow min(Base * 2^min(n,10), Max)
// for the n-th retry, and only errors accepted by Retryable are retried.
type Backoff struct {
	Base      time.Duration
	Max       time.Duration
	Retryable func(error) bool
	// OnRetry, when set, observes every retry (metrics).
	OnRetry func(op string, attempt int, delay time.Duration, err error)
}

// NewBackoff creates a policy that retries transient network failures forever.
func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{
		Base:      base,
		Max:       max,
		Retryable: domain.IsTransient,
	}
}

// NoDelayBackoff retries transient failures immediately (tests).
func NoDelayBackoff() Backoff {
	return NewBackoff(0, 0)
}

// Sequence returns a fresh delay generator for this policy.
func (p Backoff) Sequence() *backoff.ExponentialBackOff {
	limit := p.Max
	if capped := p.Base << maxDoublings; capped < limit {
		limit = capped
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(p.Base*2, limit)
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = limit
	b.Reset()
	return b
}

func (p Backoff) retryable(err error) bool {
	if p.Retryable == nil {
		return domain.IsTransient(err)
	}
	return p.Retryable(err)
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or ctx ends.
func Retry[T any](ctx context.Context, p Backoff, op string, fn func(context.Context) (T, error)) (T, error) {
	seq := p.Sequence()
	attempt := 0
	for {
		v, err := fn(ctx)
		if err == nil || !p.retryable(err) {
			return v, err
		}

		attempt++
		delay := seq.NextBackOff()
		slog.Warn("[NETWORK] Transient failure, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if p.OnRetry != nil {
			p.OnRetry(op, attempt, delay, err)
		}

		if err := Sleep(ctx, delay); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
