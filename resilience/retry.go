// Package resilience implements bounded retry: error classification
// via the core taxonomy, backoff computation with jitter, per-concern
// presets, and a driver that honors both an attempt cap and an
// overall wall-clock timeout.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/localfirst/agentcore/core"
)

// BackoffKind tags the variant carried by Backoff.
type BackoffKind int

const (
	BackoffFixed BackoffKind = iota
	BackoffLinear
	BackoffExponential
	BackoffExponentialJitter
)

// Backoff computes the delay after failed attempt N (1-indexed),
// before attempt N+1.
type Backoff struct {
	Kind BackoffKind
	Base time.Duration
	Max  time.Duration
}

// Delay returns the backoff delay for the given attempt number.
func (b Backoff) Delay(attempt int) time.Duration {
	var d time.Duration
	switch b.Kind {
	case BackoffFixed:
		d = b.Base
	case BackoffLinear:
		d = b.Base * time.Duration(attempt)
	case BackoffExponential, BackoffExponentialJitter:
		d = b.Base * time.Duration(1<<uint(attempt-1))
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Kind == BackoffExponentialJitter {
		d += time.Duration(rand.Float64() * 0.25 * float64(d))
	}
	return d
}

// Policy is a value object describing a bounded retry strategy.
type Policy struct {
	MaxAttempts    int
	Backoff        Backoff
	OverallTimeout time.Duration // 0 means unbounded
	RetryPredicate func(error) bool
}

// DefaultPolicy classifies via the wire taxonomy and allows transient
// and resource-limit errors through.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Backoff:        Backoff{Kind: BackoffExponentialJitter, Base: time.Second, Max: 30 * time.Second},
		OverallTimeout: 60 * time.Second,
		RetryPredicate: core.IsRetryable,
	}
}

// AggressivePolicy retries harder and longer than Default.
func AggressivePolicy() Policy {
	return Policy{
		MaxAttempts:    6,
		Backoff:        Backoff{Kind: BackoffExponentialJitter, Base: 500 * time.Millisecond, Max: 20 * time.Second},
		OverallTimeout: 120 * time.Second,
		RetryPredicate: core.IsRetryable,
	}
}

// ConservativePolicy retries sparingly, for expensive operations.
func ConservativePolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		Backoff:        Backoff{Kind: BackoffFixed, Base: 2 * time.Second},
		OverallTimeout: 10 * time.Second,
		RetryPredicate: core.IsRetryable,
	}
}

// NetworkPolicy targets transient network I/O.
func NetworkPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		Backoff:        Backoff{Kind: BackoffExponentialJitter, Base: time.Second, Max: 10 * time.Second},
		OverallTimeout: 30 * time.Second,
		RetryPredicate: core.IsRetryable,
	}
}

// LLMPolicy honors the provider-specific delays (rate-limit 10s,
// timeout 2s, network 1s) by leaving the policy backoff unset so the
// driver defers to each error's own RetryDelay.
func LLMPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		Backoff:        Backoff{Kind: BackoffFixed},
		OverallTimeout: 45 * time.Second,
		RetryPredicate: core.IsRetryable,
	}
}

// BrowserPolicy targets flaky UI automation; the scheduler's default
// for UI-action steps.
func BrowserPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Backoff:        Backoff{Kind: BackoffLinear, Base: 500 * time.Millisecond, Max: 5 * time.Second},
		OverallTimeout: 20 * time.Second,
		RetryPredicate: core.IsRetryable,
	}
}

// DatabasePolicy targets the persistence layer.
func DatabasePolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Backoff:        Backoff{Kind: BackoffFixed, Base: 200 * time.Millisecond},
		OverallTimeout: 5 * time.Second,
		RetryPredicate: core.IsRetryable,
	}
}

// FilesystemPolicy is the scheduler's default for file-action steps.
func FilesystemPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Backoff:        Backoff{Kind: BackoffFixed, Base: 100 * time.Millisecond},
		OverallTimeout: 5 * time.Second,
		RetryPredicate: core.IsRetryable,
	}
}

// errorRetryDelay resolves the sleep before the next attempt. A policy
// with an explicit backoff is authoritative; only a policy that leaves
// its backoff unset (Base == 0, the llm preset) defers to the error's
// own RetryDelay.
func errorRetryDelay(p Policy, attempt int, err error) time.Duration {
	if p.Backoff.Base <= 0 {
		if cat, ok := err.(core.Categorizable); ok {
			if ms, ok := cat.RetryDelay(); ok {
				return time.Duration(ms) * time.Millisecond
			}
		}
	}
	return p.Backoff.Delay(attempt)
}

// Do drives fn under the policy: on each failure, if elapsed time
// exceeds OverallTimeout surface a TimeoutError; else if the predicate
// rejects the error surface it as-is; else sleep the computed delay.
// The last attempt never sleeps, so maximum wall time is bounded by
// OverallTimeout plus one backoff slot.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.RetryPredicate == nil {
		p.RetryPredicate = core.IsRetryable
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if p.OverallTimeout > 0 && time.Since(start) > p.OverallTimeout {
			return &core.TimeoutError{Message: "retry overall timeout exceeded: " + lastErr.Error()}
		}

		if !p.RetryPredicate(lastErr) {
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := errorRetryDelay(p, attempt, lastErr)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &core.FrameworkError{Op: "resilience.Do", Kind: "retry", Err: core.ErrMaxRetriesExceeded, Message: lastErr.Error()}
}
