// Package wait retries a readiness check until it succeeds, used at startup
// to hold the kernel until its shared store answers.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout           = errors.New("wait: timeout exceeded")
	ErrMaxRetriesReached = errors.New("wait: maximum retries reached")
	ErrCanceled          = errors.New("wait: operation canceled")
)

// ConditionFunc reports whether the awaited condition holds. A non-nil error
// aborts the wait.
type ConditionFunc func(ctx context.Context) (bool, error)

// Strategy yields the delay before each retry.
type Strategy interface {
	Next() (time.Duration, bool)
	Reset()
}

// Pinger is anything with a liveness probe, such as store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a wait.
type Options struct {
	MaxRetries int // 0 means unlimited
	Timeout    time.Duration
	Strategy   Strategy
}

// DefaultOptions retries every second for up to 30 seconds.
func DefaultOptions() *Options {
	return &Options{
		MaxRetries: 0,
		Timeout:    30 * time.Second,
		Strategy:   NewFixedStrategy(time.Second),
	}
}

// WithMaxRetries sets the maximum number of retries
func (o *Options) WithMaxRetries(n int) *Options {
	o.MaxRetries = n
	return o
}

// WithTimeout sets the overall timeout
func (o *Options) WithTimeout(d time.Duration) *Options {
	o.Timeout = d
	return o
}

// WithStrategy sets the wait strategy
func (o *Options) WithStrategy(s Strategy) *Options {
	o.Strategy = s
	return o
}

// Until polls condition until it returns true, the retry budget is spent,
// the timeout elapses or ctx is done.
func Until(ctx context.Context, condition ConditionFunc, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	opts.Strategy.Reset()

	for attempts := 1; ; attempts++ {
		ok, err := condition(ctx)
		if err != nil {
			return fmt.Errorf("wait: condition error: %w", err)
		}
		if ok {
			return nil
		}

		if opts.MaxRetries > 0 && attempts >= opts.MaxRetries {
			return ErrMaxRetriesReached
		}
		delay, ok := opts.Strategy.Next()
		if !ok {
			return ErrMaxRetriesReached
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return ErrCanceled
		case <-timer.C:
		}
	}
}

// ForPing waits until p answers a ping. The last ping error is kept so a
// timeout explains what was failing.
func ForPing(ctx context.Context, p Pinger, opts *Options) error {
	var last error
	err := Until(ctx, func(ctx context.Context) (bool, error) {
		last = p.Ping(ctx)
		return last == nil, nil
	}, opts)
	if err != nil && last != nil {
		return fmt.Errorf("%w: %v", err, last)
	}
	return err
}
