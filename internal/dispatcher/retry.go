package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blockedby/cardpost/internal/logger"
)

// ErrInvalidAttempts is returned for a retry policy with fewer than one attempt.
var ErrInvalidAttempts = errors.New("max attempts must be at least 1")

// errChannelPanic wraps a panic raised by a channel. It is not retried.
var errChannelPanic = errors.New("internal error")

// RetryPolicy bounds the attempts made for one (send, channel) pair.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is three attempts with exponential backoff starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Outcome is the aggregated result of up to MaxAttempts attempts.
type Outcome struct {
	Channel   string
	MessageID string
	Attempts  int
	Err       error
}

// OK reports whether one of the attempts succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// RetryingSender turns N sequential attempts into one outcome: first success wins,
// otherwise the last failure is reported.
type RetryingSender struct {
	channel Channel
	policy  RetryPolicy
	log     *logger.Logger
}

// NewRetryingSender wraps a channel. The same policy applies to every channel.
func NewRetryingSender(channel Channel, policy RetryPolicy, log *logger.Logger) (*RetryingSender, error) {
	if channel == nil {
		return nil, errors.New("channel cannot be nil")
	}
	if policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAttempts, policy.MaxAttempts)
	}
	return &RetryingSender{
		channel: channel,
		policy:  policy,
		log:     log.Component("retry"),
	}, nil
}

// Send attempts delivery until success, a permanent error, exhaustion or ctx cancellation.
func (r *RetryingSender) Send(ctx context.Context, target Target, payload Payload) Outcome {
	out := Outcome{Channel: r.channel.Name()}

	var lastErr error
	op := func() error {
		out.Attempts++
		receipt, err := r.attempt(ctx, target, payload)
		if err == nil {
			out.MessageID = receipt.MessageID
			return nil
		}

		lastErr = err
		r.log.Warn().
			Err(err).
			Str("channel", out.Channel).
			Int("attempt", out.Attempts).
			Int("max_attempts", r.policy.MaxAttempts).
			Msg("delivery attempt failed")

		if errors.Is(err, ErrInvalidRecipient) || errors.Is(err, ErrChannelNotConfigured) || errors.Is(err, errChannelPanic) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, r.backOff(ctx))
	if err == nil {
		return out
	}

	// Retry reports ctx.Err() when cancelled between attempts; the channel's own error is more useful.
	if lastErr != nil {
		out.Err = lastErr
	} else {
		out.Err = err
	}
	return out
}

// attempt calls the channel once and turns a panic into errChannelPanic.
// It also runs on the BOTH fan-out goroutines, outside the worker's recover.
func (r *RetryingSender) attempt(ctx context.Context, target Target, payload Payload) (receipt Receipt, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Str("channel", r.channel.Name()).Msg("delivery attempt panicked")
			err = fmt.Errorf("%w: %v", errChannelPanic, p)
		}
	}()
	return r.channel.Attempt(ctx, target, payload)
}

func (r *RetryingSender) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.InitialInterval
	exp.MaxInterval = r.policy.MaxInterval
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.policy.MaxAttempts-1)), ctx)
}
