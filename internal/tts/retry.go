package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/dialogue-tts/internal/core"
	"github.com/book-expert/logger"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

// State is a step of a single synthesis call.
type State int

const (
	// StateAttempting means a provider call is about to be made.
	StateAttempting State = iota
	// StateSucceeded means the provider returned audio.
	StateSucceeded
	// StateFailedRetryable means the last attempt failed and will be retried.
	StateFailedRetryable
	// StateFailedFatal means the call has ended without audio.
	StateFailedFatal
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateFailedRetryable:
		return "failed_retryable"
	case StateFailedFatal:
		return "failed_fatal"
	default:
		return "unknown"
	}
}

// Decision is the outcome of RetryPolicy.Decide for a failed attempt.
type Decision struct {
	Next  State
	Delay time.Duration
	// Exhausted is true when a retryable failure hit the attempt cap.
	Exhausted bool
}

// RetryPolicy is exponential backoff over a fixed attempt limit.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns five attempts with delays of 1s, 2s, 4s and 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Retryable reports whether a failure kind is worth another attempt.
func Retryable(kind FailureKind) bool {
	switch kind {
	case FailureRateLimited, FailureServerUnavailable, FailureNetwork:
		return true
	default:
		return false
	}
}

// Decide returns what to do after attempt number attempt (1-based) failed
// with kind. It is pure: no clock, no I/O.
func (p RetryPolicy) Decide(kind FailureKind, attempt int) Decision {
	if !Retryable(kind) {
		return Decision{Next: StateFailedFatal}
	}

	if attempt >= p.MaxAttempts {
		return Decision{Next: StateFailedFatal, Exhausted: true}
	}

	return Decision{
		Next:  StateFailedRetryable,
		Delay: p.BaseDelay << (attempt - 1),
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RetryObserver receives one call per retry that is about to sleep.
type RetryObserver func(ctx context.Context, kind FailureKind, attempt int, delay time.Duration)

// RetryingSynthesizer applies a RetryPolicy around a provider.
type RetryingSynthesizer struct {
	provider core.Synthesizer
	policy   RetryPolicy
	sleep    Sleeper
	observe  RetryObserver
	log      *logger.Logger
}

// RetryOption customizes a RetryingSynthesizer.
type RetryOption func(*RetryingSynthesizer)

// WithSleeper replaces the real sleep, mainly for tests.
func WithSleeper(sleep Sleeper) RetryOption {
	return func(r *RetryingSynthesizer) {
		r.sleep = sleep
	}
}

// WithRetryObserver registers a callback invoked before each backoff sleep.
func WithRetryObserver(observe RetryObserver) RetryOption {
	return func(r *RetryingSynthesizer) {
		r.observe = observe
	}
}

// NewRetryingSynthesizer wraps provider with policy.
func NewRetryingSynthesizer(
	provider core.Synthesizer,
	policy RetryPolicy,
	log *logger.Logger,
	opts ...RetryOption,
) *RetryingSynthesizer {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}

	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultBaseDelay
	}

	retrying := &RetryingSynthesizer{
		provider: provider,
		policy:   policy,
		sleep:    SleepContext,
		log:      log,
	}

	for _, opt := range opts {
		opt(retrying)
	}

	return retrying
}

// Synthesize calls the provider once per attempt until it succeeds, fails with
// a non-retryable kind, or the attempt limit runs out. Errors that are not a
// SynthesisError are treated as network failures.
func (r *RetryingSynthesizer) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.RawAudio, error) {
	attempt := 0

	for {
		attempt++

		rawAudio, err := r.provider.Synthesize(ctx, req)
		if err == nil {
			if attempt > 1 {
				r.log.Info("Synthesis for voice %s succeeded on attempt %d", req.Voice.VoiceID, attempt)
			}

			return rawAudio, nil
		}

		kind := KindOf(err)
		if kind == 0 {
			kind = FailureNetwork
			err = newFailure(FailureNetwork, 0, "", err)
		}

		decision := r.policy.Decide(kind, attempt)
		if decision.Next == StateFailedFatal {
			if decision.Exhausted {
				return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
			}

			return nil, err
		}

		r.log.Warn("Synthesis attempt %d/%d failed (%v), retrying in %s",
			attempt, r.policy.MaxAttempts, err, decision.Delay)

		if r.observe != nil {
			r.observe(ctx, kind, attempt, decision.Delay)
		}

		sleepErr := r.sleep(ctx, decision.Delay)
		if sleepErr != nil {
			return nil, sleepErr
		}
	}
}
