package storage

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryDecision is what a RetryPolicy computes from one attempt's outcome:
// whether to retry, how long to wait, and which location the next attempt
// should prefer (honored by the pipeline only where valid under the
// caller's LocationMode).
type RetryDecision struct {
	ShouldRetry  bool
	Delay        time.Duration
	NextLocation *Location
}

// RetryPolicy is a pure function of attempt history -> RetryDecision, per
// spec.md §4.7. Implementations never mutate shared state; all the
// parameters a decision depends on are passed in.
type RetryPolicy interface {
	// Decide inspects the outcome of the most recent attempt and proposes
	// what to do next. statusCode is 0 for network errors (no response).
	Decide(statusCode int, errKind ErrorKind, attempt int, elapsed time.Duration, lastLocation Location, mode LocationMode) RetryDecision
}

// NoRetryPolicy never retries.
type NoRetryPolicy struct{}

// Decide implements RetryPolicy.
func (NoRetryPolicy) Decide(int, ErrorKind, int, time.Duration, Location, LocationMode) RetryDecision {
	return RetryDecision{}
}

// retryableStatus reports whether statusCode/errKind is retryable: 5xx
// except 501/505, 408, and network errors. A 404 (ErrResourceNotFound) is
// never retryable here, including a read after a write to a location that
// may be lagging; no error kind distinguishes that case.
func retryableStatus(statusCode int, errKind ErrorKind) bool {
	if errKind == ErrNetworkError || errKind == ErrTimeout || errKind == ErrThrottled || errKind == ErrServerBusy || errKind == ErrInternalError {
		return true
	}
	if errKind == ErrResourceNotFound {
		return false
	}
	if statusCode == http.StatusRequestTimeout {
		return true
	}
	if statusCode >= 500 && statusCode != http.StatusNotImplemented && statusCode != http.StatusHTTPVersionNotSupported {
		return true
	}
	return false
}

// proposedLocation computes the next-location hint shared by both concrete
// policies: swap primary/secondary under the *-then-* modes, otherwise keep
// the current location.
func proposedLocation(lastLocation Location, mode LocationMode) *Location {
	switch mode {
	case LocationModePrimaryThenSecondary, LocationModeSecondaryThenPrimary:
		l := flip(lastLocation)
		return &l
	default:
		return nil
	}
}

// ExponentialBackoffPolicy retries with exponentially increasing delay
// (base * 2^attempt, jittered, capped at Max), up to Attempts tries. Built
// on backoff/v5's ExponentialBackOff for its jitter math rather than
// hand-rolled randomization.
type ExponentialBackoffPolicy struct {
	Base     time.Duration
	Min      time.Duration
	Max      time.Duration
	Attempts int
}

// Decide implements RetryPolicy.
func (p ExponentialBackoffPolicy) Decide(statusCode int, errKind ErrorKind, attempt int, elapsed time.Duration, lastLocation Location, mode LocationMode) RetryDecision {
	if errKind == ErrDeadlineExceeded || errKind == ErrAuthFailed || errKind == ErrInvalidInput ||
		errKind == ErrLocationConstraintViolation || errKind == ErrMissingHostForLocation || errKind == ErrCanonicalizationError {
		return RetryDecision{}
	}
	if attempt >= p.Attempts {
		return RetryDecision{}
	}
	if !retryableStatus(statusCode, errKind) {
		return RetryDecision{}
	}

	delay := p.delayForAttempt(attempt)
	return RetryDecision{ShouldRetry: true, Delay: delay, NextLocation: proposedLocation(lastLocation, mode)}
}

func (p ExponentialBackoffPolicy) delayForAttempt(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     maxDuration(p.Base, p.Min),
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         p.Max,
	}
	b.Reset()
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		next := b.NextBackOff()
		if next == backoff.Stop {
			d = p.Max
			break
		}
		d = next
	}
	if d > p.Max {
		d = p.Max
	}
	if d < p.Min {
		d = p.Min
	}
	return d
}

// LinearBackoffPolicy retries with delay growing by a fixed Step per
// attempt, capped at Max, up to Attempts tries. cenkalti/backoff/v5 has no
// linear strategy to adapt, so this is plain arithmetic.
type LinearBackoffPolicy struct {
	Step     time.Duration
	Max      time.Duration
	Attempts int
}

// Decide implements RetryPolicy.
func (p LinearBackoffPolicy) Decide(statusCode int, errKind ErrorKind, attempt int, elapsed time.Duration, lastLocation Location, mode LocationMode) RetryDecision {
	if errKind == ErrDeadlineExceeded || errKind == ErrAuthFailed || errKind == ErrInvalidInput ||
		errKind == ErrLocationConstraintViolation || errKind == ErrMissingHostForLocation || errKind == ErrCanonicalizationError {
		return RetryDecision{}
	}
	if attempt >= p.Attempts {
		return RetryDecision{}
	}
	if !retryableStatus(statusCode, errKind) {
		return RetryDecision{}
	}

	d := p.Step * time.Duration(attempt+1)
	if d > p.Max {
		d = p.Max
	}
	return RetryDecision{ShouldRetry: true, Delay: d, NextLocation: proposedLocation(lastLocation, mode)}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
