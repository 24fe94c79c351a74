package service

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes the delay before the next attempt of a failed item:
// baseDelay doubled per recorded retry. MaxDelay caps the result when set;
// Jitter spreads attempts by up to half the computed delay. Both are off by
// default so the plain exponential law holds.
type BackoffPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    bool
}

func NewBackoffPolicy(baseDelay, maxDelay time.Duration, jitter bool) BackoffPolicy {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return BackoffPolicy{BaseDelay: baseDelay, MaxDelay: maxDelay, Jitter: jitter}
}

// Delay returns the wait for an item that has failed retryCount times.
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// Shifting past 62 bits would overflow; anything that far out is capped
	// territory anyway.
	var d time.Duration
	if retryCount >= 62 {
		d = 1<<62 - 1
	} else {
		d = p.BaseDelay << uint(retryCount)
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 1 {
		d += time.Duration(rand.Int63n(int64(d / 2)))
	}
	return d
}

// NextRetryAt applies Delay to the attempt timestamp.
func (p BackoffPolicy) NextRetryAt(attemptAt time.Time, retryCount int) time.Time {
	return attemptAt.Add(p.Delay(retryCount))
}
