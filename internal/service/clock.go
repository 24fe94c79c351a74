package service

import "time"

// Clock abstracts time so retry eligibility and backoff stamps are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the system time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
