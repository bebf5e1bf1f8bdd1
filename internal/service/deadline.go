package service

import "time"

// Clock supplies the current time. Injectable so expiry decisions are
// reproducible in tests.
type Clock func() time.Time

// Remaining computes the authoritative time left in a session from its
// server-recorded start instant and allotted duration, clamped to zero.
// It is a pure function of persisted state: no ticker, no client-reported
// countdown, no drift.
func Remaining(startedAt time.Time, allottedSeconds int, now time.Time) time.Duration {
	deadline := startedAt.Add(time.Duration(allottedSeconds) * time.Second)
	remaining := deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpired reports whether a session's allotted time has fully elapsed.
func IsExpired(startedAt time.Time, allottedSeconds int, now time.Time) bool {
	return Remaining(startedAt, allottedSeconds, now) == 0
}
