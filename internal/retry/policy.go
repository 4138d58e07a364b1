package retry

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// BaseDelay is the wait before the second attempt; each later wait doubles.
	BaseDelay time.Duration
	// MaxDelay caps any single wait. Zero means uncapped.
	MaxDelay time.Duration
}

// MaxAttempts returns Attempts clamped to at least one.
func (p Policy) MaxAttempts() int {
	if p.Attempts <= 0 {
		return 1
	}
	return p.Attempts
}

// Step returns BaseDelay * 2^n, capped by MaxDelay. n is zero-based, so Step(0)
// is BaseDelay.
func (p Policy) Step(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if n < 0 {
		n = 0
	}
	delay := p.BaseDelay
	for i := 0; i < n; i++ {
		if p.MaxDelay > 0 && delay > p.MaxDelay/2 {
			return p.MaxDelay
		}
		// Stop doubling well before overflow.
		if delay > time.Duration(1<<62)/2 {
			break
		}
		delay *= 2
	}
	return p.Cap(delay)
}

// Delay returns the wait after failed attempt number attempt (1-based):
// attempt 1 -> BaseDelay, attempt 2 -> BaseDelay*2, attempt 3 -> BaseDelay*4.
func (p Policy) Delay(attempt int) time.Duration {
	return p.Step(attempt - 1)
}

// Cap clamps delay into [0, MaxDelay].
func (p Policy) Cap(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// ParseRetryAfter interprets a Retry-After header in either delta-seconds or
// HTTP-date form.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := when.Sub(now)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
