package retry

import (
	"context"
	"errors"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
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

// Classifier decides whether err is retryable. A positive floor raises the
// computed backoff for that attempt (e.g. a server Retry-After hint).
type Classifier func(err error) (floor time.Duration, retryable bool)

// Loop drives an operation through a Policy.
type Loop struct {
	Policy   Policy
	Sleep    Sleeper
	Classify Classifier
	// OnRetry, when set, observes every scheduled retry before the wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Run invokes op until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. The final error is returned unwrapped so
// callers can inspect its concrete type.
func (l Loop) Run(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	if ctx == nil {
		return errors.New("retry: nil context")
	}
	sleep := l.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	attempts := l.Policy.MaxAttempts()
	for attempt := 1; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt >= attempts || ctx.Err() != nil {
			return err
		}
		floor, retryable := time.Duration(0), false
		if l.Classify != nil {
			floor, retryable = l.Classify(err)
		}
		if !retryable {
			return err
		}
		delay := max(l.Policy.Delay(attempt), floor)
		if l.OnRetry != nil {
			l.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}
