package listener

import (
	"context"
	"time"
)

// RetryPolicy fixed retry counts and delays for mailbox and upload operations
type RetryPolicy struct {
	ConnectAttempts int
	ConnectDelay    time.Duration
	UploadAttempts  int
	UploadDelay     time.Duration
	AuthTimeout     time.Duration
}

// DefaultRetryPolicy 3 connection attempts 2s apart, 3 uploads 1s apart, 10s auth timeout
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ConnectAttempts: 3,
		ConnectDelay:    2 * time.Second,
		UploadAttempts:  3,
		UploadDelay:     1 * time.Second,
		AuthTimeout:     10 * time.Second,
	}
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// retry calls fn up to attempts times, sleeping delay between failed attempts.
// The last error is returned.
func retry(ctx context.Context, attempts int, delay time.Duration, sleep sleepFunc, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}
