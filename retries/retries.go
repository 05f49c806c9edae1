package retries

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 100 * time.Millisecond

	HealthAttempts  = 2
	HealthBaseDelay = 50 * time.Millisecond
)

// Linear waits attempt*Step after each failed attempt.
type Linear struct {
	Step time.Duration

	attempt int
}

func (l *Linear) NextBackOff() time.Duration {
	l.attempt++
	return time.Duration(l.attempt) * l.Step
}

func (l *Linear) Reset() { l.attempt = 0 }

// Retry runs fn up to attempts times with exponential backoff starting at baseDelay.
// Errors rejected by isRetriable stop the loop immediately.
func Retry(
	ctx context.Context,
	attempts int,
	baseDelay time.Duration,
	fn func() error,
	isRetriable func(error) bool,
) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.MaxElapsedTime = 0

	return run(ctx, b, attempts, fn, isRetriable, nil)
}

// RetryLinear runs fn up to attempts times, waiting attempt*step between tries.
// notify, when set, is called after every failed attempt that will be retried.
func RetryLinear(
	ctx context.Context,
	attempts int,
	step time.Duration,
	fn func() error,
	notify func(attempt int, err error, wait time.Duration),
) error {
	var n int
	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			n++
			notify(n, err, wait)
		}
	}
	return run(ctx, &Linear{Step: step}, attempts, fn, nil, onRetry)
}

func run(
	ctx context.Context,
	b backoff.BackOff,
	attempts int,
	fn func() error,
	isRetriable func(error) bool,
	notify backoff.Notify,
) error {
	if attempts < 1 {
		attempts = 1
	}

	op := func() error {
		err := fn()
		if err != nil && isRetriable != nil && !isRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}

var retriableCodes = map[string]struct{}{
	"ProvisionedThroughputExceededException": {},
	"ThrottlingException":                    {},
	"RequestLimitExceeded":                   {},
	"InternalServerError":                    {},
	"ServiceUnavailable":                     {},
	"SlowDown":                               {},
}

// IsRetriableDbError reports whether err is a throttling or transient server error.
func IsRetriableDbError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		_, ok := retriableCodes[apiErr.ErrorCode()]
		return ok
	}
	return false
}
