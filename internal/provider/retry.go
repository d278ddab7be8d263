package provider

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Retry decorates an Oracle with exponential backoff. maxAttempts is the
// total number of invocations, not the number of retries after the first.
// The delay before attempt k+1 is baseDelay doubled k-1 times. The error
// from the final attempt is returned unchanged.
type Retry struct {
	inner       Oracle
	maxAttempts int
	baseDelay   time.Duration
	log         *logrus.Entry
	sleep       func(time.Duration)
}

func WithRetry(inner Oracle, maxAttempts int, baseDelay time.Duration, logger *logrus.Logger) *Retry {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Retry{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		log:         logger.WithField("component", "retry"),
		sleep:       time.Sleep,
	}
}

func (r *Retry) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out, err := r.inner.Complete(ctx, msgs, opts)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt < r.maxAttempts {
			delay := r.baseDelay << (attempt - 1)
			r.log.WithError(err).WithField("attempt", attempt).
				Warnf("completion failed, retrying in %s", delay)
			r.sleep(delay)
		}
	}
	return "", lastErr
}

func (r *Retry) Embed(ctx context.Context, text, model string) ([]float64, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out, err := r.inner.Embed(ctx, text, model)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt < r.maxAttempts {
			delay := r.baseDelay << (attempt - 1)
			r.log.WithError(err).WithField("attempt", attempt).
				Warnf("embedding failed, retrying in %s", delay)
			r.sleep(delay)
		}
	}
	return nil, lastErr
}
