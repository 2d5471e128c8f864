// Retry and pacing wrapper around a Files implementation.
//
// Transient failures are retried with capped exponential backoff and
// jitter; conflict and not-found errors pass through untouched since
// retrying them cannot succeed. A token bucket paces outgoing calls so a
// burst of entity uploads does not trip the remote's rate limits.

package remote

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"conceptarium/internal/models"
)

// RetryConfig tunes the backoff schedule. These are configuration, not
// contract: defaults were picked to ride out short rate-limit windows.
type RetryConfig struct {
	MaxAttempts int           // total tries including the first
	BackoffBase time.Duration // delay before the first retry
	BackoffCap  time.Duration // upper bound for any single delay
	// RatePerSec limits outgoing calls per second; 0 disables pacing.
	RatePerSec float64
	Burst      int
}

// DefaultRetryConfig returns the built-in schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BackoffBase: 250 * time.Millisecond,
		BackoffCap:  8 * time.Second,
		RatePerSec:  20,
		Burst:       10,
	}
}

type retryFiles struct {
	inner   Files
	cfg     RetryConfig
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error
}

// WithRetry wraps inner with the retry/pacing policy.
func WithRetry(inner Files, cfg RetryConfig) Files {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &retryFiles{inner: inner, cfg: cfg, limiter: limiter, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do runs op with pacing and retries.
func (r *retryFiles) do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if r.limiter != nil {
			if werr := r.limiter.Wait(ctx); werr != nil {
				return werr
			}
		}
		err = op()
		if err == nil || !models.IsTransient(err) {
			return err
		}
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}
		if serr := r.sleep(ctx, r.delay(attempt, err)); serr != nil {
			return serr
		}
	}
	return err
}

// delay computes the backoff for the given attempt: base*2^attempt with
// full jitter, capped, honoring a server-suggested RetryAfter as the floor.
func (r *retryFiles) delay(attempt int, err error) time.Duration {
	d := r.cfg.BackoffBase << uint(attempt)
	if d > r.cfg.BackoffCap || d <= 0 {
		d = r.cfg.BackoffCap
	}
	if d <= 0 {
		// Misconfigured or zero-valued schedule; keep the retry loop alive
		// without a panic from the jitter draw.
		d = time.Millisecond
	}
	d = time.Duration(rand.Int64N(int64(d)) + int64(d)/2)
	if r.cfg.BackoffCap > 0 && d > r.cfg.BackoffCap {
		d = r.cfg.BackoffCap
	}
	var te *models.TransientError
	if errors.As(err, &te) && te.RetryAfter > d {
		d = te.RetryAfter
	}
	return d
}

func (r *retryFiles) Download(ctx context.Context, path, rev string) (Content, error) {
	var out Content
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Download(ctx, path, rev)
		return err
	})
	return out, err
}

func (r *retryFiles) Upload(ctx context.Context, path string, data []byte, mode Mode) (string, error) {
	var rev string
	err := r.do(ctx, func() error {
		var err error
		rev, err = r.inner.Upload(ctx, path, data, mode)
		return err
	})
	return rev, err
}

func (r *retryFiles) Delete(ctx context.Context, path string) error {
	return r.do(ctx, func() error {
		return r.inner.Delete(ctx, path)
	})
}

func (r *retryFiles) ListRevisions(ctx context.Context, path string) ([]Revision, error) {
	var out []Revision
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.ListRevisions(ctx, path)
		return err
	})
	return out, err
}
