package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// RetryConfig controls how a RetryingClient retries.
type RetryConfig struct {
	// Attempts is the total number of tries per call, at least one.
	Attempts  int
	Backoff   string
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Timeout bounds every single try. Zero disables it.
	Timeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  3,
		Backoff:   BackoffExponential,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Timeout:   30 * time.Second,
	}
}

// RetryingClient retries every call of the wrapped client. When all attempts
// fail the last error is returned wrapped in ErrOperationFailed.
type RetryingClient struct {
	next Client
	cfg  RetryConfig
}

func NewRetryingClient(next Client, cfg RetryConfig) *RetryingClient {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &RetryingClient{next: next, cfg: cfg}
}

func (c *RetryingClient) policy(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	switch c.cfg.Backoff {
	case BackoffFixed:
		b = backoff.NewConstantBackOff(c.cfg.BaseDelay)
	default:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.cfg.BaseDelay
		if c.cfg.MaxDelay > 0 {
			exp.MaxInterval = c.cfg.MaxDelay
		}
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.Attempts-1)), ctx)
}

func (c *RetryingClient) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := backoff.Retry(func() error {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		}
		defer cancel()

		err := fn(callCtx)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBucketMissing) {
			return backoff.Permanent(err)
		}
		return err
	}, c.policy(ctx))
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrOperationFailed, op, err)
}

func (c *RetryingClient) ListObjects(ctx context.Context, prefix, continuation string) (Page, error) {
	var page Page
	err := c.do(ctx, "list "+prefix, func(ctx context.Context) error {
		var err error
		page, err = c.next.ListObjects(ctx, prefix, continuation)
		return err
	})
	return page, err
}

func (c *RetryingClient) PutObject(ctx context.Context, key, path string, headers Headers) error {
	return c.do(ctx, "put "+key, func(ctx context.Context) error {
		return c.next.PutObject(ctx, key, path, headers)
	})
}

func (c *RetryingClient) RemoveObjects(ctx context.Context, keys []string) error {
	return c.do(ctx, fmt.Sprintf("remove %d objects", len(keys)), func(ctx context.Context) error {
		return c.next.RemoveObjects(ctx, keys)
	})
}

func (c *RetryingClient) BucketExists(ctx context.Context) (bool, error) {
	var exists bool
	err := c.do(ctx, "bucket exists", func(ctx context.Context) error {
		var err error
		exists, err = c.next.BucketExists(ctx)
		return err
	})
	return exists, err
}

func (c *RetryingClient) GetObject(ctx context.Context, key string) ([]byte, error) {
	var content []byte
	err := c.do(ctx, "get "+key, func(ctx context.Context) error {
		var err error
		content, err = c.next.GetObject(ctx, key)
		return err
	})
	return content, err
}

var _ Client = (*RetryingClient)(nil)
