package objectstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyClient struct {
	*MemoryClient
	failures int
	calls    int
	err      error
}

func (c *flakyClient) GetObject(ctx context.Context, key string) ([]byte, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, c.err
	}
	return c.MemoryClient.GetObject(ctx, key)
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{Attempts: attempts, Backoff: BackoffFixed, BaseDelay: time.Millisecond, Timeout: time.Second}
}

func TestRetryingClient(t *testing.T) {
	ctx := context.Background()
	transient := errors.New("connection reset")

	t.Run("recovers within attempts", func(t *testing.T) {
		inner := &flakyClient{MemoryClient: NewMemoryClient(), failures: 2, err: transient}
		putKeys(t, inner.MemoryClient, "version")

		if _, err := NewRetryingClient(inner, fastRetry(3)).GetObject(ctx, "version"); err != nil {
			t.Fatalf("Expected success on third attempt, got %v", err)
		}
		if inner.calls != 3 {
			t.Errorf("Expected 3 calls, got %d", inner.calls)
		}
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		inner := &flakyClient{MemoryClient: NewMemoryClient(), failures: 10, err: transient}

		_, err := NewRetryingClient(inner, fastRetry(3)).GetObject(ctx, "version")
		if !errors.Is(err, ErrOperationFailed) || !errors.Is(err, transient) {
			t.Fatalf("Expected ErrOperationFailed wrapping the last error, got %v", err)
		}
		if inner.calls != 3 {
			t.Errorf("Expected 3 calls, got %d", inner.calls)
		}
	})

	t.Run("does not retry missing objects", func(t *testing.T) {
		inner := &flakyClient{MemoryClient: NewMemoryClient()}

		_, err := NewRetryingClient(inner, fastRetry(3)).GetObject(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
		if inner.calls != 1 {
			t.Errorf("Expected a single call, got %d", inner.calls)
		}
	})

	t.Run("exponential backoff", func(t *testing.T) {
		inner := &flakyClient{MemoryClient: NewMemoryClient(), failures: 1, err: transient}
		putKeys(t, inner.MemoryClient, "version")
		cfg := fastRetry(2)
		cfg.Backoff = BackoffExponential
		cfg.MaxDelay = 10 * time.Millisecond

		if _, err := NewRetryingClient(inner, cfg).GetObject(ctx, "version"); err != nil {
			t.Fatalf("Expected success, got %v", err)
		}
	})
}

func TestFailedOperationsCounter(t *testing.T) {
	ctx := context.Background()
	c := NewFailedOperationsCounter(2)
	cause := errors.New("boom")

	for i := 0; i < 2; i++ {
		if err := c.Inc(ctx, cause); err != nil {
			t.Fatalf("Expected no error at failure %d, got %v", i+1, err)
		}
	}
	if c.Tripped() {
		t.Fatal("Counter should not trip at the maximum")
	}
	if err := c.Inc(ctx, cause); !errors.Is(err, ErrThresholdExceeded) || !errors.Is(err, cause) {
		t.Fatalf("Expected ErrThresholdExceeded wrapping the cause, got %v", err)
	}
	if !c.Tripped() || c.Count() != 3 {
		t.Errorf("Expected tripped counter at 3, got tripped=%v count=%d", c.Tripped(), c.Count())
	}

	unlimited := NewFailedOperationsCounter(-1)
	for i := 0; i < 10; i++ {
		if err := unlimited.Inc(ctx, cause); err != nil {
			t.Fatalf("Negative maximum should never trip, got %v", err)
		}
	}
}
