package objectstore

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"github.com/quatton/expodist/pkg/dlog"
)

// FailedOperationsCounter counts failed object store operations of a run and
// trips once more than max have failed. A negative max never trips.
type FailedOperationsCounter struct {
	max     int64
	count   atomic.Int64
	tripped atomic.Bool
}

func NewFailedOperationsCounter(max int) *FailedOperationsCounter {
	return &FailedOperationsCounter{max: int64(max)}
}

// Inc records cause. It returns ErrThresholdExceeded when this failure
// pushes the count past the maximum, and on every call after that.
func (c *FailedOperationsCounter) Inc(ctx context.Context, cause error) error {
	n := c.count.Inc()
	dlog.FromContext(ctx).Error("Object store operation failed", "failures", n, "max", c.max, "error", cause)

	if c.max >= 0 && n > c.max {
		c.tripped.Store(true)
		return fmt.Errorf("%w: %d failures, last: %w", ErrThresholdExceeded, n, cause)
	}
	return nil
}

func (c *FailedOperationsCounter) Count() int64 { return c.count.Load() }

func (c *FailedOperationsCounter) Tripped() bool { return c.tripped.Load() }
