package routes

import (
	"context"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/expodist/apps/distribution/runner"
	"github.com/quatton/expodist/pkg/dlog"
)

// Runs starts distribution runs and remembers the last one.
type Runs interface {
	Run(ctx context.Context) (runner.Report, error)
	Last() (runner.Report, bool)
}

// Presigner hands out temporary download links for published objects.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Services are the backends of the operator API. Objects may be nil when the
// object store cannot presign.
type Services struct {
	Runs    Runs
	Objects Presigner
	Checks  map[string]Check
	Logger  *dlog.Logger

	background sync.WaitGroup
}

// Wait blocks until the runs started in the background finished or ctx is
// done.
func (s *Services) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func RegisterRoutes(api huma.API, svcs *Services) {
	RegisterHealth(api, svcs.Checks)
	RegisterRuns(api, svcs)
	RegisterObjects(api, svcs.Objects)
}
