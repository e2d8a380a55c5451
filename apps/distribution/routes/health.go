package routes

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const checkTimeout = 2 * time.Second

// Check probes one backend. A nil error means it is reachable.
type Check func(ctx context.Context) error

type HealthOutput struct {
	Status int
	Body   struct {
		Status string            `json:"status" example:"ok" doc:"ok, or degraded when a backend is unreachable"`
		Checks map[string]string `json:"checks,omitempty" doc:"Result per backend"`
	}
}

func RegisterHealth(api huma.API, checks map[string]Check) {
	huma.Register(api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports whether the database, object store and state store are reachable",
		Tags:        []string{TagHealth.String()},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		resp := &HealthOutput{Status: http.StatusOK}
		resp.Body.Status = "ok"
		if len(checks) > 0 {
			resp.Body.Checks = map[string]string{}
		}

		for _, name := range slices.Sorted(maps.Keys(checks)) {
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			err := checks[name](checkCtx)
			cancel()

			if err != nil {
				resp.Status = http.StatusServiceUnavailable
				resp.Body.Status = "degraded"
				resp.Body.Checks[name] = err.Error()
				continue
			}
			resp.Body.Checks[name] = "ok"
		}
		return resp, nil
	})
}
