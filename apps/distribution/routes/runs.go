package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/expodist/apps/distribution/runner"
	"github.com/quatton/expodist/pkg/dlog"
	"github.com/quatton/expodist/pkg/xerr"
)

// GetStatusOutput is the report of the last run
type GetStatusOutput struct {
	Body runner.Report
}

// TriggerRunInput defines the input for triggering a run
type TriggerRunInput struct {
	Wait bool `query:"wait" doc:"Block until the run finished and return its report" required:"false"`
}

// TriggerRunOutput is the response for triggering a run
type TriggerRunOutput struct {
	Status int
	Body   struct {
		Accepted bool           `json:"accepted" doc:"Whether the run was started"`
		Report   *runner.Report `json:"report,omitempty" doc:"Report of the finished run when waiting"`
	}
}

// RegisterRuns registers the run status and trigger routes
func RegisterRuns(api huma.API, svcs *Services) {
	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Last run status",
		Description: "Returns the report of the most recent distribution run",
		Tags:        []string{TagRuns.String()},
	}, func(ctx context.Context, input *struct{}) (*GetStatusOutput, error) {
		report, ok := svcs.Runs.Last()
		if !ok {
			return nil, huma.Error404NotFound("no distribution run yet")
		}
		return &GetStatusOutput{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "trigger-run",
		Method:      http.MethodPost,
		Path:        "/runs",
		Summary:     "Trigger a run",
		Description: "Starts a distribution run outside the schedule",
		Tags:        []string{TagRuns.String()},
	}, func(ctx context.Context, input *TriggerRunInput) (*TriggerRunOutput, error) {
		logger := svcs.Logger
		if logger == nil {
			logger = dlog.FromContext(ctx)
		}
		runCtx := dlog.WithContext(context.WithoutCancel(ctx), logger)

		resp := &TriggerRunOutput{}
		if !input.Wait {
			svcs.background.Add(1)
			go func() {
				defer svcs.background.Done()
				svcs.Runs.Run(runCtx)
			}()
			resp.Status = http.StatusAccepted
			resp.Body.Accepted = true
			return resp, nil
		}

		report, err := svcs.Runs.Run(runCtx)
		if xerr.IsCode(err, xerr.CodeLocked) {
			return nil, huma.Error409Conflict("a distribution run is already in progress")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("distribution run failed", err)
		}
		resp.Status = http.StatusOK
		resp.Body.Accepted = true
		resp.Body.Report = &report
		return resp, nil
	})
}
