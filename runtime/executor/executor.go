// Package executor implements the dual dispatch every capability service
// routes through: invoked from workflow code, a call becomes an activity
// execution so I/O stays out of workflow history replay; invoked from
// activity or plain code, it runs the service directly.
//
// Activities dispatched here must be pre-registered on every worker under
// the names the capability packages export; there is no dynamic discovery.
package executor

import (
	"context"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/runctx"
)

// Execute routes one capability call. Inside a workflow it schedules the
// named activity with input and engine-default options (2 minute
// start-to-close, 3 attempts, 5s initial backoff, coefficient 2); outside it
// invokes direct. The two paths must be semantically identical: the activity
// body is the direct path running on a worker.
func Execute[T any](ctx context.Context, activityName string, input any, direct func(context.Context) (T, error)) (T, error) {
	var zero T
	if info, err := runctx.FromContext(ctx); err == nil && info.Kind == runctx.KindWorkflow {
		var out T
		if err := info.Workflow.ExecuteActivity(engine.ActivityRequest{
			Name:  activityName,
			Input: input,
		}, &out); err != nil {
			return zero, err
		}
		return out, nil
	}
	return direct(ctx)
}

// Run is Execute for calls without a result.
func Run(ctx context.Context, activityName string, input any, direct func(context.Context) error) error {
	if info, err := runctx.FromContext(ctx); err == nil && info.Kind == runctx.KindWorkflow {
		return info.Workflow.ExecuteActivity(engine.ActivityRequest{
			Name:  activityName,
			Input: input,
		}, nil)
	}
	return direct(ctx)
}
