package inmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xians-ai/sdk-go/runtime/engine"
)

type greeting struct {
	Name string `json:"name"`
}

func startEngine(t *testing.T) *Engine {
	t.Helper()
	return New(Options{})
}

func TestStartWorkflowReturnsResult(t *testing.T) {
	t.Parallel()

	eng := startEngine(t)
	w := eng.NewWorker("queue", engine.WorkerOptions{})
	w.RegisterWorkflow("greet", func(wctx engine.WorkflowContext, input engine.Payload) (any, error) {
		var in greeting
		if err := input.Decode(&in); err != nil {
			return nil, err
		}
		return "hello " + in.Name, nil
	})

	run, err := eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{
		ID:       "acme:Test:greet:1",
		Workflow: "greet",
		Input:    greeting{Name: "world"},
	})
	require.NoError(t, err)

	var out string
	require.NoError(t, run.Get(context.Background(), &out))
	assert.Equal(t, "hello world", out)
	assert.Equal(t, "acme:Test:greet:1", run.ID())
	assert.NotEmpty(t, run.RunID())
}

func TestSignalBeforeAndAfterHandlerRegistration(t *testing.T) {
	t.Parallel()

	eng := startEngine(t)
	w := eng.NewWorker("queue", engine.WorkerOptions{})
	w.RegisterWorkflow("collect", func(wctx engine.WorkflowContext, _ engine.Payload) (any, error) {
		var got []string
		err := wctx.SetSignalHandler("item", func(s string) {
			got = append(got, s)
		})
		if err != nil {
			return nil, err
		}
		if err := wctx.Await(func() bool { return len(got) >= 2 }); err != nil {
			return nil, err
		}
		return got, nil
	})

	run, err := eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{
		ID:       "acme:Test:collect:1",
		Workflow: "collect",
	})
	require.NoError(t, err)

	// One of these may land before the handler registers; the buffer must
	// preserve it.
	require.NoError(t, eng.SignalWorkflow(context.Background(), run.ID(), "", "item", "first"))
	require.NoError(t, eng.SignalWorkflow(context.Background(), run.ID(), "", "item", "second"))

	var got []string
	require.NoError(t, run.Get(context.Background(), &got))
	assert.ElementsMatch(t, []string{"first", "second"}, got)
}

func TestQueryAndUpdate(t *testing.T) {
	t.Parallel()

	eng := startEngine(t)
	w := eng.NewWorker("queue", engine.WorkerOptions{})
	w.RegisterWorkflow("counter", func(wctx engine.WorkflowContext, _ engine.Payload) (any, error) {
		count := 0
		done := false
		if err := wctx.SetQueryHandler("count", func() (int, error) { return count, nil }); err != nil {
			return nil, err
		}
		err := wctx.SetUpdateHandler("add", func(n int) (int, error) {
			count += n
			if count >= 10 {
				done = true
			}
			return count, nil
		}, func(n int) error {
			if n < 0 {
				return errors.New("negative increments are rejected")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if err := wctx.Await(func() bool { return done }); err != nil {
			return nil, err
		}
		return count, nil
	})

	run, err := eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{
		ID:       "acme:Test:counter:1",
		Workflow: "counter",
	})
	require.NoError(t, err)

	var total int
	require.NoError(t, eng.UpdateWorkflow(context.Background(), run.ID(), "", "add", 4, &total))
	assert.Equal(t, 4, total)

	// Validator rejection leaves state untouched.
	err = eng.UpdateWorkflow(context.Background(), run.ID(), "", "add", -1, nil)
	require.ErrorContains(t, err, "negative")

	var count int
	require.NoError(t, eng.QueryWorkflow(context.Background(), run.ID(), "", "count", nil, &count))
	assert.Equal(t, 4, count)

	require.NoError(t, eng.UpdateWorkflow(context.Background(), run.ID(), "", "add", 6, &total))
	assert.Equal(t, 10, total)

	var final int
	require.NoError(t, run.Get(context.Background(), &final))
	assert.Equal(t, 10, final)

	// Queries keep answering after completion.
	require.NoError(t, eng.QueryWorkflow(context.Background(), run.ID(), "", "count", nil, &count))
	assert.Equal(t, 10, count)
}

func TestDuplicateRunningIDRejected(t *testing.T) {
	t.Parallel()

	eng := startEngine(t)
	w := eng.NewWorker("queue", engine.WorkerOptions{})
	release := make(chan struct{})
	w.RegisterWorkflow("block", func(wctx engine.WorkflowContext, _ engine.Payload) (any, error) {
		<-release
		return nil, nil
	})

	_, err := eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{ID: "acme:Test:block:1", Workflow: "block"})
	require.NoError(t, err)
	_, err = eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{ID: "acme:Test:block:1", Workflow: "block"})
	require.ErrorContains(t, err, "already running")
	close(release)
}

func TestExecuteActivityCarriesInfoAndRetries(t *testing.T) {
	t.Parallel()

	eng := startEngine(t)
	w := eng.NewWorker("queue", engine.WorkerOptions{})

	attempts := 0
	w.RegisterActivity("flaky", func(ctx context.Context, in greeting) (string, error) {
		info, ok := engine.ActivityInfoFromContext(ctx)
		if !ok || info.WorkflowID == "" {
			return "", errors.New("missing activity info")
		}
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "hi " + in.Name, nil
	})
	w.RegisterWorkflow("caller", func(wctx engine.WorkflowContext, _ engine.Payload) (any, error) {
		var out string
		err := wctx.ExecuteActivity(engine.ActivityRequest{
			Name:  "flaky",
			Input: greeting{Name: "there"},
			RetryPolicy: engine.RetryPolicy{
				MaxAttempts:        3,
				InitialInterval:    time.Millisecond,
				BackoffCoefficient: 2,
			},
		}, &out)
		return out, err
	})

	run, err := eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{
		ID: "acme:Test:caller:1", Workflow: "caller", TaskQueue: "queue",
	})
	require.NoError(t, err)

	var out string
	require.NoError(t, run.Get(context.Background(), &out))
	assert.Equal(t, "hi there", out)
	assert.Equal(t, 2, attempts)
}

func TestAwaitWithTimeoutExpires(t *testing.T) {
	t.Parallel()

	eng := startEngine(t)
	w := eng.NewWorker("queue", engine.WorkerOptions{})
	w.RegisterWorkflow("waiter", func(wctx engine.WorkflowContext, _ engine.Payload) (any, error) {
		done, err := wctx.AwaitWithTimeout(20*time.Millisecond, func() bool { return false })
		if err != nil {
			return nil, err
		}
		return done, nil
	})

	run, err := eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{ID: "acme:Test:waiter:1", Workflow: "waiter"})
	require.NoError(t, err)

	var done bool
	require.NoError(t, run.Get(context.Background(), &done))
	assert.False(t, done)
}

func TestScheduleDuplicateAndTrigger(t *testing.T) {
	t.Parallel()

	eng := startEngine(t)
	w := eng.NewWorker("queue", engine.WorkerOptions{})
	ran := make(chan struct{}, 2)
	w.RegisterWorkflow("job", func(wctx engine.WorkflowContext, _ engine.Payload) (any, error) {
		ran <- struct{}{}
		return nil, nil
	})

	req := engine.ScheduleRequest{
		ID:   "acme:daily",
		Spec: engine.CronSpec{Expression: "0 9 * * *"},
		Action: engine.ScheduleAction{
			WorkflowID: "acme:Test:job:schedule:daily",
			Workflow:   "job",
			TaskQueue:  "queue",
		},
	}
	handle, err := eng.CreateSchedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "acme:daily", handle.ID())

	_, err = eng.CreateSchedule(context.Background(), req)
	require.ErrorIs(t, err, engine.ErrScheduleAlreadyExists)
	var exists *engine.ScheduleAlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "acme:daily", exists.ScheduleID)

	require.NoError(t, handle.Trigger(context.Background()))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("schedule trigger did not start the action workflow")
	}

	entries, err := eng.ListSchedules(context.Background(), `ScheduleId STARTS_WITH "acme:"`)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, handle.Delete(context.Background()))
	err = handle.Trigger(context.Background())
	require.ErrorIs(t, err, engine.ErrScheduleNotFound)
}
