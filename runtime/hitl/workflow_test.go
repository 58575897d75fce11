package hitl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/engine/inmem"
)

const taskWorkflowType = "MyAgent:" + TaskWorkflowName

// newTaskEngine registers the task workflow on an in-memory engine and
// returns the engine plus the external task service.
func newTaskEngine(t *testing.T) (*inmem.Engine, *Tasks) {
	t.Helper()
	eng := inmem.New(inmem.Options{})
	w := eng.NewWorker("acme:"+taskWorkflowType, engine.WorkerOptions{})
	w.RegisterWorkflow(taskWorkflowType, NewWorkflow(nil, func(engine.WorkflowContext) context.Context {
		return context.Background()
	}))
	tasks := NewTasks(TasksOptions{
		Client:    eng,
		Resolver:  agentscope.Resolver{AgentName: "MyAgent", DefaultTenant: "acme"},
		AgentName: "MyAgent",
	})
	return eng, tasks
}

// waitPending polls until the task workflow answers queries, so signals in
// the test body cannot race handler registration.
func waitPending(t *testing.T, task *HitlTask) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if info, err := task.GetInfo(context.Background()); err == nil {
			assert.False(t, info.IsCompleted)
			return
		}
		select {
		case <-deadline:
			t.Fatal("task workflow never became queryable")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTaskHappyPathApprove(t *testing.T) {
	t.Parallel()

	_, tasks := newTaskEngine(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, TaskRequest{
		TaskID:        "t-1",
		Title:         "Review",
		ParticipantID: "user-1",
		DraftWork:     "hello",
		Actions:       []string{"approve", "reject"},
	})
	require.NoError(t, err)
	assert.Equal(t, "acme:MyAgent:Task Workflow:t-1", task.WorkflowID())
	waitPending(t, task)

	require.NoError(t, task.UpdateDraft(ctx, "hello world"))
	require.NoError(t, task.PerformAction(ctx, "approve", "LGTM"))

	result, err := task.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-1", result.TaskID)
	assert.Equal(t, "hello", result.InitialWork)
	assert.Equal(t, "hello world", result.FinalWork)
	require.NotNil(t, result.PerformedAction)
	assert.Equal(t, "approve", *result.PerformedAction)
	assert.Equal(t, "LGTM", result.Comment)
	assert.False(t, result.TimedOut)
	assert.True(t, result.Completed)
	require.NotNil(t, result.CompletedAt)

	completed, err := task.IsCompleted(ctx)
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestTaskTimeout(t *testing.T) {
	t.Parallel()

	_, tasks := newTaskEngine(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, TaskRequest{
		TaskID:        "t-timeout",
		Title:         "Review",
		ParticipantID: "user-1",
		Timeout:       50 * time.Millisecond,
	})
	require.NoError(t, err)

	result, err := task.Await(ctx)
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.False(t, result.Completed)
	assert.Nil(t, result.PerformedAction)
}

func TestTaskActionWhitelist(t *testing.T) {
	t.Parallel()

	_, tasks := newTaskEngine(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, TaskRequest{
		TaskID:        "t-wl",
		Title:         "Review",
		ParticipantID: "user-1",
		DraftWork:     "draft",
		Actions:       []string{"publish"},
	})
	require.NoError(t, err)
	waitPending(t, task)

	// Not in the whitelist: state must not change.
	require.NoError(t, task.PerformAction(ctx, "approve", ""))
	info, err := task.GetInfo(ctx)
	require.NoError(t, err)
	assert.False(t, info.IsCompleted)
	assert.Nil(t, info.PerformedAction)

	require.NoError(t, task.PerformAction(ctx, "publish", "ship it"))
	result, err := task.Await(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.PerformedAction)
	assert.Equal(t, "publish", *result.PerformedAction)
}

func TestTaskDraftUpdateIdempotentAndFrozenAfterCompletion(t *testing.T) {
	t.Parallel()

	_, tasks := newTaskEngine(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, TaskRequest{
		TaskID:        "t-draft",
		Title:         "Review",
		ParticipantID: "user-1",
		DraftWork:     "v1",
	})
	require.NoError(t, err)
	waitPending(t, task)

	require.NoError(t, task.UpdateDraft(ctx, "v2"))
	require.NoError(t, task.UpdateDraft(ctx, "v2"))
	info, err := task.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", info.CurrentDraft)

	require.NoError(t, task.Approve(ctx, ""))
	result, err := task.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", result.FinalWork)

	// Signals against the completed workflow fail or are ignored; either
	// way persistent fields stay frozen.
	_ = task.UpdateDraft(ctx, "v3")
	info, err = task.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", info.FinalWork)
	assert.True(t, info.IsCompleted)
}

func TestTaskLegacyApproveAlias(t *testing.T) {
	t.Parallel()

	eng, tasks := newTaskEngine(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, TaskRequest{
		TaskID:        "t-legacy",
		Title:         "Review",
		ParticipantID: "user-1",
		DraftWork:     "draft",
	})
	require.NoError(t, err)
	waitPending(t, task)

	// The legacy signal shares the perform-action state machine.
	require.NoError(t, eng.SignalWorkflow(ctx, task.WorkflowID(), "", SignalApprove, "looks fine"))

	result, err := task.Await(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.PerformedAction)
	assert.Equal(t, ActionApprove, *result.PerformedAction)
	assert.Equal(t, "looks fine", result.Comment)
}

func TestTaskGeneratesIDWhenEmpty(t *testing.T) {
	t.Parallel()

	_, tasks := newTaskEngine(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, TaskRequest{Title: "Review", ParticipantID: "user-1", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.NotEmpty(t, task.TaskID())

	result, err := task.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID(), result.TaskID)
}

func TestFromWorkflowID(t *testing.T) {
	t.Parallel()

	_, tasks := newTaskEngine(t)

	task, err := tasks.FromWorkflowID("acme:MyAgent:Task Workflow:t-9")
	require.NoError(t, err)
	assert.Equal(t, "t-9", task.TaskID())

	_, err = tasks.FromWorkflowID("acme:OtherAgent:Chat:u1")
	require.Error(t, err)

	_, err = tasks.FromWorkflowID("not-an-id")
	require.Error(t, err)
}
