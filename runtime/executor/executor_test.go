package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/runctx"
)

// stubWorkflowContext records activity executions; everything else panics
// via the embedded nil interface.
type stubWorkflowContext struct {
	engine.WorkflowContext
	executed []engine.ActivityRequest
	result   any
}

func (s *stubWorkflowContext) ExecuteActivity(req engine.ActivityRequest, result any) error {
	s.executed = append(s.executed, req)
	if result != nil && s.result != nil {
		encoded, err := engine.MarshalPayload(s.result)
		if err != nil {
			return err
		}
		return encoded.Decode(result)
	}
	return nil
}

func workflowCtx(stub *stubWorkflowContext) context.Context {
	return runctx.Install(context.Background(), &runctx.Info{
		Kind:     runctx.KindWorkflow,
		TenantID: "acme",
		Workflow: stub,
	})
}

func activityCtx() context.Context {
	return runctx.Install(context.Background(), &runctx.Info{
		Kind:     runctx.KindActivity,
		TenantID: "acme",
	})
}

func TestExecuteInsideWorkflowDispatchesActivity(t *testing.T) {
	t.Parallel()

	stub := &stubWorkflowContext{result: "from-activity"}
	directCalls := 0

	out, err := Execute(workflowCtx(stub), "TestActivity.Do", map[string]string{"k": "v"},
		func(context.Context) (string, error) {
			directCalls++
			return "from-direct", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "from-activity", out)
	assert.Zero(t, directCalls, "direct path must not run inside a workflow")
	require.Len(t, stub.executed, 1, "exactly one activity execution per call")
	assert.Equal(t, "TestActivity.Do", stub.executed[0].Name)
}

func TestExecuteOutsideWorkflowRunsDirect(t *testing.T) {
	t.Parallel()

	for name, ctx := range map[string]context.Context{
		"activity": activityCtx(),
		"plain":    context.Background(),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := Execute(ctx, "TestActivity.Do", nil,
				func(context.Context) (string, error) { return "from-direct", nil })
			require.NoError(t, err)
			assert.Equal(t, "from-direct", out)
		})
	}
}

func TestRunInsideWorkflow(t *testing.T) {
	t.Parallel()

	stub := &stubWorkflowContext{}
	err := Run(workflowCtx(stub), "TestActivity.Void", 42,
		func(context.Context) error {
			t.Fatal("direct path must not run inside a workflow")
			return nil
		})
	require.NoError(t, err)
	require.Len(t, stub.executed, 1)
	assert.Equal(t, 42, stub.executed[0].Input)
}
