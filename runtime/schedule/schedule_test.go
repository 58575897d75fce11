package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xians-ai/sdk-go/runtime/agentscope"
	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/engine/inmem"
	"github.com/xians-ai/sdk-go/runtime/runctx"
)

func newManager(t *testing.T) (*Manager, *inmem.Engine) {
	t.Helper()
	eng := inmem.New(inmem.Options{})
	m := NewManager(ManagerOptions{
		Client:       eng,
		Resolver:     agentscope.Resolver{AgentName: "MyAgent", DefaultTenant: "acme"},
		WorkflowType: "MyAgent:Chat",
	})
	return m, eng
}

func TestScheduleIdempotentCreate(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	handle, err := m.Create("daily").Daily(9).WithInput("x").Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme:daily", handle.ID())

	_, err = m.Create("daily").Daily(9).WithInput("x").Start(ctx)
	require.ErrorIs(t, err, engine.ErrScheduleAlreadyExists)
	var exists *engine.ScheduleAlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "acme:daily", exists.ScheduleID)
}

func TestScheduleCronExpressions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		build func(*Builder) *Builder
		expr  string
	}{
		{"daily", func(b *Builder) *Builder { return b.Daily(9) }, "0 9 * * *"},
		{"daily at minute", func(b *Builder) *Builder { return b.DailyAt(9, 30) }, "30 9 * * *"},
		{"weekly", func(b *Builder) *Builder { return b.Weekly(time.Monday, 8) }, "0 8 * * 1"},
		{"monthly", func(b *Builder) *Builder { return b.MonthlyAt(15, 12, 45) }, "45 12 15 * *"},
		{"hourly", func(b *Builder) *Builder { return b.Hourly(5) }, "5 * * * *"},
		{"weekdays", func(b *Builder) *Builder { return b.WeekdaysAt(18, 15) }, "15 18 * * 1-5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newManager(t)
			handle, err := tc.build(m.Create("s-" + tc.name)).Start(context.Background())
			require.NoError(t, err)
			desc, err := handle.Describe(context.Background())
			require.NoError(t, err)
			cron, ok := desc.Spec.(engine.CronSpec)
			require.True(t, ok)
			assert.Equal(t, tc.expr, cron.Expression)
		})
	}
}

func TestScheduleBuilderValidation(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	_, err := m.Create("bad").WithCronSchedule("not a cron").Start(ctx)
	require.ErrorIs(t, err, engine.ErrInvalidScheduleSpec)

	_, err = m.Create("bad").WithIntervalSchedule(-time.Second, 0).Start(ctx)
	require.ErrorIs(t, err, engine.ErrInvalidScheduleSpec)

	_, err = m.Create("bad").EveryMinutes(5).InTimezone("UTC").Start(ctx)
	require.ErrorIs(t, err, engine.ErrInvalidScheduleSpec)

	_, err = m.Create("bad").Daily(9).InTimezone("Not/AZone").Start(ctx)
	require.ErrorIs(t, err, engine.ErrInvalidScheduleSpec)

	_, err = m.Create("bad").Start(ctx)
	require.ErrorIs(t, err, engine.ErrInvalidScheduleSpec)

	_, err = m.Create("bad").Daily(9).EveryMinutes(5).Start(ctx)
	require.ErrorIs(t, err, engine.ErrInvalidScheduleSpec)

	_, err = m.Create("").Daily(9).Start(ctx)
	require.ErrorIs(t, err, engine.ErrInvalidScheduleSpec)
}

func TestScheduleListFiltersToTenant(t *testing.T) {
	t.Parallel()

	m, eng := newManager(t)
	ctx := context.Background()

	_, err := m.Create("mine").Daily(9).Start(ctx)
	require.NoError(t, err)

	// A foreign tenant's schedule created out of band.
	_, err = eng.CreateSchedule(ctx, engine.ScheduleRequest{
		ID:   "contoso:theirs",
		Spec: engine.CronSpec{Expression: "0 9 * * *"},
	})
	require.NoError(t, err)

	entries, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acme:mine", entries[0].ID)
}

func TestScheduleManagementOps(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	handle, err := m.Create("ops").EveryMinutes(10).Start(ctx)
	require.NoError(t, err)

	require.NoError(t, handle.Pause(ctx, "maintenance"))
	desc, err := m.Describe(ctx, "ops")
	require.NoError(t, err)
	assert.True(t, desc.Paused)
	assert.Equal(t, "maintenance", desc.Note)

	require.NoError(t, m.Unpause(ctx, "ops", "done"))
	desc, err = m.Describe(ctx, "ops")
	require.NoError(t, err)
	assert.False(t, desc.Paused)

	require.NoError(t, m.Delete(ctx, "ops"))
	_, err = m.Describe(ctx, "ops")
	require.ErrorIs(t, err, engine.ErrScheduleNotFound)
}

// recordingWorkflowContext satisfies engine.WorkflowContext through the
// embedded interface; only ExecuteActivity is implemented.
type recordingWorkflowContext struct {
	engine.WorkflowContext
	requests []engine.ActivityRequest
}

func (r *recordingWorkflowContext) ExecuteActivity(req engine.ActivityRequest, result any) error {
	r.requests = append(r.requests, req)
	encoded, err := engine.MarshalPayload(CreateResult{ScheduleID: "acme:wf", Created: true})
	if err != nil {
		return err
	}
	return encoded.Decode(result)
}

func workflowCtx(stub *recordingWorkflowContext) context.Context {
	return runctx.Install(context.Background(), &runctx.Info{
		Kind:     runctx.KindWorkflow,
		TenantID: "acme",
		Workflow: stub,
	})
}

func TestScheduleCreateFromWorkflowUsesActivity(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	stub := &recordingWorkflowContext{}

	handle, err := m.Create("wf").EveryMinutes(5).Start(workflowCtx(stub))
	require.NoError(t, err)
	assert.Equal(t, "acme:wf", handle.ID())
	require.Len(t, stub.requests, 1)
	assert.Equal(t, ActivityCreateIfNotExists, stub.requests[0].Name)
}

func TestCalendarScheduleRejectedInWorkflow(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	stub := &recordingWorkflowContext{}

	_, err := m.Create("once").
		WithCalendarSchedule(time.Date(2027, 1, 1, 9, 0, 0, 0, time.UTC)).
		Start(workflowCtx(stub))
	require.ErrorIs(t, err, ErrUnsupportedInWorkflow)
	assert.Empty(t, stub.requests)
}

func TestCreateIfNotExistsActivityIsIdempotent(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	acts := NewActivities(m, nil)
	ctx := context.Background()

	in := CreateInput{
		ScheduleID:       "acme:idem",
		WorkflowType:     "MyAgent:Chat",
		TaskQueue:        "acme:MyAgent:Chat",
		ActionWorkflowID: "acme:MyAgent:Chat:schedule:idem",
		Spec:             SpecDescriptor{Kind: "interval", Every: time.Minute},
	}
	first, err := acts.CreateIfNotExists(ctx, in)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := acts.CreateIfNotExists(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, "acme:idem", second.ScheduleID)
}
