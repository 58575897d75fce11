package hitl

import (
	"context"
	"strings"
	"time"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/identifier"
	"github.com/xians-ai/sdk-go/runtime/messaging"
	"github.com/xians-ai/sdk-go/runtime/runctx"
)

// taskState is the workflow's durable state. It lives in workflow memory;
// the engine's history makes it durable across replays.
type taskState struct {
	TaskRequest

	completed       bool
	performedAction *string
	comment         string
	initialWork     string
	finalWork       string
	completedAt     *time.Time
	timedOut        bool
}

// NewWorkflow returns the task workflow handler. The ambient context factory
// is supplied by the platform so capability calls made inside the workflow
// resolve tenancy; messenger delivers the ready notification.
func NewWorkflow(messenger *messaging.Messenger, ambient func(engine.WorkflowContext) context.Context) engine.WorkflowFunc {
	return func(wctx engine.WorkflowContext, input engine.Payload) (any, error) {
		var req TaskRequest
		if err := input.Decode(&req); err != nil {
			return nil, err
		}

		state := &taskState{TaskRequest: req}
		if state.TaskID == "" {
			state.TaskID = wctx.NewUUID()
		}
		state.initialWork = req.DraftWork
		logger := wctx.Logger()

		if err := wctx.SetQueryHandler(QueryGetTaskInfo, func() (TaskInfo, error) {
			return state.snapshot(), nil
		}); err != nil {
			return nil, err
		}

		if err := wctx.SetSignalHandler(SignalUpdateDraft, func(update UpdateDraftRequest) {
			if state.completed {
				logger.Warn(context.Background(), "draft update ignored, task completed", "task_id", state.TaskID)
				return
			}
			state.DraftWork = update.Text
		}); err != nil {
			return nil, err
		}

		perform := func(action ActionRequest) {
			if state.completed {
				logger.Warn(context.Background(), "action ignored, task completed",
					"task_id", state.TaskID, "action", action.Action)
				return
			}
			if !allowed(state.Actions, action.Action) {
				logger.Warn(context.Background(), "action not allowed",
					"task_id", state.TaskID, "action", action.Action)
				return
			}
			performed := action.Action
			now := wctx.Now()
			state.performedAction = &performed
			state.comment = action.Comment
			state.finalWork = state.DraftWork
			state.completedAt = &now
			state.completed = true
		}

		if err := wctx.SetSignalHandler(SignalPerformAction, perform); err != nil {
			return nil, err
		}
		// Legacy aliases carry only a comment and map onto the modern state
		// machine.
		if err := wctx.SetSignalHandler(SignalApprove, func(comment string) {
			perform(ActionRequest{Action: ActionApprove, Comment: comment})
		}); err != nil {
			return nil, err
		}
		if err := wctx.SetSignalHandler(SignalReject, func(comment string) {
			perform(ActionRequest{Action: ActionReject, Comment: comment})
		}); err != nil {
			return nil, err
		}

		notifyReady(wctx, ambient, messenger, state)

		if req.Timeout > 0 {
			done, err := wctx.AwaitWithTimeout(req.Timeout, func() bool { return state.completed })
			if err != nil {
				return nil, err
			}
			if !done {
				state.timedOut = true
				state.completed = true
			}
		} else {
			if err := wctx.Await(func() bool { return state.completed }); err != nil {
				return nil, err
			}
		}

		return Result{
			TaskID:          state.TaskID,
			InitialWork:     state.initialWork,
			FinalWork:       state.finalWork,
			CompletedAt:     state.completedAt,
			PerformedAction: state.performedAction,
			Comment:         state.comment,
			TimedOut:        state.timedOut,
			Completed:       !state.timedOut,
		}, nil
	}
}

// notifyReady tells the participant the task awaits input. Failures must not
// fail the task.
func notifyReady(wctx engine.WorkflowContext, ambient func(engine.WorkflowContext) context.Context, messenger *messaging.Messenger, state *taskState) {
	if messenger == nil || state.ParticipantID == "" {
		return
	}
	tenant, err := identifier.ExtractTenant(wctx.WorkflowID())
	if err != nil {
		wctx.Logger().Warn(context.Background(), "task notification skipped",
			"task_id", state.TaskID, "err", err)
		return
	}
	ctx := ambient(wctx)
	err = messenger.Deliver(ctx, messaging.SendRequest{
		TenantID:      tenant,
		ParticipantID: state.ParticipantID,
		WorkflowType:  wctx.WorkflowType(),
		Scope:         "task",
		Data: map[string]any{
			"event":  "task-ready",
			"taskId": state.TaskID,
			"title":  state.Title,
		},
	})
	if err != nil {
		wctx.Logger().Warn(context.Background(), "task notification failed",
			"task_id", state.TaskID, "err", err)
	}
}

func (s *taskState) snapshot() TaskInfo {
	return TaskInfo{
		TaskID:          s.TaskID,
		Title:           s.Title,
		Description:     s.Description,
		ParticipantID:   s.ParticipantID,
		Metadata:        s.Metadata,
		CurrentDraft:    s.DraftWork,
		IsCompleted:     s.completed,
		PerformedAction: s.performedAction,
		Comment:         s.comment,
		Actions:         s.Actions,
		InitialWork:     s.initialWork,
		FinalWork:       s.finalWork,
		CompletedAt:     s.completedAt,
		TimedOut:        s.timedOut,
	}
}

// AmbientFromWorkflow is the default ambient-context factory: it installs a
// workflow-kind invocation derived from the workflow identifier so
// capability calls route through activities.
func AmbientFromWorkflow(registry runctx.Registry, systemScoped bool) func(engine.WorkflowContext) context.Context {
	return func(wctx engine.WorkflowContext) context.Context {
		parsed, err := identifier.Parse(wctx.WorkflowID())
		if err != nil {
			return context.Background()
		}
		agentName := wctx.WorkflowType()
		if idx := strings.Index(agentName, identifier.Separator); idx >= 0 {
			agentName = agentName[:idx]
		}
		return runctx.Install(context.Background(), &runctx.Info{
			Kind:         runctx.KindWorkflow,
			TenantID:     parsed.Tenant,
			AgentName:    agentName,
			WorkflowType: wctx.WorkflowType(),
			WorkflowID:   wctx.WorkflowID(),
			RunID:        wctx.RunID(),
			SystemScoped: systemScoped,
			Registry:     registry,
			Workflow:     wctx,
		})
	}
}
