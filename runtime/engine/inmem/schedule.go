package inmem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xians-ai/sdk-go/runtime/engine"
)

type (
	scheduleState struct {
		req     engine.ScheduleRequest
		paused  bool
		note    string
		fired   int
		deleted bool
	}

	scheduleHandle struct {
		eng *Engine
		id  string
	}
)

// CreateSchedule registers the schedule. In-memory schedules never fire on
// their own; tests drive them through Trigger.
func (e *Engine) CreateSchedule(ctx context.Context, req engine.ScheduleRequest) (engine.ScheduleHandle, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("%w: schedule id is required", engine.ErrInvalidScheduleSpec)
	}
	if req.Spec == nil {
		return nil, fmt.Errorf("%w: schedule spec is required", engine.ErrInvalidScheduleSpec)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, exists := e.schedules[req.ID]; exists && !st.deleted {
		return nil, &engine.ScheduleAlreadyExistsError{ScheduleID: req.ID}
	}
	e.schedules[req.ID] = &scheduleState{req: req, paused: req.Paused, note: req.Note}
	return &scheduleHandle{eng: e, id: req.ID}, nil
}

// GetScheduleHandle returns a handle without checking existence.
func (e *Engine) GetScheduleHandle(scheduleID string) engine.ScheduleHandle {
	return &scheduleHandle{eng: e, id: scheduleID}
}

// ListSchedules returns all live schedules. The only query form supported is
// an ID prefix expressed as `ScheduleId STARTS_WITH "<prefix>"`; anything
// else returns everything.
func (e *Engine) ListSchedules(ctx context.Context, query string) ([]engine.ScheduleListEntry, error) {
	prefix := parsePrefixQuery(query)
	e.mu.Lock()
	defer e.mu.Unlock()
	var entries []engine.ScheduleListEntry
	for id, st := range e.schedules {
		if st.deleted {
			continue
		}
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			continue
		}
		entries = append(entries, engine.ScheduleListEntry{ID: id, Paused: st.paused})
	}
	return entries, nil
}

func parsePrefixQuery(query string) string {
	const marker = `STARTS_WITH "`
	idx := strings.Index(query, marker)
	if idx < 0 {
		return ""
	}
	rest := query[idx+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func (h *scheduleHandle) ID() string { return h.id }

func (h *scheduleHandle) state() (*scheduleState, error) {
	h.eng.mu.Lock()
	defer h.eng.mu.Unlock()
	st, ok := h.eng.schedules[h.id]
	if !ok || st.deleted {
		return nil, fmt.Errorf("%w: %q", engine.ErrScheduleNotFound, h.id)
	}
	return st, nil
}

func (h *scheduleHandle) Describe(ctx context.Context) (engine.ScheduleDescription, error) {
	st, err := h.state()
	if err != nil {
		return engine.ScheduleDescription{}, err
	}
	h.eng.mu.Lock()
	defer h.eng.mu.Unlock()
	return engine.ScheduleDescription{
		ID:            h.id,
		Spec:          st.req.Spec,
		Paused:        st.paused,
		Note:          st.note,
		RecentActions: st.fired,
	}, nil
}

func (h *scheduleHandle) Pause(ctx context.Context, note string) error {
	st, err := h.state()
	if err != nil {
		return err
	}
	h.eng.mu.Lock()
	st.paused = true
	st.note = note
	h.eng.mu.Unlock()
	return nil
}

func (h *scheduleHandle) Unpause(ctx context.Context, note string) error {
	st, err := h.state()
	if err != nil {
		return err
	}
	h.eng.mu.Lock()
	st.paused = false
	st.note = note
	h.eng.mu.Unlock()
	return nil
}

// Trigger starts the schedule's workflow action immediately. The action
// workflow ID is suffixed with the firing count so repeated triggers do not
// collide.
func (h *scheduleHandle) Trigger(ctx context.Context) error {
	st, err := h.state()
	if err != nil {
		return err
	}
	h.eng.mu.Lock()
	st.fired++
	seq := st.fired
	action := st.req.Action
	h.eng.mu.Unlock()

	var input any
	if len(action.Input) == 1 {
		input = action.Input[0]
	} else if len(action.Input) > 1 {
		input = action.Input
	}
	_, err = h.eng.StartWorkflow(ctx, engine.StartWorkflowRequest{
		ID:               fmt.Sprintf("%s-%d", action.WorkflowID, seq),
		Workflow:         action.Workflow,
		TaskQueue:        action.TaskQueue,
		Input:            input,
		Memo:             action.Memo,
		RetryPolicy:      action.RetryPolicy,
		ExecutionTimeout: action.ExecutionTimeout,
	})
	return err
}

func (h *scheduleHandle) Delete(ctx context.Context) error {
	st, err := h.state()
	if err != nil {
		return err
	}
	h.eng.mu.Lock()
	st.deleted = true
	h.eng.mu.Unlock()
	return nil
}

func (h *scheduleHandle) Backfill(ctx context.Context, start, end time.Time) error {
	if _, err := h.state(); err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("%w: backfill end precedes start", engine.ErrInvalidScheduleSpec)
	}
	return nil
}
