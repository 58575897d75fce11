package engine

import "context"

// ActivityInfo identifies the activity invocation and the workflow execution
// it runs on behalf of. Adapters attach it to every activity context so the
// worker layer can rebuild ambient tenancy without reparsing anything but
// the workflow ID.
type ActivityInfo struct {
	ActivityName string
	WorkflowID   string
	RunID        string
	WorkflowType string
	TaskQueue    string
}

type activityInfoKey struct{}

// WithActivityInfo returns a child context carrying info.
func WithActivityInfo(ctx context.Context, info ActivityInfo) context.Context {
	return context.WithValue(ctx, activityInfoKey{}, info)
}

// ActivityInfoFromContext extracts the activity info attached by the engine
// adapter, reporting false outside activity invocations.
func ActivityInfoFromContext(ctx context.Context) (ActivityInfo, bool) {
	info, ok := ctx.Value(activityInfoKey{}).(ActivityInfo)
	return info, ok
}
