package reconcile

import "context"

type ctxKey int

const (
	ctxKeyCurrentTaskID ctxKey = iota
	ctxKeyDecomposeParent
)

type decomposeParent struct {
	id    string
	depth int
}

// WithCurrentTaskID attaches the task ID a BUILD stage invocation dispatched
// to the agent, so the reconciler knows which task a "done"/"blocked"
// verdict applies to.
func WithCurrentTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, ctxKeyCurrentTaskID, taskID)
}

func currentTaskID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyCurrentTaskID).(string)
	return v, ok && v != ""
}

// WithDecomposeTarget attaches the failing task's ID and decompose depth
// for a DECOMPOSE stage invocation, so the reconciler can set each
// subtask's parent and depth correctly.
func WithDecomposeTarget(ctx context.Context, taskID string, depth int) context.Context {
	return context.WithValue(ctx, ctxKeyDecomposeParent, decomposeParent{id: taskID, depth: depth})
}

func decomposeTarget(ctx context.Context) (string, int, bool) {
	v, ok := ctx.Value(ctxKeyDecomposeParent).(decomposeParent)
	return v.id, v.depth, ok && v.id != ""
}
