package scheduler

import (
	"context"
	"fmt"

	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/ticketstore"
)

// EscalateStuckTasks converts every pending task whose retry count is at or
// past maxRetries into an issue describing the escalation, rejects the
// task, and removes its entry from retryCounts — preventing livelock on a
// task the agent cannot complete. Returns the IDs escalated.
func EscalateStuckTasks(ctx context.Context, store ticketstore.Client, pending []*plan.Task, retryCounts map[string]int, maxRetries int) ([]string, error) {
	var escalated []string
	for _, t := range pending {
		count, tracked := retryCounts[t.ID]
		if !tracked || count < maxRetries {
			continue
		}

		desc := fmt.Sprintf("task %s stuck after %d retries", t.ID, count)
		if t.RejectReason != "" {
			desc += fmt.Sprintf(": %s", t.RejectReason)
		}
		if _, err := store.IssueAdd(ctx, desc, t.Spec, t.Priority); err != nil {
			return escalated, err
		}
		if err := store.TaskReject(ctx, t.ID, "stuck: exceeded max retries"); err != nil {
			return escalated, err
		}
		delete(retryCounts, t.ID)
		escalated = append(escalated, t.ID)
	}
	return escalated, nil
}
