// Package ticketstore defines the narrow interface the orchestrator uses to
// read and mutate the plan, backed by an external ticket CLI binary. The
// agent subprocess never talks to the ticket store directly — only the
// orchestrator's stage runners and reconciler do, through this interface.
package ticketstore

import (
	"context"

	"github.com/ralph-dev/construct/internal/plan"
)

// Client is the ticket store's full surface: read-only list queries and the
// mutations the reconciler applies after a stage completes.
type Client interface {
	// ListPending returns tasks with status "p".
	ListPending(ctx context.Context) ([]*plan.Task, error)
	// ListDone returns tasks with status "d" (awaiting verification).
	ListDone(ctx context.Context) ([]*plan.Task, error)
	// ListIssues returns all open issues.
	ListIssues(ctx context.Context) ([]*plan.Issue, error)

	// TaskAdd creates a new task and returns its assigned ID.
	TaskAdd(ctx context.Context, t *plan.Task) (string, error)
	// TaskBatchAdd creates several tasks in one call, returning their IDs in
	// the same order.
	TaskBatchAdd(ctx context.Context, tasks []*plan.Task) ([]string, error)
	// TaskDone marks a task as done (awaiting verification).
	TaskDone(ctx context.Context, taskID string) error
	// TaskAccept converts a done task into an accept tombstone.
	TaskAccept(ctx context.Context, taskID string) error
	// TaskReject resets a done task back to pending, recording a reason.
	TaskReject(ctx context.Context, taskID, reason string) error
	// TaskDelete removes a task outright, with no tombstone.
	TaskDelete(ctx context.Context, taskID string) error
	// TaskPrioritize changes a task's priority.
	TaskPrioritize(ctx context.Context, taskID, priority string) error

	// IssueAdd creates a new issue and returns its assigned ID.
	IssueAdd(ctx context.Context, desc, spec, priority string) (string, error)
	// IssueDone resolves the first open issue.
	IssueDone(ctx context.Context) error
	// IssueDoneAll resolves every open issue, returning the count resolved.
	IssueDoneAll(ctx context.Context) (int, error)
	// IssueDoneIDs resolves the given issue IDs, returning the count resolved.
	IssueDoneIDs(ctx context.Context, ids []string) (int, error)

	// Validate runs the ticket store's internal consistency checks.
	Validate(ctx context.Context) error
}
