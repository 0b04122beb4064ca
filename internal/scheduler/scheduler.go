// Package scheduler implements the pure decision helpers the construct
// state machine dispatches to: priority task selection, the acceptance
// pre-check's command-shape heuristic, issue deduplication, and stuck-task
// escalation. None of these hold state themselves — callers pass in
// whatever ticket-store snapshot and retry-count map they already have.
package scheduler

import (
	"sort"
	"strings"

	"github.com/ralph-dev/construct/internal/plan"
)

// priorityRank mirrors plan's internal ranking (high=0, medium/unset=1,
// low=2) but is re-derived here since the scheduler's sort key also needs
// retry count and input-order tiebreaks plan.SortedPending doesn't track.
func priorityRank(priority string) int {
	switch priority {
	case plan.PriorityHigh:
		return 0
	case plan.PriorityLow:
		return 2
	default:
		return 1
	}
}

// PickBestTask selects the next task to dispatch from pending, sorted by:
// 1. ready (deps not in the current pending set) before blocked
// 2. priority rank
// 3. retry count ascending
// 4. input order (stable)
//
// retryCounts maps task ID to in-memory retry attempts; a task absent from
// the map is treated as zero retries. Returns nil if pending is empty.
func PickBestTask(pending []*plan.Task, retryCounts map[string]int) *plan.Task {
	if len(pending) == 0 {
		return nil
	}

	pendingIDs := make(map[string]bool, len(pending))
	for _, t := range pending {
		pendingIDs[t.ID] = true
	}

	type scored struct {
		task  *plan.Task
		ready bool
		rank  int
		retry int
		order int
	}

	scoredTasks := make([]scored, len(pending))
	for i, t := range pending {
		scoredTasks[i] = scored{
			task:  t,
			ready: isReady(t, pendingIDs),
			rank:  priorityRank(t.Priority),
			retry: retryCounts[t.ID],
			order: i,
		}
	}

	sort.SliceStable(scoredTasks, func(i, j int) bool {
		a, b := scoredTasks[i], scoredTasks[j]
		if a.ready != b.ready {
			return a.ready // ready (true) sorts first
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.retry != b.retry {
			return a.retry < b.retry
		}
		return a.order < b.order
	})

	return scoredTasks[0].task
}

// isReady reports whether none of t's deps are themselves in the current
// pending set — i.e. every dependency has already left the pending queue
// (done, accepted, or never existed in-queue to begin with).
func isReady(t *plan.Task, pendingIDs map[string]bool) bool {
	for _, dep := range t.Deps {
		if pendingIDs[dep] {
			return false
		}
	}
	return true
}

// commandTokens are the leading tokens that mark a string as a recognizable
// shell command for the acceptance pre-check.
var commandTokens = []string{
	"pytest", "make", "go", "npm", "cargo", "./", "bash", "sh", "python", "grep", "test", "echo",
}

// commandOperators are substrings whose presence marks a string as a shell
// command regardless of its leading token.
var commandOperators = []string{"|", "&&", "||", ">>", ">", ";"}

// LooksLikeCommand reports whether accept, once trimmed, looks like a
// runnable shell command rather than prose — used by the acceptance
// pre-check to decide whether to probe-execute a task's accept criterion.
func LooksLikeCommand(accept string) bool {
	trimmed := strings.TrimSpace(accept)
	if trimmed == "" {
		return false
	}
	for _, op := range commandOperators {
		if strings.Contains(trimmed, op) {
			return true
		}
	}
	for _, tok := range commandTokens {
		if strings.HasPrefix(trimmed, tok) {
			return true
		}
	}
	return false
}
