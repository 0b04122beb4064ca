package scheduler

import (
	"context"
	"os/exec"
	"time"

	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/ticketstore"
)

// defaultProbeTimeout bounds the acceptance pre-check's probe execution —
// short enough that a hung command doesn't stall the whole VERIFY dispatch.
const defaultProbeTimeout = 10 * time.Second

// PrecheckResult reports what the pre-check did for one task.
type PrecheckResult struct {
	TaskID      string
	AutoAccepted bool
}

// RunAcceptancePrecheck iterates done tasks and, for any whose Accept field
// looks like a shell command, probe-executes it with a short timeout in
// workDir. A zero exit auto-accepts the task via store and skips it for the
// agent; any other outcome (non-zero exit, timeout, not a command) leaves
// the task untouched — this is a pure optimization and must never reject.
func RunAcceptancePrecheck(ctx context.Context, store ticketstore.Client, done []*plan.Task, workDir string) []PrecheckResult {
	var results []PrecheckResult
	for _, t := range done {
		if !LooksLikeCommand(t.Accept) {
			continue
		}
		if probeCommand(ctx, t.Accept, workDir) {
			if err := store.TaskAccept(ctx, t.ID); err == nil {
				results = append(results, PrecheckResult{TaskID: t.ID, AutoAccepted: true})
			}
		}
	}
	return results
}

// probeCommand runs cmdline in a shell with a short timeout, returning true
// only on a clean zero exit.
func probeCommand(ctx context.Context, cmdline, workDir string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, "sh", "-c", cmdline)
	cmd.Dir = workDir
	return cmd.Run() == nil
}

// RemainingForAgent filters precheck results out of done, returning the
// tasks still needing the agent's attention.
func RemainingForAgent(done []*plan.Task, results []PrecheckResult) []*plan.Task {
	accepted := make(map[string]bool, len(results))
	for _, r := range results {
		if r.AutoAccepted {
			accepted[r.TaskID] = true
		}
	}
	var remaining []*plan.Task
	for _, t := range done {
		if !accepted[t.ID] {
			remaining = append(remaining, t)
		}
	}
	return remaining
}
