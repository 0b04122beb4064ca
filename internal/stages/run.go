package stages

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/reconcile"
	"github.com/ralph-dev/construct/internal/scheduler"
)

// specContents reads ralph/specs/<specFile>, returning empty string if it
// cannot be read — a missing spec file degrades the prompt, it does not
// abort the stage.
func specContents(workDir, specFile string) string {
	if specFile == "" {
		return ""
	}
	body, err := os.ReadFile(filepath.Join(workDir, "ralph", "specs", specFile))
	if err != nil {
		return ""
	}
	return string(body)
}

// RunBuild executes the BUILD stage: picks the best pending task via the
// scheduler rule, composes its prompt (including any kill reason/log left
// by a prior failed attempt, supplied by the caller since the ticket store
// has no verb to persist them onto the task record), runs the agent, and
// reconciles.
func RunBuild(ctx context.Context, d Deps, specFile string, pending []*plan.Task, retryCounts map[string]int, priorKillReason, priorKillLog string) StageResult {
	task := scheduler.PickBestTask(pending, retryCounts)
	if task == nil {
		return StageResult{Stage: reconcile.StageBuild, Outcome: OutcomeSkip}
	}

	prompt, err := composePrompt(d, reconcile.StageBuild, specFile, specContents(d.WorkDir, specFile), task, nil, priorKillReason, priorKillLog)
	if err != nil {
		return StageResult{Stage: reconcile.StageBuild, Outcome: OutcomeFailure, Err: err}
	}

	ctx = reconcile.WithCurrentTaskID(ctx, task.ID)
	res := runAgentAndReconcile(ctx, d, reconcile.StageBuild, prompt, false)
	res.TaskID = task.ID
	return res
}

// RunVerify executes the VERIFY stage over a batch of done-task IDs.
func RunVerify(ctx context.Context, d Deps, specFile string, batch []string) StageResult {
	if len(batch) == 0 {
		return StageResult{Stage: reconcile.StageVerify, Outcome: OutcomeSkip}
	}
	prompt, err := composePrompt(d, reconcile.StageVerify, specFile, specContents(d.WorkDir, specFile), nil, batch, "", "")
	if err != nil {
		return StageResult{Stage: reconcile.StageVerify, Outcome: OutcomeFailure, Err: err}
	}
	return runAgentAndReconcile(ctx, d, reconcile.StageVerify, prompt, false)
}

// RunInvestigate executes the INVESTIGATE stage over a batch of issue IDs.
func RunInvestigate(ctx context.Context, d Deps, specFile string, batch []string) StageResult {
	if len(batch) == 0 {
		return StageResult{Stage: reconcile.StageInvestigate, Outcome: OutcomeSkip}
	}
	prompt, err := composePrompt(d, reconcile.StageInvestigate, specFile, specContents(d.WorkDir, specFile), nil, batch, "", "")
	if err != nil {
		return StageResult{Stage: reconcile.StageInvestigate, Outcome: OutcomeFailure, Err: err}
	}
	return runAgentAndReconcile(ctx, d, reconcile.StageInvestigate, prompt, false)
}

// RunDecompose executes the DECOMPOSE stage against the queued target
// task, embedding only the head/tail of the failed attempt's kill log
// (never the full contents, and never read from the task record, since
// the ticket store has no verb to persist it there) and granting
// read-only filesystem access for the duration.
func RunDecompose(ctx context.Context, d Deps, specFile string, target *plan.Task, parentDepth int, killReason, killLog string) StageResult {
	if target == nil {
		return StageResult{Stage: reconcile.StageDecompose, Outcome: OutcomeSkip}
	}
	prompt, err := composePrompt(d, reconcile.StageDecompose, specFile, specContents(d.WorkDir, specFile), target, nil, killReason, killLog)
	if err != nil {
		return StageResult{Stage: reconcile.StageDecompose, Outcome: OutcomeFailure, Err: err}
	}

	ctx = reconcile.WithDecomposeTarget(ctx, target.ID, parentDepth)
	res := runAgentAndReconcile(ctx, d, reconcile.StageDecompose, prompt, true)
	res.TaskID = target.ID
	return res
}

// RunPlan executes the PLAN stage, producing the initial task set from a
// bare spec file.
func RunPlan(ctx context.Context, d Deps, specFile string) StageResult {
	prompt, err := composePrompt(d, reconcile.StagePlan, specFile, specContents(d.WorkDir, specFile), nil, nil, "", "")
	if err != nil {
		return StageResult{Stage: reconcile.StagePlan, Outcome: OutcomeFailure, Err: err}
	}
	return runAgentAndReconcile(ctx, d, reconcile.StagePlan, prompt, false)
}
