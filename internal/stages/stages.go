// Package stages implements the per-stage runners — INVESTIGATE, BUILD,
// VERIFY, DECOMPOSE, PLAN — that make up the common skeleton described in
// the state machine design: check eligibility, compose a prompt, run the
// agent, reconcile its output, and report a StageResult.
package stages

import (
	"context"
	"time"

	"github.com/ralph-dev/construct/internal/executor"
	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/reconcile"
	"github.com/ralph-dev/construct/internal/ticketstore"
)

// Outcome is the result classification of a single stage invocation.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	OutcomeSkip    Outcome = "SKIP"
)

// StageResult is what every stage runner returns to the state machine.
type StageResult struct {
	Stage       string
	Outcome     Outcome
	Duration    time.Duration
	Cost        float64
	Tokens      int64
	TaskID      string
	KillReason  string
	KillLogPath string
	// RawOutput is the agent's raw stdout from a failed attempt, carried so
	// a later DECOMPOSE dispatch can embed its head/tail as the kill log —
	// the ticket store has no verb to persist this onto the task record.
	RawOutput string
	Err       error
}

// ExecutorFunc matches executor.Run's signature; executor.Run itself can
// be assigned directly, and tests substitute a stub.
type ExecutorFunc func(ctx context.Context, opts executor.Options) (executor.Result, error)

// Deps bundles the collaborators every stage runner needs. Kept as a
// struct rather than separate parameters so adding a collaborator later
// doesn't change every runner's signature.
type Deps struct {
	Executor     ExecutorFunc
	Store        ticketstore.Client
	Config       plan.Config
	Model        string
	Agent        string
	WorkDir      string
	TemplateDir  string
	RulesDirs    []string // AGENTS.md/CLAUDE.md search locations
	StateDirRoot string
}

// timeoutFor resolves the per-stage timeout, falling back to the plan
// config's default when no override applies.
func timeoutFor(cfg plan.Config) time.Duration {
	if cfg.TimeoutMs <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

// runAgentAndReconcile is the shared tail of every stage runner: step 3
// (run), step 4 (reconcile), step 5 (classify outcome), shared by BUILD,
// VERIFY, INVESTIGATE, DECOMPOSE, and PLAN.
func runAgentAndReconcile(ctx context.Context, d Deps, stageName, prompt string, allowRead bool) StageResult {
	start := time.Now()

	stateDir, err := executor.PrivateStateDir("ralph-" + stageName)
	if err != nil {
		return StageResult{Stage: stageName, Outcome: OutcomeFailure, Duration: time.Since(start), Err: err}
	}

	res, err := d.Executor(ctx, executor.Options{
		Prompt:    prompt,
		WorkDir:   d.WorkDir,
		Timeout:   timeoutFor(d.Config),
		Model:     d.Model,
		Agent:     d.Agent,
		AllowRead: allowRead,
		StateDir:  stateDir,
	})
	duration := time.Since(start)
	if err != nil {
		return StageResult{Stage: stageName, Outcome: OutcomeFailure, Duration: duration, Err: err}
	}

	if res.TimedOut {
		return StageResult{
			Stage: stageName, Outcome: OutcomeFailure, Duration: duration,
			Cost: res.Metrics.Cost, Tokens: res.Metrics.TokensInput + res.Metrics.TokensOutput,
			KillReason: "timeout", RawOutput: res.Output,
		}
	}
	if res.ExitCode != 0 {
		return StageResult{
			Stage: stageName, Outcome: OutcomeFailure, Duration: duration,
			Cost: res.Metrics.Cost, Tokens: res.Metrics.TokensInput + res.Metrics.TokensOutput,
			KillReason: "nonzero_exit", RawOutput: res.Output,
		}
	}

	rr := reconcile.Reconcile(ctx, d.Store, stageName, res.Output)
	tokens := res.Metrics.TokensInput + res.Metrics.TokensOutput

	mutated := rr.TasksAdded+rr.TasksAccepted+rr.TasksRejected+rr.TasksDeleted+rr.IssuesAdded+rr.IssuesResolved > 0
	if len(rr.Errors) > 0 && !mutated {
		return StageResult{
			Stage: stageName, Outcome: OutcomeFailure, Duration: duration,
			Cost: res.Metrics.Cost, Tokens: tokens, KillReason: "parse_error",
			RawOutput: res.Output, Err: joinErrs(rr.Errors),
		}
	}
	if !mutated {
		return StageResult{
			Stage: stageName, Outcome: OutcomeFailure, Duration: duration,
			Cost: res.Metrics.Cost, Tokens: tokens, KillReason: "no_mutation", RawOutput: res.Output,
		}
	}

	return StageResult{
		Stage: stageName, Outcome: OutcomeSuccess, Duration: duration,
		Cost: res.Metrics.Cost, Tokens: tokens,
	}
}

func joinErrs(msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	e := errorList(msgs)
	return e
}

type errorList []string

func (e errorList) Error() string {
	out := e[0]
	for _, s := range e[1:] {
		out += "; " + s
	}
	return out
}
