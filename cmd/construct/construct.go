package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ralph-dev/construct/internal/budget"
	"github.com/ralph-dev/construct/internal/construct"
	"github.com/ralph-dev/construct/internal/executor"
	"github.com/ralph-dev/construct/internal/ledger"
)

// cmdConstruct drives the orchestrator state machine to completion or
// until a budget trips, writing a ledger run record and one iteration
// record per Step call, then printing the single exit summary line
// required on every abort.
func cmdConstruct(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("construct", flag.ContinueOnError)
	maxCost := fs.Float64("max-cost", 0, "stop when cost exceeds $N")
	maxFailures := fs.Int("max-failures", 0, "stop after N consecutive failures")
	timeoutMs := fs.Int("timeout", 0, "kill stage after N milliseconds")
	contextLimit := fs.Int("context-limit", 0, "context window size in tokens")
	maxIterationsFlag := fs.Int("max-iterations", 0, "max iterations (alternative syntax)")
	profile := fs.String("profile", "", "cost profile overlay")
	fs.StringVar(profile, "p", "", "cost profile overlay (shorthand)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	applyProfile(*profile)

	positional := fs.Args()
	maxIterations := *maxIterationsFlag
	var specArg string
	if len(positional) > 0 {
		if n, err := strconv.Atoi(positional[0]); err == nil {
			maxIterations = n
			if len(positional) > 1 {
				specArg = positional[1]
			}
		} else {
			specArg = positional[0]
		}
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	if specArg != "" {
		name, err := e.ensureSpecInSpecsDir(specArg)
		if err != nil {
			return err
		}
		if err := setActiveSpec(e, name); err != nil {
			return err
		}
	}

	cfg := e.Cfg
	if *timeoutMs > 0 {
		cfg.StageTimeoutMs = *timeoutMs
	}
	if *contextLimit > 0 {
		cfg.ContextWindow = *contextLimit
	}
	if *maxFailures > 0 {
		cfg.MaxFailures = *maxFailures
	}

	limits := budget.Limits{
		MaxIterations:          maxIterations,
		MaxCostUSD:             *maxCost,
		MaxConsecutiveFailures: cfg.MaxFailures,
	}
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = cfg.MaxIterations
	}
	bt := budget.New(limits, 2)

	deps := e.stageDeps(executor.Run)
	m := construct.New(cfg, deps, e.Store, e.StatePath, bt)

	if err := os.MkdirAll(e.LogDir, 0o755); err != nil {
		return err
	}

	activeSpec := ""
	if p, err := loadPlan(e); err == nil {
		activeSpec = p.Spec
	}

	runID := ledger.NewRunID()
	runStart := time.Now()
	run := ledger.RunRecord{
		RunID:          runID,
		Spec:           activeSpec,
		Branch:         e.Git.CurrentBranch(ctx),
		GitSHAStart:    e.Git.CurrentCommit(ctx),
		Profile:        cfg.Profile,
		ConfigSnapshot: ledger.ConfigSnapshot(cfg),
		StartedAt:      runStart.Format(time.RFC3339),
	}

	var exitReason string
	iteration := 0

	for {
		if ctx.Err() != nil {
			exitReason = "interrupted"
			break
		}

		iterStart := time.Now()
		result, stepErr := m.Step(ctx)
		if stepErr != nil {
			exitReason = "ticket_store"
			fmt.Fprintln(os.Stderr, "construct: ticket store unavailable:", stepErr)
			break
		}
		iteration++

		iter := ledger.IterationRecord{
			RunID:     runID,
			Iteration: iteration,
			Model:     cfg.Model,
			DurationS: time.Since(iterStart).Seconds(),
		}
		if sr := result.StageResult; sr != nil {
			iter.Stage = sr.Stage
			iter.TaskID = sr.TaskID
			iter.Cost = sr.Cost
			iter.Tokens = ledger.TokenBreakdown{Output: sr.Tokens}
			iter.DurationS = sr.Duration.Seconds()
			iter.Outcome = string(sr.Outcome)
			iter.KillReason = sr.KillReason

			run.Cost += sr.Cost
			run.Tokens.Output += sr.Tokens

			fmt.Printf("[%d] %s %s (%.1fs, $%.4f)\n", iteration, sr.Stage, sr.Outcome, sr.Duration.Seconds(), sr.Cost)
		}
		_ = ledger.WriteIteration(e.LogDir, iter)

		if !result.Continue {
			exitReason = string(result.ExitReason)
			if result.Complete {
				exitReason = string(budget.ExitReasonComplete)
			}
			break
		}
	}

	run.EndedAt = time.Now().Format(time.RFC3339)
	run.DurationS = time.Since(runStart).Seconds()
	run.ExitReason = exitReason
	run.Iterations = iteration
	run.GitSHAEnd = e.Git.CurrentCommit(ctx)
	if p, err := loadPlan(e); err == nil {
		run.TasksTotal = len(p.Tasks) + len(p.Accepted) + len(p.Rejected)
		run.TasksCompleted = len(p.Accepted)
		run.TasksFailed = len(p.Rejected)
	}
	run.APICallsRemote = bt.Snapshot().RemoteAPICalls
	_ = ledger.WriteRun(e.LogDir, run)

	fmt.Printf("\nconstruct: exit_reason=%s iterations=%d cost=$%.4f\n", orDefault(exitReason, string(budget.ExitReasonComplete)), iteration, run.Cost)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
