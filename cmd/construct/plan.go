package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralph-dev/construct/internal/executor"
	"github.com/ralph-dev/construct/internal/stages"
)

// cmdPlan runs the PLAN stage against a spec file, seeding plan.jsonl with
// the resulting task set, then auto-prioritizes tasks the agent left
// unprioritized and commits plan.jsonl if it changed.
func cmdPlan(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: construct plan <spec-file>")
	}
	specArg := args[0]

	e, err := newEnv()
	if err != nil {
		return err
	}

	specName, err := e.ensureSpecInSpecsDir(specArg)
	if err != nil {
		return err
	}

	deps := e.stageDeps(executor.Run)
	timeout := timeoutFor(e.Cfg)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := stages.RunPlan(ctx, deps, specName)
	if result.Outcome != stages.OutcomeSuccess {
		if result.Err != nil {
			return fmt.Errorf("PLAN failed: %w", result.Err)
		}
		return fmt.Errorf("PLAN did not complete (kill reason: %s)", result.KillReason)
	}

	autoPrioritizeTasks(ctx, e)

	tasks, err := e.Store.ListPending(ctx)
	taskCount := 0
	if err == nil {
		taskCount = len(tasks)
	}

	msg := fmt.Sprintf("%s plan %s (%d tasks)", e.Cfg.CommitPrefix, specName, taskCount)
	if e.Git.HasUncommittedPlan(ctx, e.PlanPath) {
		branch := e.Git.CurrentBranch(ctx)
		e.Git.SyncWithRemote(ctx, branch, e.PlanPath, msg)
		e.Git.PushWithRetry(ctx, branch, e.PlanPath, msg, 2)
	}

	fmt.Printf("Planned %s: %d tasks, cost $%.4f, %.1fs\n", specName, taskCount, result.Cost, result.Duration.Seconds())
	return nil
}

// ensureSpecInSpecsDir copies specArg into ralph/specs/ if it is not
// already there, returning the basename stages.RunPlan expects. A spec
// already inside ralph/specs/ is used in place.
func (e *env) ensureSpecInSpecsDir(specArg string) (string, error) {
	abs := specArg
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.RepoRoot, specArg)
	}

	if dir := filepath.Dir(abs); dir == e.SpecsDir {
		return filepath.Base(abs), nil
	}

	body, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("reading spec %s: %w", specArg, err)
	}
	name := filepath.Base(abs)
	dest := filepath.Join(e.SpecsDir, name)
	if err := os.MkdirAll(e.SpecsDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// autoPrioritizeTasks assigns a priority to every pending task the PLAN
// stage left unprioritized, using dependency shape as a heuristic: no-deps
// setup-like tasks and tasks many others depend on go first, heavily
// dependent tasks go last, everything else is medium.
func autoPrioritizeTasks(ctx context.Context, e *env) {
	pending, err := e.Store.ListPending(ctx)
	if err != nil {
		return
	}

	depCount := make(map[string]int)
	for _, t := range pending {
		for _, dep := range t.Deps {
			depCount[dep]++
		}
	}

	setupKeywords := []string{"setup", "init", "create", "add module", "extract"}
	for _, t := range pending {
		if t.Priority != "" {
			continue
		}
		priority := "medium"
		lowerName := strings.ToLower(t.Name)
		switch {
		case len(t.Deps) == 0 && containsAny(lowerName, setupKeywords):
			priority = "high"
		case depCount[t.ID] >= 2:
			priority = "high"
		case len(t.Deps) >= 3:
			priority = "low"
		}
		_ = e.Store.TaskPrioritize(ctx, t.ID, priority)
	}
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
