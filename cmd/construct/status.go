package main

import (
	"context"
	"fmt"
	"os/exec"
)

// cmdStatus prints a one-screen progress summary: repo, branch, active
// spec, current stage, and a short list of in-flight tasks and open
// issues.
func cmdStatus(ctx context.Context, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	p, err := loadPlan(e)
	if err != nil {
		return err
	}

	branch := e.Git.CurrentBranch(ctx)

	fmt.Println("============================================================")
	fmt.Println("CONSTRUCT STATUS")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Overview")
	fmt.Printf("  Repo:   %s\n", e.RepoRoot)
	fmt.Printf("  Branch: %s\n", branch)
	fmt.Printf("  Spec:   %s\n", orDefault(p.Spec, "Not set"))
	fmt.Printf("  Logs:   %s\n", e.LogDir)
	fmt.Printf("  Stage:  %s\n", p.DeriveStage())
	if processRunning("opencode") {
		fmt.Println("  Status: running")
	} else {
		fmt.Println("  Status: stopped")
	}
	fmt.Println()

	pending := p.Pending()
	fmt.Printf("Pending tasks (%d)\n", len(pending))
	for i, t := range pending {
		if i >= 8 {
			fmt.Printf("  ... and %d more\n", len(pending)-8)
			break
		}
		priority := ""
		if t.Priority != "" {
			priority = fmt.Sprintf(" [%s]", t.Priority)
		}
		fmt.Printf("  - %s%s %s\n", t.ID, priority, t.Name)
	}
	fmt.Println()

	done := p.Done()
	fmt.Printf("Awaiting verification (%d)\n", len(done))
	for _, t := range done {
		fmt.Printf("  - %s %s\n", t.ID, t.Name)
	}
	fmt.Println()

	fmt.Printf("Open issues (%d)\n", len(p.Issues))
	for _, iss := range p.Issues {
		fmt.Printf("  - %s %s\n", iss.ID, iss.Desc)
	}

	return nil
}

// processRunning reports whether the agent subprocess appears active,
// matching the original's pgrep-by-name check. A lookup failure is treated
// as "not running" rather than propagated, since this is advisory display
// only, not a correctness-sensitive check.
func processRunning(name string) bool {
	out, err := exec.Command("pgrep", "-x", name).CombinedOutput()
	return err == nil && len(out) > 0
}
