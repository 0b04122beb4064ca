package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralph-dev/construct/internal/plan"
)

// cmdSetSpec switches the active spec recorded in plan.jsonl. The spec
// file must already exist, either at the given path or under
// ralph/specs/; set-spec never creates one.
func cmdSetSpec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: construct set-spec <file>")
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	if !dirExists(e.RalphDir) {
		return fmt.Errorf("construct not initialized; run 'construct init' first")
	}

	specPath := args[0]
	if _, err := os.Stat(specPath); err != nil {
		candidate := filepath.Join(e.SpecsDir, specPath)
		if _, err := os.Stat(candidate); err != nil {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
		specPath = candidate
	}

	return setActiveSpec(e, filepath.Base(specPath))
}

// setActiveSpec rewrites plan.jsonl's spec record in place, leaving
// every task/issue/tombstone untouched.
func setActiveSpec(e *env, specName string) error {
	p, err := loadPlan(e)
	if err != nil {
		return err
	}
	old := p.Spec
	p.Spec = specName
	if err := plan.Save(p, e.PlanPath); err != nil {
		return err
	}
	if old != "" {
		fmt.Printf("Spec changed: %s -> %s\n", old, specName)
	} else {
		fmt.Printf("Spec set: %s\n", specName)
	}
	return nil
}
