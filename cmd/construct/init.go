package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralph-dev/construct/internal/reconcile"
	"github.com/ralph-dev/construct/internal/stages"
)

const exampleSpec = `# Example spec

Describe a module here: its types, its operations, its invariants and
edge cases, and any explicit non-goals. ` + "`construct plan ralph/specs/example.md`" + ` turns
this into a seeded task list.
`

var templateStages = []string{
	reconcile.StagePlan, reconcile.StageInvestigate, reconcile.StageBuild,
	reconcile.StageVerify, reconcile.StageDecompose,
}

// cmdInit scaffolds ralph/<PROMPT_*.md>, ralph/specs/ (with an example spec
// on first run), and the log directory. It does not create plan.jsonl; the
// ticket store's Validate is called only as a probe. Re-running it on an
// already initialized repo only backfills missing template files — it never
// overwrites a customized one.
func cmdInit(ctx context.Context, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	isUpdate := dirExists(e.RalphDir)
	if isUpdate {
		fmt.Printf("Updating construct in %s\n", e.RepoRoot)
	} else {
		fmt.Printf("Initializing construct in %s\n", e.RepoRoot)
	}

	for _, dir := range []string{e.RalphDir, e.SpecsDir, e.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	for _, stage := range templateStages {
		path := filepath.Join(e.RalphDir, fmt.Sprintf("PROMPT_%s.md", stage))
		if _, err := os.Stat(path); err == nil {
			continue // never clobber a customized template
		}
		if err := os.WriteFile(path, []byte(stages.DefaultTemplateBody(stage)), 0o644); err != nil {
			return err
		}
	}

	if !isUpdate {
		examplePath := filepath.Join(e.SpecsDir, "example.md")
		if _, err := os.Stat(examplePath); err != nil {
			if err := os.WriteFile(examplePath, []byte(exampleSpec), 0o644); err != nil {
				return err
			}
		}
		// Validate() doubles as the ticket store's cheapest existence probe;
		// a missing plan.jsonl is not itself an error here, since a fresh
		// repo's first `plan` invocation creates one.
		_ = e.Store.Validate(ctx)
	}

	if isUpdate {
		fmt.Println("\nconstruct updated. Prompt templates backfilled where missing; existing customizations and plan.jsonl were left untouched.")
	} else {
		fmt.Println(`
Next steps:
  1. Write specs in ralph/specs/
  2. Run 'construct plan <spec.md>' to generate tasks
  3. Run 'construct construct' to start building`)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
