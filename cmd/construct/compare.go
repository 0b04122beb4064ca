package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/ralph-dev/construct/internal/ledger"
)

// cmdCompare reads runs.jsonl, filters by spec/profile, and prints a
// comparison table grouped by spec — or raw JSON with --json, for
// scripted A/B comparisons across worktrees/profiles.
func cmdCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	specFilter := fs.String("spec", "", "filter by spec")
	profileFilter := fs.String("profile", "", "filter by profile")
	asJSON := fs.Bool("json", false, "emit JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	runs, err := ledger.LoadRuns(e.LogDir)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("No runs found in %s\n", e.LogDir)
		return nil
	}

	var filtered []ledger.RunRecord
	for _, r := range runs {
		if *specFilter != "" && r.Spec != *specFilter {
			continue
		}
		if *profileFilter != "" && r.Profile != *profileFilter {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) == 0 {
		fmt.Println("No matching runs found.")
		return nil
	}

	if *asJSON {
		body, err := json.MarshalIndent(filtered, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	}

	bySpec := make(map[string][]ledger.RunRecord)
	var order []string
	for _, r := range filtered {
		spec := orDefault(r.Spec, "unknown")
		if _, seen := bySpec[spec]; !seen {
			order = append(order, spec)
		}
		bySpec[spec] = append(bySpec[spec], r)
	}

	fmt.Println("RUN COMPARISON")
	fmt.Printf("Log dir: %s\n", e.LogDir)
	for _, spec := range order {
		fmt.Printf("\nSpec: %s\n", spec)
		fmt.Printf("  %-14s %-20s %4s  %8s  %6s  %4s  %s\n",
			"Profile", "Branch", "Iter", "Cost", "Tokens", "Done", "Exit")
		for _, r := range bySpec[spec] {
			totalTokens := r.Tokens.Input + r.Tokens.Cached + r.Tokens.Output
			fmt.Printf("  %-14s %-20s %4d  $%7.4f  %6s  %4d  %s\n",
				orDefault(r.Profile, "?"), orDefault(r.Branch, "?"), r.Iterations,
				r.Cost, formatTokenCount(totalTokens), r.TasksCompleted, orDefault(r.ExitReason, "?"))
		}
	}
	return nil
}

func formatTokenCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.0fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
