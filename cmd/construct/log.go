package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ralph-dev/construct/internal/ledger"
)

// cmdLog shows the ledger's run history, optionally filtered by spec,
// branch, or a --since cutoff (an ISO timestamp lower bound, compared as a
// string against started_at — the ledger has no richer query surface).
func cmdLog(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	all := fs.Bool("all", false, "show all history, not just the most recent runs")
	specFilter := fs.String("spec", "", "filter by spec")
	branchFilter := fs.String("branch", "", "filter by branch")
	since := fs.String("since", "", "filter runs started at or after this ISO timestamp")
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

	var filtered []ledger.RunRecord
	for _, r := range runs {
		if *specFilter != "" && r.Spec != *specFilter {
			continue
		}
		if *branchFilter != "" && r.Branch != *branchFilter {
			continue
		}
		if *since != "" && r.StartedAt < *since {
			continue
		}
		filtered = append(filtered, r)
	}

	if !*all && len(filtered) > 20 {
		filtered = filtered[len(filtered)-20:]
	}

	if len(filtered) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	for _, r := range filtered {
		fmt.Printf("%s  spec=%s branch=%s profile=%s iterations=%d cost=$%.4f exit=%s\n",
			r.RunID, orDefault(r.Spec, "-"), orDefault(r.Branch, "-"), orDefault(r.Profile, "-"),
			r.Iterations, r.Cost, orDefault(r.ExitReason, "-"))
	}
	return nil
}
