package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ralph-dev/construct/internal/plan"
)

// compactThresholdDays is how old a done/accepted task must be before
// compact drops it.
const compactThresholdDays = 30

// compactAcceptedTombstoneLimit caps how many accept tombstones are kept,
// oldest first dropped beyond the limit.
const compactAcceptedTombstoneLimit = 100

// cmdCompact rewrites plan.jsonl directly — not through the ticket store
// CLI, which has no compact verb — dropping done tasks and accept
// tombstones older than the threshold. Rejected tombstones and open
// issues are never dropped.
func cmdCompact(ctx context.Context, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	return runCompact(e)
}

// runCompact implements cmdCompact against an already-resolved env, kept
// separate so tests can exercise the compaction rules against a fixture
// plan.jsonl without resolving a real repo/ticket store.
func runCompact(e *env) error {
	p, err := plan.Load(e.PlanPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", e.PlanPath, err)
	}

	threshold := time.Now().AddDate(0, 0, -compactThresholdDays)
	changed := false

	var keptTasks []*plan.Task
	for _, t := range p.Tasks {
		if t.Status != plan.StatusDone || !isTooOld(t.DoneAt, threshold) {
			keptTasks = append(keptTasks, t)
		} else {
			changed = true
		}
	}
	p.Tasks = keptTasks

	var keptAccepted []*plan.Tombstone
	for _, ts := range p.Accepted {
		if !isTooOld(ts.DoneAt, threshold) {
			keptAccepted = append(keptAccepted, ts)
		}
	}
	if len(keptAccepted) > compactAcceptedTombstoneLimit {
		keptAccepted = keptAccepted[len(keptAccepted)-compactAcceptedTombstoneLimit:]
	}
	if len(keptAccepted) < len(p.Accepted) {
		changed = true
	}
	p.Accepted = keptAccepted

	if !changed {
		fmt.Println("No tasks to compact.")
		return nil
	}

	if err := plan.Save(p, e.PlanPath); err != nil {
		return err
	}
	fmt.Printf("Compact completed. Removed tasks and tombstones older than %d days.\n", compactThresholdDays)
	return nil
}

// isTooOld reports whether timestamp (RFC3339) is before threshold. A
// missing or unparsable timestamp is never considered too old — compact
// only ever drops records it can positively date.
func isTooOld(timestamp string, threshold time.Time) bool {
	if timestamp == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return false
	}
	return t.Before(threshold)
}
