package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ralph-dev/construct/internal/plan"
)

// cmdQuery reads plan.jsonl directly (not through the ticket store CLI, to
// stay cheap and avoid round-tripping every field through a subprocess for
// a read-only operation) and prints the requested view as JSON.
func cmdQuery(ctx context.Context, args []string) error {
	p, err := loadPlanOrEmpty()
	if err != nil {
		return err
	}

	sub := ""
	if len(args) > 0 {
		sub = args[0]
	}
	return runQuery(p, sub)
}

// runQuery implements the subcommand dispatch against an already-loaded
// plan, kept separate from cmdQuery so tests can exercise it against a
// fixture plan without resolving a real repo.
func runQuery(p *plan.Plan, sub string) error {
	switch sub {
	case "stage":
		fmt.Println(p.DeriveStage())
	case "tasks":
		return printJSON(p.Pending())
	case "issues":
		return printJSON(p.Issues)
	case "iteration":
		fmt.Println(0)
	case "next":
		next := p.NextTask()
		if next == nil {
			fmt.Println("null")
			return nil
		}
		return printJSON(next)
	case "":
		out := map[string]any{
			"spec":  p.Spec,
			"stage": p.DeriveStage(),
			"tasks": map[string]any{
				"pending":  p.Pending(),
				"done":     p.Done(),
				"accepted": p.AcceptedTasks(),
			},
			"issues": p.Issues,
		}
		if next := p.NextTask(); next != nil {
			out["current_task"] = next.ID
		}
		return printJSON(out)
	default:
		return fmt.Errorf("unknown query subcommand %q", sub)
	}
	return nil
}

func loadPlanOrEmpty() (*plan.Plan, error) {
	e, err := newEnv()
	if err != nil {
		return nil, err
	}
	return loadPlan(e)
}

// loadPlan reads plan.jsonl for an already-resolved env, treating a
// missing or unparsable file as an empty plan rather than an error — a
// fresh repo with no plan yet is a valid, empty state to query.
func loadPlan(e *env) (*plan.Plan, error) {
	p, err := plan.Load(e.PlanPath)
	if err != nil {
		return plan.New(), nil
	}
	return p, nil
}

func printJSON(v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}
