package main

import (
	"context"
	"fmt"

	"github.com/ralph-dev/construct/internal/plan"
)

// cmdTask implements `task add|done|accept|reject|delete|prioritize`,
// mutating the plan exclusively through the ticket store CLI so every
// write goes through its validation and locking. (compact and set-spec
// are the exceptions in this CLI: they rewrite plan.jsonl directly.)
func cmdTask(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: construct task <add|done|accept|reject|delete|prioritize> ...")
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	action, rest := args[0], args[1:]

	switch action {
	case "add":
		if len(rest) == 0 {
			return fmt.Errorf("usage: construct task add <name>")
		}
		id, err := e.Store.TaskAdd(ctx, &plan.Task{Name: rest[0]})
		if err != nil {
			return err
		}
		fmt.Println(id)
	case "done":
		if len(rest) == 0 {
			return fmt.Errorf("usage: construct task done <id>")
		}
		return e.Store.TaskDone(ctx, rest[0])
	case "accept":
		if len(rest) == 0 {
			return fmt.Errorf("usage: construct task accept <id>")
		}
		return e.Store.TaskAccept(ctx, rest[0])
	case "reject":
		if len(rest) == 0 {
			return fmt.Errorf("usage: construct task reject <id> [reason]")
		}
		reason := ""
		if len(rest) > 1 {
			reason = rest[1]
		}
		return e.Store.TaskReject(ctx, rest[0], reason)
	case "delete":
		if len(rest) == 0 {
			return fmt.Errorf("usage: construct task delete <id>")
		}
		return e.Store.TaskDelete(ctx, rest[0])
	case "prioritize":
		if len(rest) < 2 {
			return fmt.Errorf("usage: construct task prioritize <id> <priority>")
		}
		return e.Store.TaskPrioritize(ctx, rest[0], rest[1])
	default:
		return fmt.Errorf("unknown task action %q", action)
	}
	return nil
}
