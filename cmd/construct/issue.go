package main

import (
	"context"
	"fmt"
	"strings"
)

// cmdIssue implements `issue add|done|done-all|done-ids`.
func cmdIssue(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: construct issue <add|done|done-all|done-ids> ...")
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	action, rest := args[0], args[1:]

	switch action {
	case "add":
		if len(rest) == 0 {
			return fmt.Errorf("usage: construct issue add <description>")
		}
		id, err := e.Store.IssueAdd(ctx, strings.Join(rest, " "), "", "")
		if err != nil {
			return err
		}
		fmt.Println(id)
	case "done":
		return e.Store.IssueDone(ctx)
	case "done-all":
		n, err := e.Store.IssueDoneAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("resolved %d issues\n", n)
	case "done-ids":
		if len(rest) == 0 {
			return fmt.Errorf("usage: construct issue done-ids <id> [id...]")
		}
		n, err := e.Store.IssueDoneIDs(ctx, rest)
		if err != nil {
			return err
		}
		fmt.Printf("resolved %d issues\n", n)
	default:
		return fmt.Errorf("unknown issue action %q", action)
	}
	return nil
}
