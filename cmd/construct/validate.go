package main

import (
	"context"
	"fmt"
)

// cmdValidate runs the ticket store's internal consistency checks
// (dangling deps, duplicate IDs, orphaned tombstones) and reports the
// outcome. A validation failure is printed and returned, surfacing as a
// nonzero exit; nothing is written to the ledger and nothing else aborts.
func cmdValidate(ctx context.Context, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	if err := e.Store.Validate(ctx); err != nil {
		fmt.Println("validation failed:", err)
		return err
	}
	fmt.Println("plan.jsonl is valid")
	return nil
}
