package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

const exitUserError = 1
const exitUnknownCommand = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:]))
}

// run dispatches to a subcommand and returns the process exit code: 0 on
// success, 1 on a user/usage error, 2 on an unrecognized command. A
// context cancellation (Ctrl-C) propagates as exit code 130, matching the
// conventional 128+SIGINT.
func run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitUnknownCommand
	}

	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(ctx, rest)
	case "plan":
		err = cmdPlan(ctx, rest)
	case "construct":
		err = cmdConstruct(ctx, rest)
	case "status":
		err = cmdStatus(ctx, rest)
	case "query":
		err = cmdQuery(ctx, rest)
	case "task":
		err = cmdTask(ctx, rest)
	case "issue":
		err = cmdIssue(ctx, rest)
	case "validate":
		err = cmdValidate(ctx, rest)
	case "compact":
		err = cmdCompact(ctx, rest)
	case "log":
		err = cmdLog(ctx, rest)
	case "set-spec":
		err = cmdSetSpec(ctx, rest)
	case "compare":
		err = cmdCompare(ctx, rest)
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "construct: unknown command %q\n", cmd)
		printUsage()
		return exitUnknownCommand
	}

	if err != nil {
		if ctx.Err() != nil {
			return 130
		}
		fmt.Fprintln(os.Stderr, "construct:", err)
		return exitUserError
	}
	return 0
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: construct <command> [arguments]

commands:
  init                          scaffold ralph/ in the current repo
  plan <spec>                   run PLAN against a spec file, seeding plan.jsonl
  construct [N] [spec]          run up to N iterations (default: until budget exhausted)
  status                        print a one-screen progress summary
  query <stage|tasks|issues|iteration|next>
  task <add|done|accept|reject|delete|prioritize> ...
  issue <add|done|done-all|done-ids> ...
  validate                      run the ticket store's consistency checks
  compact                       rewrite plan.jsonl, dropping settled tombstones
  log [--all] [--spec S] [--branch B] [--since X]
  set-spec <file>               switch the active spec file
  compare [--spec S] [--profile P] [--json]
`)
}
