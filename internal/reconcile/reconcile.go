package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/ticketstore"
)

// Stage names. StagePlan has no counterpart among package plan's stage
// constants — PLAN runs before any task exists, so plan.jsonl never records
// it as a task/issue-derived stage — the rest reuse plan's constants so the
// two packages never drift.
const (
	StagePlan        = "PLAN"
	StageBuild       = plan.StageBuild
	StageVerify      = plan.StageVerify
	StageInvestigate = plan.StageInvestigate
	StageDecompose   = plan.StageDecompose
)

// Result summarizes what one reconcile pass did, feeding the ledger.
type Result struct {
	TasksAdded     int
	TasksAccepted  int
	TasksRejected  int
	TasksDeleted   int
	IssuesAdded    int
	IssuesResolved int
	Errors         []string
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Reconcile extracts the structured output block from rawOutput, validates
// it against stage's schema, and applies its mutations to the ticket
// store. A missing or invalid block is recorded as an error but is not
// fatal — the caller decides how to treat a stage with no actionable
// output.
func Reconcile(ctx context.Context, store ticketstore.Client, stage string, rawOutput string) Result {
	var result Result

	block, ok := ExtractStructuredOutput(rawOutput)
	if !ok {
		result.addError("no structured output block found")
		return result
	}

	var doc any
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		result.addError("structured output is not valid JSON: %v", err)
		return result
	}

	if err := Validate(stage, doc); err != nil {
		result.addError("structured output failed schema validation: %v", err)
		return result
	}

	switch stage {
	case StagePlan:
		applyPlan(ctx, store, block, &result)
	case StageBuild:
		applyBuild(ctx, store, block, &result)
	case StageVerify:
		applyVerify(ctx, store, block, &result)
	case StageInvestigate:
		applyInvestigate(ctx, store, block, &result)
	case StageDecompose:
		applyDecompose(ctx, store, block, &result)
	default:
		result.addError("unknown stage %q", stage)
	}

	return result
}
