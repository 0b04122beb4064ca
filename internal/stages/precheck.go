package stages

import (
	"context"

	"github.com/ralph-dev/construct/internal/plan"
)

// EligibleInvestigate reports whether INVESTIGATE has work: any issues.
func EligibleInvestigate(ctx context.Context, store storeReader) (bool, error) {
	issues, err := store.ListIssues(ctx)
	if err != nil {
		return false, err
	}
	return len(issues) > 0, nil
}

// EligibleBuild reports whether BUILD has a runnable pending task.
func EligibleBuild(ctx context.Context, store storeReader) (bool, error) {
	pending, err := store.ListPending(ctx)
	if err != nil {
		return false, err
	}
	return len(pending) > 0, nil
}

// EligibleVerify reports whether VERIFY has any done tasks awaiting review.
func EligibleVerify(ctx context.Context, store storeReader) (bool, error) {
	done, err := store.ListDone(ctx)
	if err != nil {
		return false, err
	}
	return len(done) > 0, nil
}

// EligibleDecompose reports whether the orchestrator has queued a
// decomposition target.
func EligibleDecompose(decomposeTarget string) bool {
	return decomposeTarget != ""
}

// storeReader is the read-only subset of ticketstore.Client the
// eligibility checks need.
type storeReader interface {
	ListPending(ctx context.Context) ([]*plan.Task, error)
	ListDone(ctx context.Context) ([]*plan.Task, error)
	ListIssues(ctx context.Context) ([]*plan.Issue, error)
}
