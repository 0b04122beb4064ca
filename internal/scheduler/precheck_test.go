package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/ticketstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAcceptancePrecheckAutoAcceptsOnZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("precheck probes run through sh")
	}
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusDone, Accept: "test -n hello"})

	results := RunAcceptancePrecheck(context.Background(), store, store.Tasks, t.TempDir())
	require.Len(t, results, 1)
	assert.True(t, results[0].AutoAccepted)

	done, _ := store.ListDone(context.Background())
	assert.Empty(t, done)
}

func TestRunAcceptancePrecheckLeavesNonZeroExitUntouched(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("precheck probes run through sh")
	}
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusDone, Accept: "test -z nonempty"})

	results := RunAcceptancePrecheck(context.Background(), store, store.Tasks, t.TempDir())
	assert.Empty(t, results)

	done, _ := store.ListDone(context.Background())
	require.Len(t, done, 1, "acceptance pre-check must never reject, only optionally auto-accept")
}

func TestRunAcceptancePrecheckLeavesProseUntouched(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusDone, Accept: "looks good to a human reviewer"})

	results := RunAcceptancePrecheck(context.Background(), store, store.Tasks, t.TempDir())
	assert.Empty(t, results)
}

// TestRunAcceptancePrecheckNeverRejects verifies invariant 7: whatever the
// probe command's exit status, a done task either becomes accepted or is
// left exactly as it was — it is never rejected or deleted by the
// pre-check.
func TestRunAcceptancePrecheckNeverRejects(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("precheck probes run through sh")
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("precheck only ever accepts or leaves a done task untouched", prop.ForAll(
		func(exitCode int) bool {
			store := ticketstore.NewFake()
			store.Tasks = append(store.Tasks, &plan.Task{
				ID:     "t-1",
				Status: plan.StatusDone,
				Accept: fmt.Sprintf("sh -c 'exit %d'", exitCode%256),
			})

			RunAcceptancePrecheck(context.Background(), store, store.Tasks, t.TempDir())

			task := store.Tasks[0]
			if task.Status != plan.StatusDone && task.Status != plan.StatusAccepted {
				return false
			}
			return task.RejectReason == ""
		},
		gen.IntRange(0, 255),
	))

	properties.TestingRun(t)
}

func TestRemainingForAgentFiltersAccepted(t *testing.T) {
	done := []*plan.Task{{ID: "t-1"}, {ID: "t-2"}}
	remaining := RemainingForAgent(done, []PrecheckResult{{TaskID: "t-1", AutoAccepted: true}})
	require.Len(t, remaining, 1)
	assert.Equal(t, "t-2", remaining[0].ID)
}
