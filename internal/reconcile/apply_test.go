package reconcile

import (
	"context"
	"testing"

	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/ticketstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilePlanCreatesAndDrops(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-old", Status: plan.StatusPending})

	output := `[RALPH_OUTPUT]{"tasks":[{"name":"build thing","accept":"exit 0"}],"drop":["t-old"]}[/RALPH_OUTPUT]`
	result := Reconcile(context.Background(), store, StagePlan, output)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.TasksAdded)
	assert.Equal(t, 1, result.TasksDeleted)
	pending, _ := store.ListPending(context.Background())
	require.Len(t, pending, 1)
	assert.Equal(t, "build thing", pending[0].Name)
}

func TestReconcileBuildDoneMarksCurrentTaskDone(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending})

	ctx := WithCurrentTaskID(context.Background(), "t-1")
	output := `[RALPH_OUTPUT]{"verdict":"done","summary":"ok"}[/RALPH_OUTPUT]`
	result := Reconcile(ctx, store, StageBuild, output)

	assert.Empty(t, result.Errors)
	done, _ := store.ListDone(context.Background())
	require.Len(t, done, 1)
	assert.Equal(t, "t-1", done[0].ID)
}

func TestReconcileBuildBlockedRejectsWithReason(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending})

	ctx := WithCurrentTaskID(context.Background(), "t-1")
	output := `[RALPH_OUTPUT]{"verdict":"blocked","reason":"missing dependency","issues":[{"desc":"need lib X"}]}[/RALPH_OUTPUT]`
	result := Reconcile(ctx, store, StageBuild, output)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.TasksRejected)
	assert.Equal(t, 1, result.IssuesAdded)
	pending, _ := store.ListPending(context.Background())
	require.Len(t, pending, 1)
	assert.Equal(t, "missing dependency", pending[0].RejectReason)
	issues, _ := store.ListIssues(context.Background())
	require.Len(t, issues, 1)
}

func TestReconcileVerifyAcceptsAndRejects(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks,
		&plan.Task{ID: "t-1", Status: plan.StatusDone},
		&plan.Task{ID: "t-2", Status: plan.StatusDone},
	)

	output := `[RALPH_OUTPUT]{"results":[{"task_id":"t-1","passed":true,"evidence":"tests pass"},{"task_id":"t-2","passed":false,"reason":"tests fail"}]}[/RALPH_OUTPUT]`
	result := Reconcile(context.Background(), store, StageVerify, output)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.TasksAccepted)
	assert.Equal(t, 1, result.TasksRejected)
}

func TestReconcileInvestigateCreatesTaskAndResolvesIssue(t *testing.T) {
	store := ticketstore.NewFake()
	store.Issues = append(store.Issues, &plan.Issue{ID: "i-1", Desc: "flaky test", Priority: plan.PriorityLow})

	output := `[RALPH_OUTPUT]{"results":[{"issue_id":"i-1","resolution":"task","task":{"name":"fix flake","accept":"exit 0","priority":"high"}}]}[/RALPH_OUTPUT]`
	result := Reconcile(context.Background(), store, StageInvestigate, output)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.TasksAdded)
	assert.Equal(t, 1, result.IssuesResolved)
	pending, _ := store.ListPending(context.Background())
	require.Len(t, pending, 1)
	assert.Equal(t, "i-1", pending[0].CreatedFrom)
	assert.Equal(t, plan.PriorityLow, pending[0].Priority, "the created task inherits the issue's priority, overriding whatever the agent put in the task payload")
	issues, _ := store.ListIssues(context.Background())
	assert.Empty(t, issues)
}

func TestReconcileDecomposeCreatesChildrenAndDeletesParent(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-parent", Status: plan.StatusPending, DecomposeDepth: 1})

	ctx := WithDecomposeTarget(context.Background(), "t-parent", 1)
	output := `[RALPH_OUTPUT]{"subtasks":[{"name":"part a","accept":"exit 0"},{"name":"part b","accept":"exit 0"}]}[/RALPH_OUTPUT]`
	result := Reconcile(ctx, store, StageDecompose, output)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.TasksAdded)
	assert.Equal(t, 1, result.TasksDeleted)

	pending, _ := store.ListPending(context.Background())
	require.Len(t, pending, 2)
	for _, task := range pending {
		assert.Equal(t, "t-parent", task.Parent)
		assert.Equal(t, 2, task.DecomposeDepth)
	}
}

func TestReconcileMissingStructuredOutputIsNonFatal(t *testing.T) {
	store := ticketstore.NewFake()
	result := Reconcile(context.Background(), store, StageBuild, "the agent said nothing useful")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 0, result.TasksAccepted)
}

func TestReconcileSchemaValidationFailureIsRecorded(t *testing.T) {
	store := ticketstore.NewFake()
	output := `[RALPH_OUTPUT]{"verdict":"not-a-real-verdict"}[/RALPH_OUTPUT]`
	result := Reconcile(context.Background(), store, StageBuild, output)
	require.Len(t, result.Errors, 1)
}
