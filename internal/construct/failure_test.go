package construct

import (
	"context"
	"testing"

	"github.com/ralph-dev/construct/internal/config"
	"github.com/ralph-dev/construct/internal/orchstate"
	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/stages"
	"github.com/ralph-dev/construct/internal/ticketstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchState(stage string, items ...string) *orchstate.State {
	st := orchstate.New()
	st.Stage = stage
	st.BatchItems = items
	return st
}

// TestHandleBatchFailureShrinksMultiItemBatchWithoutDroppingAnyone verifies
// invariant 8: a batch failure with more than one remaining item halves by
// retrying the whole batch next time rather than discarding any single
// item — ClearBatch resets BatchCompleted/BatchItems so the next pass
// re-selects from the full candidate pool, nothing is rejected yet.
func TestHandleBatchFailureShrinksMultiItemBatchWithoutDroppingAnyone(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks,
		&plan.Task{ID: "t-1", Status: plan.StatusDone},
		&plan.Task{ID: "t-2", Status: plan.StatusDone},
	)
	m := &Machine{Store: store, Config: config.Defaults()}
	st := batchState(orchstate.StageVerify, "t-1", "t-2")

	cont, complete, err := m.handleBatchFailure(context.Background(), st, orchstate.StageVerify)
	require.NoError(t, err)
	assert.True(t, cont)
	assert.False(t, complete)
	assert.Empty(t, st.BatchItems)
	assert.Equal(t, 1, m.batchFailureCount)

	done, _ := store.ListDone(context.Background())
	assert.Len(t, done, 2, "no task is rejected while more than one item remains in the failing batch")
}

func TestHandleBatchFailureRejectsSoleSurvivingVerifyItem(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusDone})
	m := &Machine{Store: store, Config: config.Defaults()}
	st := batchState(orchstate.StageVerify, "t-1")

	cont, complete, err := m.handleBatchFailure(context.Background(), st, orchstate.StageVerify)
	require.NoError(t, err)
	assert.True(t, cont)
	assert.False(t, complete)

	done, _ := store.ListDone(context.Background())
	assert.Empty(t, done, "the single surviving item of a failed VERIFY batch is rejected, not re-queued")
	assert.Equal(t, "t-1", store.Tasks[0].ID)
	assert.Equal(t, "verify batch failed", store.Tasks[0].RejectReason)
}

func TestHandleBatchFailureResolvesSoleSurvivingInvestigateIssue(t *testing.T) {
	store := ticketstore.NewFake()
	store.Issues = append(store.Issues, &plan.Issue{ID: "i-1", Desc: "flaky"})
	m := &Machine{Store: store, Config: config.Defaults()}
	st := batchState(orchstate.StageInvestigate, "i-1")

	_, _, err := m.handleBatchFailure(context.Background(), st, orchstate.StageInvestigate)
	require.NoError(t, err)

	issues, _ := store.ListIssues(context.Background())
	assert.Empty(t, issues, "the single surviving item of a failed INVESTIGATE batch is resolved, not left open forever")
}

func TestHandleBatchFailureStopsAfterMaxFailures(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusDone})
	cfg := config.Defaults()
	cfg.MaxFailures = 0
	m := &Machine{Store: store, Config: cfg}
	st := batchState(orchstate.StageVerify, "t-1")

	cont, complete, err := m.handleBatchFailure(context.Background(), st, orchstate.StageVerify)
	require.NoError(t, err)
	assert.False(t, cont)
	assert.False(t, complete)
}

func TestHandleTaskFailureEscalatesAtMaxDecomposeDepth(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending, DecomposeDepth: 3})
	cfg := config.Defaults()
	cfg.MaxDecomposeDepth = 3
	m := &Machine{Store: store, Config: cfg}
	st := orchstate.New()
	st.Stage = orchstate.StageBuild

	err := m.handleTaskFailure(context.Background(), st, stages.StageResult{TaskID: "t-1", KillReason: "timeout"})
	require.NoError(t, err)

	assert.Equal(t, orchstate.StageBuild, st.Stage)
	issues, _ := store.ListIssues(context.Background())
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Desc, "t-1")
}

func TestHandleTaskFailureQueuesDecomposeBelowMaxDepth(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending, DecomposeDepth: 0})
	cfg := config.Defaults()
	cfg.MaxDecomposeDepth = 3
	m := &Machine{Store: store, Config: cfg}
	st := orchstate.New()
	st.Stage = orchstate.StageBuild

	err := m.handleTaskFailure(context.Background(), st, stages.StageResult{TaskID: "t-1", KillReason: "timeout"})
	require.NoError(t, err)

	assert.Equal(t, orchstate.StageDecompose, st.Stage)
	assert.Equal(t, "t-1", st.DecomposeTarget)
}
