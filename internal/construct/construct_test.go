package construct

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ralph-dev/construct/internal/budget"
	"github.com/ralph-dev/construct/internal/config"
	"github.com/ralph-dev/construct/internal/executor"
	"github.com/ralph-dev/construct/internal/orchstate"
	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/stages"
	"github.com/ralph-dev/construct/internal/ticketstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubExec(output string, exitCode int) stages.ExecutorFunc {
	return func(ctx context.Context, opts executor.Options) (executor.Result, error) {
		return executor.Result{ExitCode: exitCode, Output: output}, nil
	}
}

func newMachine(t *testing.T, store ticketstore.Client, exec stages.ExecutorFunc) (*Machine, string) {
	t.Helper()
	statePath := filepath.Join(t.TempDir(), "state.json")
	deps := stages.Deps{
		Executor:    exec,
		Store:       store,
		Config:      plan.DefaultConfig(),
		WorkDir:     t.TempDir(),
		TemplateDir: t.TempDir(),
	}
	cfg := config.Defaults()
	m := New(cfg, deps, store, statePath, budget.New(budget.Limits{MaxIterations: 1000}, 0))
	return m, statePath
}

func seedState(t *testing.T, statePath, stage, spec string) {
	t.Helper()
	st := orchstate.New()
	st.Stage = stage
	st.Spec = spec
	require.NoError(t, orchstate.Save(st, statePath))
}

func TestStepTerminalWhenComplete(t *testing.T) {
	store := ticketstore.NewFake()
	m, statePath := newMachine(t, store, stubExec("", 0))
	seedState(t, statePath, orchstate.StageComplete, "spec.md")

	res, err := m.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Continue)
	assert.True(t, res.Complete)
}

func TestStepNoSpecReturnsFalseFalse(t *testing.T) {
	store := ticketstore.NewFake()
	m, statePath := newMachine(t, store, stubExec("", 0))
	seedState(t, statePath, "", "")

	res, err := m.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Continue)
	assert.False(t, res.Complete)
}

func TestStepUnknownStageDerivesFromStoreAndPersists(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending})
	m, statePath := newMachine(t, store, stubExec("", 0))
	seedState(t, statePath, "", "spec.md")

	res, err := m.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Continue)

	st, err := orchstate.Load(statePath)
	require.NoError(t, err)
	assert.Equal(t, orchstate.StageBuild, st.Stage)
}

func TestStepBuildSuccessTransitionsToVerify(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending, Name: "x"})
	output := `[RALPH_OUTPUT]{"verdict":"done"}[/RALPH_OUTPUT]`
	m, statePath := newMachine(t, store, stubExec(output, 0))
	seedState(t, statePath, orchstate.StageBuild, "spec.md")

	res, err := m.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Continue)
	require.NotNil(t, res.StageResult)
	assert.Equal(t, stages.OutcomeSuccess, res.StageResult.Outcome)

	st, err := orchstate.Load(statePath)
	require.NoError(t, err)
	assert.Equal(t, orchstate.StageVerify, st.Stage)
}

func TestStepBuildFailureQueuesDecompose(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending, Name: "x"})
	m, statePath := newMachine(t, store, stubExec("garbage, no structured block", 0))
	seedState(t, statePath, orchstate.StageBuild, "spec.md")

	res, err := m.Step(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.StageResult)
	assert.Equal(t, stages.OutcomeFailure, res.StageResult.Outcome)

	st, err := orchstate.Load(statePath)
	require.NoError(t, err)
	assert.Equal(t, orchstate.StageDecompose, st.Stage)
	assert.Equal(t, "t-1", st.DecomposeTarget)
}

func TestStepBuildFailureAtMaxDepthEscalatesInsteadOfDecomposing(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending, DecomposeDepth: 3})
	m, statePath := newMachine(t, store, stubExec("garbage", 0))
	m.Config.MaxDecomposeDepth = 3
	seedState(t, statePath, orchstate.StageBuild, "spec.md")

	_, err := m.Step(context.Background())
	require.NoError(t, err)

	st, err := orchstate.Load(statePath)
	require.NoError(t, err)
	assert.Equal(t, orchstate.StageBuild, st.Stage)

	issues, _ := store.ListIssues(context.Background())
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Desc, "t-1")
}

func TestStepDecomposeAlwaysTransitionsToInvestigate(t *testing.T) {
	store := ticketstore.NewFake()
	parent := &plan.Task{ID: "t-1", Status: plan.StatusPending}
	store.Tasks = append(store.Tasks, parent)
	m, statePath := newMachine(t, store, stubExec("not parseable", 0))
	st := orchstate.New()
	st.Stage = orchstate.StageDecompose
	st.Spec = "spec.md"
	st.DecomposeTarget = "t-1"
	require.NoError(t, orchstate.Save(st, statePath))

	_, err := m.Step(context.Background())
	require.NoError(t, err)

	reloaded, err := orchstate.Load(statePath)
	require.NoError(t, err)
	assert.Equal(t, orchstate.StageInvestigate, reloaded.Stage)
	assert.Empty(t, reloaded.DecomposeTarget)
}

func TestStepVerifyEmptyWithNoWorkTransitionsToComplete(t *testing.T) {
	store := ticketstore.NewFake()
	m, statePath := newMachine(t, store, stubExec("", 0))
	seedState(t, statePath, orchstate.StageVerify, "spec.md")

	res, err := m.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.False(t, res.Continue, "a COMPLETE transition must stop the outer loop on this same Step, not cost one more wasted iteration")

	st, err := orchstate.Load(statePath)
	require.NoError(t, err)
	assert.Equal(t, orchstate.StageComplete, st.Stage)
}

func TestStepVerifyEmptyWithPendingWorkCyclesToInvestigate(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending})
	m, statePath := newMachine(t, store, stubExec("", 0))
	seedState(t, statePath, orchstate.StageVerify, "spec.md")

	_, err := m.Step(context.Background())
	require.NoError(t, err)

	st, err := orchstate.Load(statePath)
	require.NoError(t, err)
	assert.Equal(t, orchstate.StageInvestigate, st.Stage)
}

func TestStepGlobalBudgetAbortsRun(t *testing.T) {
	store := ticketstore.NewFake()
	store.Tasks = append(store.Tasks, &plan.Task{ID: "t-1", Status: plan.StatusPending})
	m, statePath := newMachine(t, store, stubExec("", 0))
	m.Budget = budget.New(budget.Limits{MaxIterations: 1}, 0)
	m.Budget.RecordIteration()
	seedState(t, statePath, orchstate.StageBuild, "spec.md")

	res, err := m.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Continue)
	assert.Equal(t, budget.ExitReasonMaxIterations, res.ExitReason)
}

func TestEffectiveBatchSizeHalvesWithFloor(t *testing.T) {
	assert.Equal(t, 8, effectiveBatchSize(8, 0))
	assert.Equal(t, 4, effectiveBatchSize(8, 1))
	assert.Equal(t, 2, effectiveBatchSize(8, 2))
	assert.Equal(t, 1, effectiveBatchSize(8, 3))
	assert.Equal(t, 1, effectiveBatchSize(8, 10))
}
