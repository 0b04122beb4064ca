package construct

import (
	"context"
	"fmt"

	"github.com/ralph-dev/construct/internal/orchstate"
	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/stages"
)

// effectiveBatchSize returns max(1, nominal/2^batchFailureCount).
func effectiveBatchSize(nominal, batchFailureCount int) int {
	size := nominal
	for i := 0; i < batchFailureCount; i++ {
		size /= 2
	}
	if size < 1 {
		size = 1
	}
	return size
}

// handleTaskFailure implements the BUILD failure path: escalate to an
// issue at the configured max decompose depth, otherwise queue a
// decomposition attempt.
func (m *Machine) handleTaskFailure(ctx context.Context, st *orchstate.State, res stages.StageResult) error {
	task, err := m.findTask(ctx, res.TaskID)
	if err != nil {
		return err
	}
	if task == nil {
		// Task vanished from the ticket store between dispatch and failure
		// handling; nothing left to escalate or decompose.
		return nil
	}

	if task.DecomposeDepth >= m.Config.MaxDecomposeDepth {
		desc := fmt.Sprintf("escalation: task %s exceeded max decompose depth (%s): %s", task.ID, res.KillReason, summaryOrReason(res))
		if _, err := m.Store.IssueAdd(ctx, desc, "", ""); err != nil {
			return err
		}
		if err := m.Store.TaskReject(ctx, task.ID, "exceeded max decompose depth"); err != nil {
			return err
		}
		st.Stage = orchstate.StageBuild
		return nil
	}

	st.DecomposeTarget = task.ID
	st.DecomposeKillReason = res.KillReason
	st.DecomposeKillLog = res.RawOutput
	st.Stage = orchstate.StageDecompose
	return nil
}

func summaryOrReason(res stages.StageResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return res.KillReason
}

// handleBatchFailure implements the INVESTIGATE/VERIFY failure path.
// Returns (continue, complete).
func (m *Machine) handleBatchFailure(ctx context.Context, st *orchstate.State, stageName string) (bool, bool, error) {
	m.batchFailureCount++

	batch := st.RemainingBatchItems()
	if len(batch) > 1 {
		st.ClearBatch()
		return true, false, nil
	}

	if len(batch) == 1 {
		id := batch[0]
		var err error
		switch stageName {
		case orchstate.StageInvestigate:
			_, err = m.Store.IssueDoneIDs(ctx, []string{id})
		case orchstate.StageVerify:
			err = m.Store.TaskReject(ctx, id, "verify batch failed")
		}
		if err != nil {
			return false, false, err
		}
		st.ClearBatch()
	}

	if m.batchFailureCount > m.Config.MaxFailures {
		return false, false, nil
	}
	return true, false, nil
}

func (m *Machine) findTask(ctx context.Context, taskID string) (*plan.Task, error) {
	if taskID == "" {
		return nil, nil
	}
	pending, err := m.Store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range pending {
		if t.ID == taskID {
			return t, nil
		}
	}
	done, err := m.Store.ListDone(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range done {
		if t.ID == taskID {
			return t, nil
		}
	}
	return nil, nil
}
