// Package construct implements the central orchestrator state machine:
// the per-iteration dispatch over INVESTIGATE/BUILD/VERIFY/DECOMPOSE,
// batching with halve-on-failure recovery, loop detection, and global
// budget enforcement.
package construct

import (
	"context"
	"time"

	"github.com/ralph-dev/construct/internal/budget"
	"github.com/ralph-dev/construct/internal/config"
	"github.com/ralph-dev/construct/internal/orchstate"
	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/scheduler"
	"github.com/ralph-dev/construct/internal/stages"
	"github.com/ralph-dev/construct/internal/ticketstore"
)

// Machine is the stateful orchestrator driving one spec to completion.
type Machine struct {
	Store     ticketstore.Client
	Deps      stages.Deps
	Config    config.GlobalConfig
	Budget    *budget.Tracker
	StatePath string

	loopDet           *loopDetector
	batchFailureCount int
	lastProgress      time.Time

	// retryCounts is per-task retry attempts tracked across iterations
	// within this Machine's process run. It lives on the Machine rather
	// than orchstate.State because State is reloaded from disk at the top
	// of every Step — a field there can never accumulate across calls. A
	// restarted process starts every task's retry count at zero, matching
	// the original's "ephemeral, not durable across restarts" design for
	// this counter.
	retryCounts map[string]int
}

// New constructs a Machine ready to run iterations against store.
func New(cfg config.GlobalConfig, deps stages.Deps, store ticketstore.Client, statePath string, bt *budget.Tracker) *Machine {
	return &Machine{
		Store:       store,
		Deps:        deps,
		Config:      cfg,
		Budget:      bt,
		StatePath:   statePath,
		loopDet:     newLoopDetector(3),
		retryCounts: make(map[string]int),
	}
}

// Result is what one iteration reports back to the driving loop.
type Result struct {
	Continue    bool
	Complete    bool
	ExitReason  budget.ExitReason
	StageResult *stages.StageResult
}

// Step runs exactly one orchestrator iteration: load, terminal and spec
// checks, global-budget check, dispatch, loop detection, progress
// recording, persist. Step emits no stall warning; StallSeconds reports
// the time since the last progress.
func (m *Machine) Step(ctx context.Context) (Result, error) {
	st, err := orchstate.Load(m.StatePath)
	if err != nil {
		return Result{}, err
	}

	if st.IsTerminal() {
		return Result{Continue: false, Complete: true}, nil
	}
	if st.Spec == "" {
		return Result{Continue: false, Complete: false}, nil
	}

	if reason := m.Budget.Check(); reason != budget.ExitReasonNone {
		return Result{Continue: false, Complete: false, ExitReason: reason}, nil
	}

	res, err := m.dispatch(ctx, st)
	if err != nil {
		return Result{}, err
	}

	if res.StageResult != nil && res.StageResult.Outcome == stages.OutcomeSuccess {
		fp, ferr := fingerprint(ctx, m.Store, st.Stage)
		if ferr == nil && m.loopDet.Observe(fp) {
			res.StageResult.Outcome = stages.OutcomeFailure
			res.StageResult.KillReason = "loop_detected"
			m.Budget.RecordOutcome(false)
		} else {
			m.lastProgress = time.Now()
			m.Budget.RecordOutcome(true)
		}
	} else if res.StageResult != nil && res.StageResult.Outcome == stages.OutcomeFailure {
		m.Budget.RecordOutcome(false)
	}

	if res.StageResult != nil {
		m.Budget.RecordIteration()
		m.Budget.RecordCost(res.StageResult.Cost)
		m.Budget.RecordTokens(res.StageResult.Tokens)
	}

	if err := orchstate.Save(st, m.StatePath); err != nil {
		return Result{}, err
	}

	return res, nil
}

// StallSeconds reports how long it has been since the last recorded
// progress (a successful, non-looping stage outcome). Informational
// only — exceeding a configured threshold never aborts a run by itself;
// the global budget is what actually enforces a ceiling on stalls.
func (m *Machine) StallSeconds() float64 {
	if m.lastProgress.IsZero() {
		return 0
	}
	return time.Since(m.lastProgress).Seconds()
}

func (m *Machine) dispatch(ctx context.Context, st *orchstate.State) (Result, error) {
	switch st.Stage {
	case orchstate.StageDecompose:
		return m.dispatchDecompose(ctx, st)
	case orchstate.StageInvestigate:
		return m.dispatchInvestigate(ctx, st)
	case orchstate.StageBuild:
		return m.dispatchBuild(ctx, st)
	case orchstate.StageVerify:
		return m.dispatchVerify(ctx, st)
	default:
		return m.dispatchPlanOrUnknown(ctx, st)
	}
}

func (m *Machine) dispatchPlanOrUnknown(ctx context.Context, st *orchstate.State) (Result, error) {
	pending, err := m.Store.ListPending(ctx)
	if err != nil {
		return Result{}, err
	}
	done, err := m.Store.ListDone(ctx)
	if err != nil {
		return Result{}, err
	}
	issues, err := m.Store.ListIssues(ctx)
	if err != nil {
		return Result{}, err
	}

	switch {
	case len(issues) > 0:
		st.Stage = orchstate.StageInvestigate
	case len(pending) > 0:
		st.Stage = orchstate.StageBuild
	case len(done) > 0:
		st.Stage = orchstate.StageVerify
	default:
		st.Stage = orchstate.StageComplete
	}
	return Result{Continue: true, Complete: false}, nil
}

func (m *Machine) dispatchDecompose(ctx context.Context, st *orchstate.State) (Result, error) {
	target, err := m.findTask(ctx, st.DecomposeTarget)
	if err != nil {
		return Result{}, err
	}

	depth := 0
	if target != nil {
		depth = target.DecomposeDepth
	}
	res := stages.RunDecompose(ctx, m.Deps, st.Spec, target, depth, st.DecomposeKillReason, st.DecomposeKillLog)

	// Regardless of outcome, transition to INVESTIGATE and clear the
	// decompose target, per the DECOMPOSE dispatch rule.
	st.Stage = orchstate.StageInvestigate
	st.DecomposeTarget = ""
	st.DecomposeKillReason = ""
	st.DecomposeKillLog = ""

	return Result{Continue: true, Complete: false, StageResult: &res}, nil
}

func (m *Machine) dispatchBuild(ctx context.Context, st *orchstate.State) (Result, error) {
	pending, err := m.Store.ListPending(ctx)
	if err != nil {
		return Result{}, err
	}

	escalated, err := scheduler.EscalateStuckTasks(ctx, m.Store, pending, m.retryCounts, m.Config.MaxRetriesPerTask)
	if err != nil {
		return Result{}, err
	}
	if len(escalated) > 0 {
		pending, err = m.Store.ListPending(ctx)
		if err != nil {
			return Result{}, err
		}
	}

	res := stages.RunBuild(ctx, m.Deps, st.Spec, pending, m.retryCounts, "", "")
	if res.Outcome == stages.OutcomeSkip {
		st.Stage = orchstate.StageVerify
		return Result{Continue: true, Complete: false, StageResult: &res}, nil
	}

	if res.Outcome == stages.OutcomeFailure {
		if res.TaskID != "" {
			m.retryCounts[res.TaskID]++
		}
		if err := m.handleTaskFailure(ctx, st, res); err != nil {
			return Result{}, err
		}
		return Result{Continue: true, Complete: false, StageResult: &res}, nil
	}

	delete(m.retryCounts, res.TaskID)
	st.Stage = orchstate.StageVerify
	return Result{Continue: true, Complete: false, StageResult: &res}, nil
}

func (m *Machine) dispatchInvestigate(ctx context.Context, st *orchstate.State) (Result, error) {
	if _, err := scheduler.DeduplicateIssues(ctx, m.Store, m.Config.IssueSimilarityThreshold); err != nil {
		return Result{}, err
	}

	issues, err := m.Store.ListIssues(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(issues) == 0 {
		st.Stage = orchstate.StageBuild
		m.batchFailureCount = 0
		return Result{Continue: true, Complete: false}, nil
	}

	if len(st.RemainingBatchItems()) == 0 {
		size := effectiveBatchSize(m.Config.InvestigateBatchSize, m.batchFailureCount)
		var ids []string
		for i, iss := range issues {
			if i >= size {
				break
			}
			ids = append(ids, iss.ID)
		}
		st.BatchItems = ids
		st.BatchCompleted = nil
		if err := orchstate.Save(st, m.StatePath); err != nil {
			return Result{}, err
		}
	}

	batch := st.RemainingBatchItems()
	res := stages.RunInvestigate(ctx, m.Deps, st.Spec, batch)

	if res.Outcome == stages.OutcomeFailure {
		cont, complete, err := m.handleBatchFailure(ctx, st, orchstate.StageInvestigate)
		if err != nil {
			return Result{}, err
		}
		return Result{Continue: cont, Complete: complete, StageResult: &res}, nil
	}

	st.BatchCompleted = append(st.BatchCompleted, batch...)
	if len(st.RemainingBatchItems()) == 0 {
		st.ClearBatch()
		m.batchFailureCount = 0
	}
	return Result{Continue: true, Complete: false, StageResult: &res}, nil
}

func (m *Machine) dispatchVerify(ctx context.Context, st *orchstate.State) (Result, error) {
	scheduler.RunAcceptancePrecheck(ctx, m.Store, mustListDone(ctx, m.Store), m.Deps.WorkDir)

	done, err := m.Store.ListDone(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(done) == 0 {
		return m.verifyBatchEmpty(ctx, st)
	}

	if len(st.RemainingBatchItems()) == 0 {
		size := effectiveBatchSize(m.Config.VerifyBatchSize, m.batchFailureCount)
		var ids []string
		for i, t := range done {
			if i >= size {
				break
			}
			ids = append(ids, t.ID)
		}
		st.BatchItems = ids
		st.BatchCompleted = nil
		if err := orchstate.Save(st, m.StatePath); err != nil {
			return Result{}, err
		}
	}

	batch := st.RemainingBatchItems()
	if len(batch) == 0 {
		return m.verifyBatchEmpty(ctx, st)
	}

	res := stages.RunVerify(ctx, m.Deps, st.Spec, batch)

	if res.Outcome == stages.OutcomeFailure {
		cont, complete, err := m.handleBatchFailure(ctx, st, orchstate.StageVerify)
		if err != nil {
			return Result{}, err
		}
		return Result{Continue: cont, Complete: complete, StageResult: &res}, nil
	}

	st.BatchCompleted = append(st.BatchCompleted, batch...)
	if len(st.RemainingBatchItems()) == 0 {
		st.ClearBatch()
		m.batchFailureCount = 0
	}
	return Result{Continue: true, Complete: false, StageResult: &res}, nil
}

// verifyBatchEmpty implements the "VERIFY batch empty" branch: move on to
// COMPLETE if nothing is left anywhere, otherwise cycle back through
// INVESTIGATE for another pass.
func (m *Machine) verifyBatchEmpty(ctx context.Context, st *orchstate.State) (Result, error) {
	pending, err := m.Store.ListPending(ctx)
	if err != nil {
		return Result{}, err
	}
	issues, err := m.Store.ListIssues(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(pending) == 0 && len(issues) == 0 {
		st.Stage = orchstate.StageComplete
		return Result{Continue: false, Complete: true}, nil
	}
	st.Stage = orchstate.StageInvestigate
	return Result{Continue: true, Complete: false}, nil
}

func mustListDone(ctx context.Context, store ticketstore.Client) []*plan.Task {
	done, err := store.ListDone(ctx)
	if err != nil {
		return nil
	}
	return done
}
