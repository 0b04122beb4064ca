// Package orchstate holds the orchestrator's small persisted progress
// record: current stage, current spec filename, in-flight batch items, and
// the decomposition target. It is distinct from the plan (internal/plan),
// which holds the actual task/issue data the stages operate on.
package orchstate

import (
	"encoding/json"

	"github.com/ralph-dev/construct/internal/persist"
	"github.com/ralph-dev/construct/internal/plan"
)

// Stage aliases for readability at call sites; the canonical stage name
// constants live in package plan since plan.DeriveStage also produces them.
const (
	StagePlan        = "PLAN"
	StageInvestigate = plan.StageInvestigate
	StageBuild       = plan.StageBuild
	StageVerify      = plan.StageVerify
	StageDecompose   = plan.StageDecompose
	StageComplete    = plan.StageComplete

	// stageRescueLegacy is no longer written but must still be recognized
	// and migrated to StageInvestigate when read from an old state file.
	stageRescueLegacy = "RESCUE"
)

// State is the orchestration-state file's in-memory representation.
type State struct {
	Stage            string
	Spec             string
	BatchItems       []string
	BatchCompleted   []string
	BatchRetryCount  int
	DecomposeTarget  string

	// DecomposeKillReason/DecomposeKillLog carry the failed BUILD attempt's
	// diagnostic info alongside DecomposeTarget. The ticket store has no
	// verb to persist these onto the task record itself, so they travel
	// through orchestration state instead, scoped to the current
	// decompose target and cleared alongside it.
	DecomposeKillReason string
	DecomposeKillLog    string
}

// New returns a fresh orchestration state with no stage selected yet; the
// caller derives the initial stage from the loaded plan.
func New() *State {
	return &State{}
}

// wireState is the on-disk JSON shape, including legacy fields that must be
// accepted on read but are never emitted by Encode.
type wireState struct {
	Stage           string   `json:"stage"`
	Spec            string   `json:"spec,omitempty"`
	BatchItems      []string `json:"batch_items,omitempty"`
	BatchCompleted  []string `json:"batch_completed,omitempty"`
	BatchRetryCount int      `json:"batch_retry_count,omitempty"`
	DecomposeTarget string   `json:"decompose_target,omitempty"`

	DecomposeKillReason string `json:"decompose_kill_reason,omitempty"`
	DecomposeKillLog    string `json:"decompose_kill_log,omitempty"`

	// Legacy fields: readable for backward compatibility, never written.
	RescueTarget string `json:"rescue_target,omitempty"`
	RescueReason string `json:"rescue_reason,omitempty"`
}

// Load reads the orchestration-state file at path, migrating a legacy
// RESCUE stage to INVESTIGATE. A missing file yields a fresh State.
func Load(path string) (*State, error) {
	data, err := persist.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return New(), nil
	}

	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		// A corrupt state file is treated the same as a missing one: the
		// orchestrator re-derives its stage from the plan on the next
		// iteration rather than refusing to run.
		return New(), nil
	}

	s := &State{
		Stage:               w.Stage,
		Spec:                w.Spec,
		BatchItems:          w.BatchItems,
		BatchCompleted:      w.BatchCompleted,
		BatchRetryCount:     w.BatchRetryCount,
		DecomposeTarget:     w.DecomposeTarget,
		DecomposeKillReason: w.DecomposeKillReason,
		DecomposeKillLog:    w.DecomposeKillLog,
	}
	if s.Stage == stageRescueLegacy {
		s.Stage = StageInvestigate
	}
	return s, nil
}

// Save atomically writes s to path. Legacy rescue_* fields are never
// emitted, per the migrate-on-read/drop-on-write contract.
func Save(s *State, path string) error {
	w := wireState{
		Stage:               s.Stage,
		Spec:                s.Spec,
		BatchItems:          s.BatchItems,
		BatchCompleted:      s.BatchCompleted,
		BatchRetryCount:     s.BatchRetryCount,
		DecomposeTarget:     s.DecomposeTarget,
		DecomposeKillReason: s.DecomposeKillReason,
		DecomposeKillLog:    s.DecomposeKillLog,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return persist.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// ClearBatch resets batch-tracking fields, called between batch attempts
// (e.g. after a halving retry) so a fresh attempt starts from empty.
func (s *State) ClearBatch() {
	s.BatchItems = nil
	s.BatchCompleted = nil
}

// RemainingBatchItems returns the batch items not yet in BatchCompleted.
func (s *State) RemainingBatchItems() []string {
	done := make(map[string]bool, len(s.BatchCompleted))
	for _, id := range s.BatchCompleted {
		done[id] = true
	}
	var remaining []string
	for _, id := range s.BatchItems {
		if !done[id] {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// IsTerminal reports whether stage is COMPLETE.
func (s *State) IsTerminal() bool {
	return s.Stage == StageComplete
}
