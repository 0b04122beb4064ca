// Package plan defines the construct orchestrator's persisted plan model:
// tasks, issues, tombstones, and plan-scoped configuration, together with
// the line-delimited JSONL codec that reads and writes them as a single
// plan.jsonl file.
package plan

import "strings"

// Task statuses, matching the single-character codes used on disk.
const (
	StatusPending  = "p"
	StatusDone     = "d"
	StatusAccepted = "a"
)

// Priority values recognized on Task.Priority and Issue.Priority.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task is one unit of work in the plan.
type Task struct {
	ID             string
	Name           string
	Spec           string
	Notes          string
	Accept         string
	Deps           []string
	Status         string
	DoneAt         string
	NeedsDecompose bool
	KillReason     string
	KillLog        string
	Priority       string
	RejectReason   string
	Parent         string
	CreatedFrom    string
	Supersedes     string
	DecomposeDepth int
	TimeoutMs      int
}

// Issue is a problem discovered during a stage that must be resolved before
// BUILD/VERIFY work can resume.
type Issue struct {
	ID       string
	Desc     string
	Spec     string
	Priority string
}

// Tombstone-type discriminants, used as the "t" field on disk.
const (
	TombstoneAccept = "accept"
	TombstoneReject = "reject"
)

// Tombstone records the permanent disposition of a task that left the
// active task list, either accepted or rejected.
type Tombstone struct {
	Type         string // TombstoneAccept or TombstoneReject
	ID           string
	DoneAt       string
	Reason       string
	Name         string
	Timestamp    string
	ChangedFiles []string
	LogFile      string
	Iteration    int
	HasIteration bool
	Notes        string
}

// Config holds the plan-scoped settings stored in the plan.jsonl "config"
// record, distinct from the process-wide config.GlobalConfig.
type Config struct {
	TimeoutMs      int
	MaxIterations  int
	ContextWarn    float64
	ContextCompact float64
	ContextKill    float64
}

// DefaultConfig mirrors the original CLI's built-in plan defaults.
func DefaultConfig() Config {
	return Config{
		TimeoutMs:      900000,
		MaxIterations:  10,
		ContextWarn:    0.70,
		ContextCompact: 0.85,
		ContextKill:    0.95,
	}
}

// Plan is the complete in-memory state loaded from (and saved to) one
// plan.jsonl file.
type Plan struct {
	Config    Config
	Spec      string
	Tasks     []*Task
	Issues    []*Issue
	Accepted  []*Tombstone // tombstones recording accepted tasks
	Rejected  []*Tombstone // tombstones recording rejected tasks
}

// New returns an empty Plan with default config, as produced when no
// plan.jsonl file exists yet.
func New() *Plan {
	return &Plan{Config: DefaultConfig()}
}

// Pending returns tasks with status StatusPending.
func (p *Plan) Pending() []*Task { return p.byStatus(StatusPending) }

// Done returns tasks with status StatusDone (awaiting verification).
func (p *Plan) Done() []*Task { return p.byStatus(StatusDone) }

// AcceptedTasks returns tasks with status StatusAccepted.
func (p *Plan) AcceptedTasks() []*Task { return p.byStatus(StatusAccepted) }

func (p *Plan) byStatus(status string) []*Task {
	var out []*Task
	for _, t := range p.Tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// DoneIDs returns the set of task IDs currently in StatusDone.
func (p *Plan) DoneIDs() map[string]bool {
	return idSet(p.Done())
}

// AcceptedIDs returns the set of task IDs that are accepted, whether still
// present as a Task record or only surviving as an accept Tombstone.
func (p *Plan) AcceptedIDs() map[string]bool {
	ids := idSet(p.AcceptedTasks())
	for _, ts := range p.Accepted {
		ids[ts.ID] = true
	}
	return ids
}

// CompletedIDs returns the union of DoneIDs and AcceptedIDs, the set
// dependency satisfaction checks against.
func (p *Plan) CompletedIDs() map[string]bool {
	ids := p.DoneIDs()
	for id := range p.AcceptedIDs() {
		ids[id] = true
	}
	return ids
}

func idSet(tasks []*Task) map[string]bool {
	m := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		m[t.ID] = true
	}
	return m
}

// TaskByID returns the task with the given ID, or nil if none matches.
func (p *Plan) TaskByID(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// AddTask appends a task to the plan.
func (p *Plan) AddTask(t *Task) { p.Tasks = append(p.Tasks, t) }

// AddIssue appends an issue to the plan.
func (p *Plan) AddIssue(i *Issue) { p.Issues = append(p.Issues, i) }

// AddTombstone files a tombstone under Accepted or Rejected by its Type.
func (p *Plan) AddTombstone(ts *Tombstone) {
	if ts.Type == TombstoneAccept {
		p.Accepted = append(p.Accepted, ts)
	} else {
		p.Rejected = append(p.Rejected, ts)
	}
}

// depsSatisfied reports whether every dependency of t is in the completed
// set.
func (p *Plan) depsSatisfied(t *Task, completed map[string]bool) bool {
	for _, dep := range t.Deps {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// priorityRank orders High before Medium/unset before Low, matching the
// scheduler's priority_order table.
func priorityRank(priority string) int {
	switch priority {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// SortedPending returns pending tasks ordered by priority rank, then ID, the
// same tie-break the original scheduler used to keep selection deterministic.
func (p *Plan) SortedPending() []*Task {
	pending := append([]*Task(nil), p.Pending()...)
	sortTasks(pending)
	return pending
}

func sortTasks(tasks []*Task) {
	// Insertion sort: plans are small (tens to low hundreds of tasks), and
	// stability matters more than asymptotic complexity here.
	for i := 1; i < len(tasks); i++ {
		j := i
		for j > 0 && lessTask(tasks[j], tasks[j-1]) {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
			j--
		}
	}
}

func lessTask(a, b *Task) bool {
	ra, rb := priorityRank(a.Priority), priorityRank(b.Priority)
	if ra != rb {
		return ra < rb
	}
	return strings.Compare(a.ID, b.ID) < 0
}

// NextTask returns the first ready task (deps satisfied) in priority order,
// or nil if none are ready.
func (p *Plan) NextTask() *Task {
	completed := p.CompletedIDs()
	for _, t := range p.SortedPending() {
		if p.depsSatisfied(t, completed) {
			return t
		}
	}
	return nil
}

// Stage names, matching the orchestrator state machine's stage constants.
const (
	StageInvestigate = "INVESTIGATE"
	StageBuild       = "BUILD"
	StageVerify      = "VERIFY"
	StageDecompose   = "DECOMPOSE"
	StageComplete    = "COMPLETE"
)

// DeriveStage determines which stage the orchestrator should run next given
// the plan's current contents: open issues take priority over everything
// else, then an empty pending queue means VERIFY when done tasks await
// review and COMPLETE otherwise; with pending tasks, the next ready task's
// flags pick DECOMPOSE or BUILD.
func (p *Plan) DeriveStage() string {
	if len(p.Issues) > 0 {
		return StageInvestigate
	}
	if len(p.Pending()) == 0 {
		if len(p.Done()) > 0 {
			return StageVerify
		}
		return StageComplete
	}
	next := p.NextTask()
	if next == nil {
		return StageBuild
	}
	if next.Status == StatusDone {
		return StageVerify
	}
	if next.NeedsDecompose {
		return StageDecompose
	}
	return StageBuild
}
