package ticketstore

import (
	"context"

	"github.com/ralph-dev/construct/internal/ids"
	"github.com/ralph-dev/construct/internal/plan"
)

// Fake is an in-memory Client implementation used by tests that exercise
// stage runners and the reconciler without spawning a real subprocess.
type Fake struct {
	Tasks  []*plan.Task
	Issues []*plan.Issue

	// ValidateErr, when set, is returned by Validate — lets tests simulate a
	// ticket store that reports internal inconsistency.
	ValidateErr error
}

// NewFake returns an empty Fake ticket store.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) ListPending(_ context.Context) ([]*plan.Task, error) {
	var out []*plan.Task
	for _, t := range f.Tasks {
		if t.Status == plan.StatusPending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *Fake) ListDone(_ context.Context) ([]*plan.Task, error) {
	var out []*plan.Task
	for _, t := range f.Tasks {
		if t.Status == plan.StatusDone {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *Fake) ListIssues(_ context.Context) ([]*plan.Issue, error) {
	return append([]*plan.Issue(nil), f.Issues...), nil
}

func (f *Fake) findTask(id string) *plan.Task {
	for _, t := range f.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (f *Fake) TaskAdd(_ context.Context, t *plan.Task) (string, error) {
	newTask := *t
	if newTask.ID == "" {
		newTask.ID = ids.NewTaskID()
	}
	if newTask.Status == "" {
		newTask.Status = plan.StatusPending
	}
	f.Tasks = append(f.Tasks, &newTask)
	return newTask.ID, nil
}

func (f *Fake) TaskBatchAdd(ctx context.Context, tasks []*plan.Task) ([]string, error) {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		id, err := f.TaskAdd(ctx, t)
		if err != nil {
			return out, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (f *Fake) TaskDone(_ context.Context, taskID string) error {
	if t := f.findTask(taskID); t != nil {
		t.Status = plan.StatusDone
	}
	return nil
}

func (f *Fake) TaskAccept(_ context.Context, taskID string) error {
	if t := f.findTask(taskID); t != nil {
		t.Status = plan.StatusAccepted
	}
	return nil
}

func (f *Fake) TaskReject(_ context.Context, taskID, reason string) error {
	if t := f.findTask(taskID); t != nil {
		t.Status = plan.StatusPending
		t.RejectReason = reason
	}
	return nil
}

func (f *Fake) TaskDelete(_ context.Context, taskID string) error {
	for i, t := range f.Tasks {
		if t.ID == taskID {
			f.Tasks = append(f.Tasks[:i], f.Tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *Fake) TaskPrioritize(_ context.Context, taskID, priority string) error {
	if t := f.findTask(taskID); t != nil {
		t.Priority = priority
	}
	return nil
}

func (f *Fake) IssueAdd(_ context.Context, desc, spec, priority string) (string, error) {
	issue := &plan.Issue{ID: ids.NewIssueID(), Desc: desc, Spec: spec, Priority: priority}
	f.Issues = append(f.Issues, issue)
	return issue.ID, nil
}

func (f *Fake) IssueDone(_ context.Context) error {
	if len(f.Issues) == 0 {
		return nil
	}
	f.Issues = f.Issues[1:]
	return nil
}

func (f *Fake) IssueDoneAll(_ context.Context) (int, error) {
	n := len(f.Issues)
	f.Issues = nil
	return n, nil
}

func (f *Fake) IssueDoneIDs(_ context.Context, ids []string) (int, error) {
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	var kept []*plan.Issue
	count := 0
	for _, iss := range f.Issues {
		if remove[iss.ID] {
			count++
			continue
		}
		kept = append(kept, iss)
	}
	f.Issues = kept
	return count, nil
}

func (f *Fake) Validate(_ context.Context) error {
	return f.ValidateErr
}

var _ Client = (*Fake)(nil)
