package reconcile

import (
	"context"
	"encoding/json"

	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/ticketstore"
)

type taskSpec struct {
	Name     string   `json:"name"`
	Notes    string   `json:"notes"`
	Accept   string   `json:"accept"`
	Deps     []string `json:"deps"`
	Priority string   `json:"priority"`
}

func (s taskSpec) toTask() *plan.Task {
	return &plan.Task{Name: s.Name, Notes: s.Notes, Accept: s.Accept, Deps: s.Deps, Priority: s.Priority}
}

// applyPlan handles the PLAN schema: create each listed task, delete each
// dropped ID.
func applyPlan(ctx context.Context, store ticketstore.Client, block string, result *Result) {
	var doc struct {
		Tasks []taskSpec `json:"tasks"`
		Drop  []string   `json:"drop"`
	}
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		result.addError("PLAN: decoding output: %v", err)
		return
	}

	for _, ts := range doc.Tasks {
		if _, err := store.TaskAdd(ctx, ts.toTask()); err != nil {
			result.addError("PLAN: adding task %q: %v", ts.Name, err)
			continue
		}
		result.TasksAdded++
	}
	for _, id := range doc.Drop {
		if err := store.TaskDelete(ctx, id); err != nil {
			result.addError("PLAN: dropping task %s: %v", id, err)
			continue
		}
		result.TasksDeleted++
	}
}

// applyBuild handles the BUILD schema: a "done" verdict marks the current
// task done, "blocked" rejects it with the given reason; reported issues
// are always added regardless of verdict.
func applyBuild(ctx context.Context, store ticketstore.Client, block string, result *Result) {
	var doc struct {
		Verdict string `json:"verdict"`
		Summary string `json:"summary"`
		Reason  string `json:"reason"`
		Issues  []struct {
			Desc string `json:"desc"`
		} `json:"issues"`
	}
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		result.addError("BUILD: decoding output: %v", err)
		return
	}

	applyBuildVerdict(ctx, store, doc.Verdict, doc.Reason, result)

	for _, iss := range doc.Issues {
		if _, err := store.IssueAdd(ctx, iss.Desc, "", ""); err != nil {
			result.addError("BUILD: adding issue: %v", err)
			continue
		}
		result.IssuesAdded++
	}
}

// applyBuildVerdict resolves the single active task per the BUILD verdict.
// The stage runner is responsible for identifying which task is "current"
// (the one it dispatched to the agent); that task ID is threaded through
// via context by the stage runner using WithCurrentTaskID.
func applyBuildVerdict(ctx context.Context, store ticketstore.Client, verdict, reason string, result *Result) {
	taskID, ok := currentTaskID(ctx)
	if !ok {
		result.addError("BUILD: no current task ID in context, cannot apply verdict %q", verdict)
		return
	}
	switch verdict {
	case "done":
		if err := store.TaskDone(ctx, taskID); err != nil {
			result.addError("BUILD: marking %s done: %v", taskID, err)
			return
		}
		result.TasksAccepted++ // pre-VERIFY completion counts toward progress
	case "blocked":
		if err := store.TaskReject(ctx, taskID, reason); err != nil {
			result.addError("BUILD: rejecting %s: %v", taskID, err)
			return
		}
		result.TasksRejected++
	}
}

// applyVerify handles the VERIFY schema: accept passed tasks, reject failed
// ones with their evidence/reason.
func applyVerify(ctx context.Context, store ticketstore.Client, block string, result *Result) {
	var doc struct {
		Results []struct {
			TaskID   string `json:"task_id"`
			Passed   bool   `json:"passed"`
			Evidence string `json:"evidence"`
			Reason   string `json:"reason"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		result.addError("VERIFY: decoding output: %v", err)
		return
	}

	for _, r := range doc.Results {
		if r.Passed {
			if err := store.TaskAccept(ctx, r.TaskID); err != nil {
				result.addError("VERIFY: accepting %s: %v", r.TaskID, err)
				continue
			}
			result.TasksAccepted++
			continue
		}
		reason := r.Reason
		if reason == "" {
			reason = r.Evidence
		}
		if err := store.TaskReject(ctx, r.TaskID, reason); err != nil {
			result.addError("VERIFY: rejecting %s: %v", r.TaskID, err)
			continue
		}
		result.TasksRejected++
	}
}

// applyInvestigate handles the INVESTIGATE schema: a "task" resolution
// creates a linked task inheriting the issue's priority and
// created_from-tagged back to it; every listed issue is resolved by ID
// regardless of resolution kind.
func applyInvestigate(ctx context.Context, store ticketstore.Client, block string, result *Result) {
	var doc struct {
		Results []struct {
			IssueID    string    `json:"issue_id"`
			Resolution string    `json:"resolution"`
			Task       *taskSpec `json:"task"`
			TrivialFix string    `json:"trivial_fix"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		result.addError("INVESTIGATE: decoding output: %v", err)
		return
	}

	issuesByID := make(map[string]string)
	if issues, err := store.ListIssues(ctx); err == nil {
		for _, iss := range issues {
			issuesByID[iss.ID] = iss.Priority
		}
	}

	var resolvedIDs []string
	for _, r := range doc.Results {
		if r.Resolution == "task" && r.Task != nil {
			t := r.Task.toTask()
			t.CreatedFrom = r.IssueID
			t.Priority = issuesByID[r.IssueID]
			if _, err := store.TaskAdd(ctx, t); err != nil {
				result.addError("INVESTIGATE: creating task for issue %s: %v", r.IssueID, err)
			} else {
				result.TasksAdded++
			}
		}
		resolvedIDs = append(resolvedIDs, r.IssueID)
	}

	if len(resolvedIDs) == 0 {
		return
	}
	count, err := store.IssueDoneIDs(ctx, resolvedIDs)
	if err != nil {
		result.addError("INVESTIGATE: resolving issues: %v", err)
		return
	}
	result.IssuesResolved += count
}

// applyDecompose handles the DECOMPOSE schema: create each subtask as a
// child of the failing task, then delete the parent. The parent ID comes
// from the orchestration state's decompose target, threaded through
// context by the stage runner using WithDecomposeTarget.
func applyDecompose(ctx context.Context, store ticketstore.Client, block string, result *Result) {
	var doc struct {
		Subtasks []taskSpec `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		result.addError("DECOMPOSE: decoding output: %v", err)
		return
	}

	parentID, parentDepth, ok := decomposeTarget(ctx)
	if !ok {
		result.addError("DECOMPOSE: no decompose target in context")
		return
	}

	for _, ts := range doc.Subtasks {
		t := ts.toTask()
		t.Parent = parentID
		t.DecomposeDepth = parentDepth + 1
		if _, err := store.TaskAdd(ctx, t); err != nil {
			result.addError("DECOMPOSE: creating subtask %q: %v", ts.Name, err)
			continue
		}
		result.TasksAdded++
	}

	if err := store.TaskDelete(ctx, parentID); err != nil {
		result.addError("DECOMPOSE: deleting parent %s: %v", parentID, err)
		return
	}
	result.TasksDeleted++
}
