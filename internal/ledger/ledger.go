// Package ledger appends structured JSONL records for each construct
// invocation and each iteration within it, for post-hoc cross-run
// comparison. Two append-only files live in one directory per
// repo+branch+spec: runs.jsonl (one record per invocation) and
// iterations.jsonl (one record per iteration). Records are never
// rewritten; readers tolerate missing files and malformed lines.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ralph-dev/construct/internal/config"
)

// NewRunID generates a unique run identifier. Format:
// "run-<unix-microseconds>-<8-hex-char uuid suffix>", sortable
// lexicographically by creation time within a single log directory.
func NewRunID() string {
	u := uuid.New().String()
	suffix := strings.ReplaceAll(u, "-", "")[:8]
	return fmt.Sprintf("run-%d-%s", time.Now().UnixMicro(), suffix)
}

// TokenBreakdown separates token counts by cache status.
type TokenBreakdown struct {
	Input  int64 `json:"input"`
	Cached int64 `json:"cached"`
	Output int64 `json:"output"`
}

// StageBreakdown is a per-stage summary within a run.
type StageBreakdown struct {
	Count          int     `json:"count"`
	Cost           float64 `json:"cost"`
	APICallsRemote int     `json:"api_calls_remote,omitempty"`
	APICallsLocal  int     `json:"api_calls_local,omitempty"`
}

// RunRecord is one record per construct invocation.
type RunRecord struct {
	RunID          string                    `json:"run_id"`
	Spec           string                    `json:"spec,omitempty"`
	Branch         string                    `json:"branch,omitempty"`
	GitSHAStart    string                    `json:"git_sha_start,omitempty"`
	GitSHAEnd      string                    `json:"git_sha_end,omitempty"`
	Worktree       string                    `json:"worktree,omitempty"`
	Profile        string                    `json:"profile,omitempty"`
	ConfigSnapshot map[string]any            `json:"config_snapshot,omitempty"`
	StartedAt      string                    `json:"started_at,omitempty"`
	EndedAt        string                    `json:"ended_at,omitempty"`
	DurationS      float64                   `json:"duration_s"`
	ExitReason     string                    `json:"exit_reason,omitempty"`
	Iterations     int                       `json:"iterations"`
	TasksTotal     int                       `json:"tasks_total,omitempty"`
	TasksCompleted int                       `json:"tasks_completed,omitempty"`
	TasksFailed    int                       `json:"tasks_failed,omitempty"`
	Cost           float64                   `json:"cost"`
	Tokens         TokenBreakdown            `json:"tokens"`
	APICallsRemote int                       `json:"api_calls_remote,omitempty"`
	APICallsLocal  int                       `json:"api_calls_local,omitempty"`
	KillsTimeout   int                       `json:"kills_timeout,omitempty"`
	KillsContext   int                       `json:"kills_context,omitempty"`
	KillsLoop      int                       `json:"kills_loop,omitempty"`
	RetriesValid   int                       `json:"retries_validation,omitempty"`
	RetriesTask    int                       `json:"retries_task,omitempty"`
	Stages         map[string]StageBreakdown `json:"stages,omitempty"`
}

// IterationRecord is one record per iteration within a run.
type IterationRecord struct {
	RunID             string         `json:"run_id"`
	Iteration         int            `json:"iteration"`
	Stage             string         `json:"stage"`
	Model             string         `json:"model,omitempty"`
	IsLocal           bool           `json:"is_local,omitempty"`
	TaskID            string         `json:"task_id,omitempty"`
	Cost              float64        `json:"cost"`
	Tokens            TokenBreakdown `json:"tokens"`
	DurationS         float64        `json:"duration_s"`
	Outcome           string         `json:"outcome,omitempty"`
	PrecheckAccepted  bool           `json:"precheck_accepted,omitempty"`
	ValidationRetries int            `json:"validation_retries,omitempty"`
	KillReason        string         `json:"kill_reason,omitempty"`

	// Reconciliation breakdown; only emitted via Reconcile when nonzero.
	Reconcile map[string]int `json:"reconcile,omitempty"`
}

// ReconcileCounts sets r.Reconcile from the nonzero fields of a
// reconciliation outcome, omitting the key entirely when everything
// is zero.
func (r *IterationRecord) ReconcileCounts(added, accepted, rejected, issuesAdded int) {
	m := map[string]int{}
	if added > 0 {
		m["added"] = added
	}
	if accepted > 0 {
		m["accepted"] = accepted
	}
	if rejected > 0 {
		m["rejected"] = rejected
	}
	if issuesAdded > 0 {
		m["issues"] = issuesAdded
	}
	if len(m) > 0 {
		r.Reconcile = m
	}
}

func appendJSONL(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding ledger record: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing ledger record: %w", err)
	}
	return nil
}

// WriteRun appends a run record to <logDir>/runs.jsonl.
func WriteRun(logDir string, rec RunRecord) error {
	return appendJSONL(filepath.Join(logDir, "runs.jsonl"), rec)
}

// WriteIteration appends an iteration record to <logDir>/iterations.jsonl.
func WriteIteration(logDir string, rec IterationRecord) error {
	return appendJSONL(filepath.Join(logDir, "iterations.jsonl"), rec)
}

func loadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue // tolerate malformed lines
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadRuns reads every run record from <logDir>/runs.jsonl, oldest first.
// A missing file yields an empty slice, not an error.
func LoadRuns(logDir string) ([]RunRecord, error) {
	return loadJSONL[RunRecord](filepath.Join(logDir, "runs.jsonl"))
}

// LoadIterations reads every iteration record from <logDir>/iterations.jsonl,
// oldest first. A missing file yields an empty slice, not an error.
func LoadIterations(logDir string) ([]IterationRecord, error) {
	return loadJSONL[IterationRecord](filepath.Join(logDir, "iterations.jsonl"))
}

// IterationsForRun filters LoadIterations' result down to one run.
func IterationsForRun(logDir, runID string) ([]IterationRecord, error) {
	all, err := LoadIterations(logDir)
	if err != nil {
		return nil, err
	}
	var out []IterationRecord
	for _, rec := range all {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ConfigSnapshot extracts the config fields relevant for cross-run
// comparison, omitting zero-valued fields the same way the fields they
// snapshot are themselves optional.
func ConfigSnapshot(cfg config.GlobalConfig) map[string]any {
	snap := map[string]any{}
	add := func(key string, val any) {
		switch v := val.(type) {
		case string:
			if v != "" {
				snap[key] = v
			}
		case int:
			if v != 0 {
				snap[key] = v
			}
		case float64:
			if v != 0 {
				snap[key] = v
			}
		}
	}

	add("model", cfg.Model)
	add("model_build", cfg.ModelBuild)
	add("max_iterations", cfg.MaxIterations)
	add("max_failures", cfg.MaxFailures)
	add("max_decompose_depth", cfg.MaxDecomposeDepth)
	add("max_retries_per_task", cfg.MaxRetriesPerTask)
	add("context_window", cfg.ContextWindow)
	add("stage_timeout_ms", cfg.StageTimeoutMs)
	add("verify_batch_size", cfg.VerifyBatchSize)
	add("investigate_batch_size", cfg.InvestigateBatchSize)
	add("context_kill_pct", cfg.ContextKillPct)
	add("context_compact_pct", cfg.ContextCompactPct)
	add("progress_stall_abort_s", cfg.ProgressCheckIntervalSeconds)

	return snap
}
