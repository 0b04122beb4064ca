package plan

import (
	"bytes"
	"encoding/json"
	"strings"
)

// record is the wire shape of every plan.jsonl line: a flat map keyed by
// the original field abbreviations, discriminated by "t". Decoding through
// a generic map (rather than one struct per record type) lets malformed or
// unrecognized lines be skipped instead of failing the whole load, matching
// the tolerant behavior of the original state loader.
type record map[string]any

const (
	recSpec   = "spec"
	recTask   = "task"
	recIssue  = "issue"
	recConfig = "config"
)

// Decode parses a plan.jsonl document into a Plan. Blank lines and lines
// that fail to parse as JSON are silently skipped; a missing "t" value
// skips the line too. This mirrors the original loader's tolerance for a
// partially-corrupt file rather than refusing to load at all.
func Decode(data []byte) *Plan {
	p := New()

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		dispatch(p, rec)
	}

	markAcceptedTasks(p)
	return p
}

func dispatch(p *Plan, rec record) {
	t, _ := rec["t"].(string)
	switch t {
	case recSpec:
		p.Spec, _ = rec["spec"].(string)
	case recTask:
		p.Tasks = append(p.Tasks, taskFromRecord(rec))
	case recIssue:
		p.Issues = append(p.Issues, issueFromRecord(rec))
	case recConfig:
		p.Config = configFromRecord(rec)
	case TombstoneAccept:
		p.Accepted = append(p.Accepted, tombstoneFromRecord(rec, TombstoneAccept))
	case TombstoneReject:
		p.Rejected = append(p.Rejected, tombstoneFromRecord(rec, TombstoneReject))
	}
}

// markAcceptedTasks promotes any task still sitting at StatusDone to
// StatusAccepted if an accept tombstone exists for its ID, reconciling a
// plan file where the task line was written before its tombstone.
func markAcceptedTasks(p *Plan) {
	accepted := make(map[string]bool, len(p.Accepted))
	for _, ts := range p.Accepted {
		accepted[ts.ID] = true
	}
	for _, t := range p.Tasks {
		if accepted[t.ID] && t.Status == StatusDone {
			t.Status = StatusAccepted
		}
	}
}

func str(rec record, key string) string {
	v, _ := rec[key].(string)
	return v
}

func numInt(rec record, key string) int {
	switch v := rec[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func numFloat(rec record, key, fallbackKey string, def float64) float64 {
	if v, ok := rec[key].(float64); ok {
		return v
	}
	if fallbackKey != "" {
		if v, ok := rec[fallbackKey].(float64); ok {
			return v
		}
	}
	return def
}

func boolVal(rec record, key string) bool {
	v, _ := rec[key].(bool)
	return v
}

func strSlice(rec record, key string) []string {
	raw, ok := rec[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func taskFromRecord(rec record) *Task {
	name := str(rec, "name")
	if name == "" {
		name = str(rec, "desc")
	}
	status := str(rec, "s")
	if status == "" {
		status = StatusPending
	}
	return &Task{
		ID:             str(rec, "id"),
		Name:           name,
		Spec:           str(rec, "spec"),
		Notes:          str(rec, "notes"),
		Accept:         str(rec, "accept"),
		Deps:           strSlice(rec, "deps"),
		Status:         status,
		DoneAt:         str(rec, "done_at"),
		NeedsDecompose: boolVal(rec, "decompose"),
		KillReason:     str(rec, "kill"),
		KillLog:        str(rec, "kill_log"),
		Priority:       str(rec, "priority"),
		RejectReason:   str(rec, "reject"),
		Parent:         str(rec, "parent"),
		CreatedFrom:    str(rec, "created_from"),
		Supersedes:     str(rec, "supersedes"),
		DecomposeDepth: numInt(rec, "decompose_depth"),
		TimeoutMs:      numInt(rec, "timeout_ms"),
	}
}

func issueFromRecord(rec record) *Issue {
	return &Issue{
		ID:       str(rec, "id"),
		Desc:     str(rec, "desc"),
		Spec:     str(rec, "spec"),
		Priority: str(rec, "priority"),
	}
}

func configFromRecord(rec record) Config {
	def := DefaultConfig()
	cfg := Config{
		TimeoutMs:      numInt(rec, "timeout_ms"),
		MaxIterations:  numInt(rec, "max_iterations"),
		ContextWarn:    numFloat(rec, "context_warn", "", def.ContextWarn),
		ContextCompact: numFloat(rec, "context_compact", "", def.ContextCompact),
		ContextKill:    numFloat(rec, "context_kill", "", def.ContextKill),
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = def.TimeoutMs
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	return cfg
}

func tombstoneFromRecord(rec record, kind string) *Tombstone {
	ts := &Tombstone{
		Type:         kind,
		ID:           str(rec, "id"),
		DoneAt:       str(rec, "done_at"),
		Reason:       str(rec, "reason"),
		Name:         str(rec, "name"),
		Timestamp:    str(rec, "timestamp"),
		ChangedFiles: strSlice(rec, "changed_files"),
		LogFile:      str(rec, "log_file"),
		Notes:        str(rec, "notes"),
	}
	if v, ok := rec["iteration"].(float64); ok {
		ts.Iteration = int(v)
		ts.HasIteration = true
	}
	return ts
}

// Encode serializes a Plan into the canonical plan.jsonl byte layout:
// config line, spec line, one line per task, one per issue, accept
// tombstones, then reject tombstones — the fixed write order the rest of
// the system relies on so an interrupted write leaves a prefix of valid
// records rather than a half-written interior line.
func Encode(p *Plan) []byte {
	var lines []string

	lines = append(lines, mustJSON(configToRecord(p.Config)))

	if p.Spec != "" {
		lines = append(lines, mustJSON(record{"t": recSpec, "spec": p.Spec}))
	}

	for _, t := range p.Tasks {
		lines = append(lines, mustJSON(taskToRecord(t)))
	}
	for _, i := range p.Issues {
		lines = append(lines, mustJSON(issueToRecord(i)))
	}
	for _, ts := range p.Accepted {
		lines = append(lines, mustJSON(tombstoneToRecord(ts)))
	}
	for _, ts := range p.Rejected {
		lines = append(lines, mustJSON(tombstoneToRecord(ts)))
	}

	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func mustJSON(rec record) string {
	b, err := json.Marshal(rec)
	if err != nil {
		// record values are only strings/ints/floats/bools/[]string, all of
		// which always marshal; a failure here indicates a programming error.
		panic(err)
	}
	return string(b)
}

func configToRecord(c Config) record {
	return record{
		"t":               recConfig,
		"timeout_ms":      c.TimeoutMs,
		"max_iterations":  c.MaxIterations,
		"context_warn":    c.ContextWarn,
		"context_compact": c.ContextCompact,
		"context_kill":    c.ContextKill,
	}
}

func taskToRecord(t *Task) record {
	rec := record{"t": recTask, "id": t.ID, "name": t.Name, "spec": t.Spec, "s": t.Status}
	if t.Notes != "" {
		rec["notes"] = t.Notes
	}
	if t.Accept != "" {
		rec["accept"] = t.Accept
	}
	if len(t.Deps) > 0 {
		rec["deps"] = t.Deps
	}
	if t.DoneAt != "" {
		rec["done_at"] = t.DoneAt
	}
	if t.NeedsDecompose {
		rec["decompose"] = true
	}
	if t.KillReason != "" {
		rec["kill"] = t.KillReason
	}
	if t.KillLog != "" {
		rec["kill_log"] = t.KillLog
	}
	if t.Priority != "" {
		rec["priority"] = t.Priority
	}
	if t.RejectReason != "" {
		rec["reject"] = t.RejectReason
	}
	if t.Parent != "" {
		rec["parent"] = t.Parent
	}
	if t.CreatedFrom != "" {
		rec["created_from"] = t.CreatedFrom
	}
	if t.Supersedes != "" {
		rec["supersedes"] = t.Supersedes
	}
	if t.DecomposeDepth != 0 {
		rec["decompose_depth"] = t.DecomposeDepth
	}
	if t.TimeoutMs != 0 {
		rec["timeout_ms"] = t.TimeoutMs
	}
	return rec
}

func issueToRecord(i *Issue) record {
	rec := record{"t": recIssue, "id": i.ID, "desc": i.Desc, "spec": i.Spec}
	if i.Priority != "" {
		rec["priority"] = i.Priority
	}
	return rec
}

func tombstoneToRecord(ts *Tombstone) record {
	rec := record{"t": ts.Type, "id": ts.ID, "done_at": ts.DoneAt, "reason": ts.Reason}
	if ts.Name != "" {
		rec["name"] = ts.Name
	}
	if ts.Timestamp != "" {
		rec["timestamp"] = ts.Timestamp
	}
	if len(ts.ChangedFiles) > 0 {
		rec["changed_files"] = ts.ChangedFiles
	}
	if ts.LogFile != "" {
		rec["log_file"] = ts.LogFile
	}
	if ts.HasIteration {
		rec["iteration"] = ts.Iteration
	}
	if ts.Notes != "" {
		rec["notes"] = ts.Notes
	}
	return rec
}
