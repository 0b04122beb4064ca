package ticketstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/time/rate"

	"github.com/ralph-dev/construct/internal/errs"
	"github.com/ralph-dev/construct/internal/plan"
)

const defaultCallTimeout = 30 * time.Second

// defaultCallsPerSecond paces ticket-store subprocess calls the same way
// gitops.Runner paces git calls, so a tight construct loop can't hammer the
// ticket store on every iteration.
const defaultCallsPerSecond = 4.0

// ProcessClient shells out to an external ticket CLI binary for every
// operation, matching the original CLI's single-point-of-contact wrapper:
// every mutation is one subprocess invocation, stdout parsed as JSON.
type ProcessClient struct {
	bin     string
	dir     string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewProcessClient returns a Client backed by the ticket CLI at binPath, run
// with dir as its working directory (normally the repository root), calls
// paced to defaultCallsPerSecond.
func NewProcessClient(binPath, dir string) *ProcessClient {
	return &ProcessClient{
		bin:     binPath,
		dir:     dir,
		timeout: defaultCallTimeout,
		limiter: rate.NewLimiter(rate.Limit(defaultCallsPerSecond), 1),
	}
}

// WithTimeout returns a copy of c using the given per-call timeout instead
// of the default 30 seconds.
func (c *ProcessClient) WithTimeout(d time.Duration) *ProcessClient {
	cp := *c
	cp.timeout = d
	return &cp
}

func (c *ProcessClient) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Dir = c.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return nil, errs.Wrap(errs.KindTicketStoreUnavailable, err, msg)
	}
	return bytes.TrimSpace(stdout.Bytes()), nil
}

func (c *ProcessClient) runJSON(ctx context.Context, out any, args ...string) error {
	data, err := c.run(ctx, args...)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.Wrap(errs.KindParseError, err, "ticket store returned unparseable output")
	}
	return nil
}

type taskRecord struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Spec     string   `json:"spec"`
	Notes    string   `json:"notes"`
	Accept   string   `json:"accept"`
	Deps     []string `json:"deps"`
	Status   string   `json:"s"`
	Priority string   `json:"priority"`
}

type issueRecord struct {
	ID       string `json:"id"`
	Desc     string `json:"desc"`
	Spec     string `json:"spec"`
	Priority string `json:"priority"`
}

func (c *ProcessClient) ListPending(ctx context.Context) ([]*plan.Task, error) {
	var recs []taskRecord
	if err := c.runJSON(ctx, &recs, "query", "tasks"); err != nil {
		return nil, err
	}
	return taskRecordsToTasks(recs), nil
}

func (c *ProcessClient) ListDone(ctx context.Context) ([]*plan.Task, error) {
	var recs []taskRecord
	if err := c.runJSON(ctx, &recs, "query", "tasks", "--done"); err != nil {
		return nil, err
	}
	return taskRecordsToTasks(recs), nil
}

func (c *ProcessClient) ListIssues(ctx context.Context) ([]*plan.Issue, error) {
	var recs []issueRecord
	if err := c.runJSON(ctx, &recs, "query", "issues"); err != nil {
		return nil, err
	}
	out := make([]*plan.Issue, len(recs))
	for i, r := range recs {
		out[i] = &plan.Issue{ID: r.ID, Desc: r.Desc, Spec: r.Spec, Priority: r.Priority}
	}
	return out, nil
}

func taskRecordsToTasks(recs []taskRecord) []*plan.Task {
	out := make([]*plan.Task, len(recs))
	for i, r := range recs {
		out[i] = &plan.Task{
			ID: r.ID, Name: r.Name, Spec: r.Spec, Notes: r.Notes, Accept: r.Accept,
			Deps: r.Deps, Status: r.Status, Priority: r.Priority,
		}
	}
	return out
}

func (c *ProcessClient) TaskAdd(ctx context.Context, t *plan.Task) (string, error) {
	payload, err := json.Marshal(taskRecord{
		Name: t.Name, Spec: t.Spec, Notes: t.Notes, Accept: t.Accept,
		Deps: t.Deps, Priority: t.Priority,
	})
	if err != nil {
		return "", err
	}
	var result struct {
		ID string `json:"id"`
	}
	if err := c.runJSON(ctx, &result, "task", "add", string(payload)); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (c *ProcessClient) TaskBatchAdd(ctx context.Context, tasks []*plan.Task) ([]string, error) {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		id, err := c.TaskAdd(ctx, t)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *ProcessClient) TaskDone(ctx context.Context, taskID string) error {
	_, err := c.run(ctx, "task", "done", taskID)
	return err
}

func (c *ProcessClient) TaskAccept(ctx context.Context, taskID string) error {
	_, err := c.run(ctx, "task", "accept", taskID)
	return err
}

func (c *ProcessClient) TaskReject(ctx context.Context, taskID, reason string) error {
	_, err := c.run(ctx, "task", "reject", taskID, reason)
	return err
}

func (c *ProcessClient) TaskDelete(ctx context.Context, taskID string) error {
	_, err := c.run(ctx, "task", "delete", taskID)
	return err
}

func (c *ProcessClient) TaskPrioritize(ctx context.Context, taskID, priority string) error {
	_, err := c.run(ctx, "task", "prioritize", taskID, priority)
	return err
}

// IssueAdd creates a new issue from a description. The underlying CLI's
// "issue add" verb takes only a description; spec and priority are accepted
// here to satisfy the Client interface but are not separately persisted —
// the ticket store has no add-with-metadata verb for issues.
func (c *ProcessClient) IssueAdd(ctx context.Context, desc, spec, priority string) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	if err := c.runJSON(ctx, &result, "issue", "add", desc); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (c *ProcessClient) IssueDone(ctx context.Context) error {
	_, err := c.run(ctx, "issue", "done")
	return err
}

func (c *ProcessClient) IssueDoneAll(ctx context.Context) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	if err := c.runJSON(ctx, &result, "issue", "done-all"); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (c *ProcessClient) IssueDoneIDs(ctx context.Context, ids []string) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	args := append([]string{"issue", "done-ids"}, ids...)
	if err := c.runJSON(ctx, &result, args...); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (c *ProcessClient) Validate(ctx context.Context) error {
	data, err := c.run(ctx, "validate")
	if err != nil {
		return errs.Wrap(errs.KindValidationError, err, "ticket store validation failed")
	}
	_ = data
	return nil
}

// IsAvailable reports whether the ticket CLI responds to a cheap status
// call, used before committing to a full run.
func (c *ProcessClient) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.run(probeCtx, "status")
	return err == nil
}

var _ fmt.Stringer = (*ProcessClient)(nil)

// String returns a short description for logging.
func (c *ProcessClient) String() string {
	return fmt.Sprintf("ticketstore(bin=%s, dir=%s)", c.bin, c.dir)
}
