package scheduler

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ralph-dev/construct/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickBestTaskPrefersReadyOverBlocked(t *testing.T) {
	blocked := &plan.Task{ID: "t-1", Priority: plan.PriorityHigh, Deps: []string{"t-2"}}
	ready := &plan.Task{ID: "t-2", Priority: plan.PriorityLow}

	best := PickBestTask([]*plan.Task{blocked, ready}, nil)
	require.NotNil(t, best)
	assert.Equal(t, "t-2", best.ID, "t-2 is ready (not itself pending-blocked) despite lower priority")
}

func TestPickBestTaskPrefersLowerRetryCount(t *testing.T) {
	a := &plan.Task{ID: "t-1", Priority: plan.PriorityMedium}
	b := &plan.Task{ID: "t-2", Priority: plan.PriorityMedium}

	best := PickBestTask([]*plan.Task{a, b}, map[string]int{"t-1": 3, "t-2": 0})
	require.NotNil(t, best)
	assert.Equal(t, "t-2", best.ID)
}

func TestPickBestTaskFallsBackToInputOrder(t *testing.T) {
	a := &plan.Task{ID: "t-1"}
	b := &plan.Task{ID: "t-2"}
	best := PickBestTask([]*plan.Task{a, b}, nil)
	require.NotNil(t, best)
	assert.Equal(t, "t-1", best.ID)
}

func TestPickBestTaskEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, PickBestTask(nil, nil))
}

// TestSchedulerDeterminismProperty verifies invariant 5: given an identical
// snapshot and retry-count map, PickBestTask always returns the same ID.
func TestSchedulerDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("PickBestTask is a pure function of its inputs", prop.ForAll(
		func(n int) bool {
			if n < 1 {
				n = 1
			}
			n %= 8
			if n == 0 {
				n = 1
			}
			tasks := make([]*plan.Task, n)
			retries := map[string]int{}
			for i := 0; i < n; i++ {
				id := string(rune('a' + i))
				tasks[i] = &plan.Task{ID: id, Priority: []string{plan.PriorityHigh, plan.PriorityMedium, plan.PriorityLow}[i%3]}
				retries[id] = i % 3
			}

			a := PickBestTask(tasks, retries)
			b := PickBestTask(tasks, retries)
			return a.ID == b.ID
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestLooksLikeCommand(t *testing.T) {
	tests := []struct {
		accept string
		want   bool
	}{
		{"pytest tests/", true},
		{"make test", true},
		{"go test ./...", true},
		{"npm test", true},
		{"cargo test", true},
		{"./run.sh", true},
		{"bash script.sh", true},
		{"sh -c 'true'", true},
		{"python check.py", true},
		{"grep -q pattern file", true},
		{"test -f output.txt", true},
		{"echo done", true},
		{"foo | bar", true},
		{"foo && bar", true},
		{"foo || bar", true},
		{"cmd > out.txt", true},
		{"cmd >> out.txt", true},
		{"cmd; other", true},
		{"the task is done when it looks nice", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeCommand(tt.accept), "accept=%q", tt.accept)
	}
}
