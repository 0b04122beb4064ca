// Package budget tracks the global resource ceilings the construct state
// machine aborts a run against: iteration count, wall-clock duration,
// total cost, total tokens, remote API calls, and consecutive failures.
// Every check is monotone — once any ceiling is exceeded, every subsequent
// check keeps reporting exceeded, even if the underlying counters somehow
// later read back under the limit.
package budget

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limits configures the ceilings a Tracker enforces. A zero value for any
// field means "no limit" for that dimension.
type Limits struct {
	MaxIterations         int
	MaxWallClockSeconds   float64
	MaxCostUSD            float64
	MaxTokens             int64
	MaxRemoteAPICalls     int
	MaxConsecutiveFailures int
}

// ExitReason names the budget dimension that tripped, written verbatim to
// the ledger's exit_reason field.
type ExitReason string

const (
	ExitReasonNone              ExitReason = ""
	ExitReasonComplete          ExitReason = "complete"
	ExitReasonMaxIterations     ExitReason = "max_iterations"
	ExitReasonWallClock         ExitReason = "wall_clock"
	ExitReasonCost              ExitReason = "cost"
	ExitReasonTokens            ExitReason = "tokens"
	ExitReasonRemoteAPICalls    ExitReason = "remote_api_calls"
	ExitReasonConsecutiveFailures ExitReason = "consecutive_failures"
)

// Tracker accumulates usage and reports whether any configured limit has
// been exceeded. Every method takes the mutex, so a Tracker is safe for
// concurrent use. The executor's reader goroutine keeps its own metrics and
// does not touch the Tracker; the sequencer records them after each stage.
type Tracker struct {
	limits Limits

	mu                 sync.Mutex
	startedAt          time.Time
	iterations         int
	costUSD            float64
	tokens             int64
	remoteAPICalls     int
	consecutiveFailures int

	// tripped latches true the first time any limit is exceeded, so the
	// monotonicity guarantee (invariant 10) holds even if a caller somehow
	// queries after counters were reset mid-run.
	tripped    bool
	trippedWhy ExitReason

	// remoteLimiter paces the remote calls made through WaitRemoteCall; it
	// does not replace the hard MaxRemoteAPICalls ceiling, which is a count,
	// not a rate. The ticket store and git clients do not call
	// WaitRemoteCall, so their calls are neither paced nor counted here.
	remoteLimiter *rate.Limiter
}

// New returns a Tracker enforcing limits, starting its wall-clock budget
// now. remoteCallsPerSecond paces remote calls (0 disables pacing,
// allowing the hard count ceiling alone to govern).
func New(limits Limits, remoteCallsPerSecond float64) *Tracker {
	t := &Tracker{limits: limits, startedAt: time.Now()}
	if remoteCallsPerSecond > 0 {
		t.remoteLimiter = rate.NewLimiter(rate.Limit(remoteCallsPerSecond), 1)
	}
	return t
}

// WaitRemoteCall blocks until the pacing limiter admits one more remote
// call, then records it against the hard ceiling. A nil limiter (pacing
// disabled) never blocks.
func (t *Tracker) WaitRemoteCall(ctx context.Context) error {
	if t.remoteLimiter != nil {
		if err := t.remoteLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	t.mu.Lock()
	t.remoteAPICalls++
	t.mu.Unlock()
	return nil
}

// RecordIteration increments the iteration counter.
func (t *Tracker) RecordIteration() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.iterations++
}

// RecordCost adds to the cumulative cost.
func (t *Tracker) RecordCost(usd float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.costUSD += usd
}

// RecordTokens adds to the cumulative token count.
func (t *Tracker) RecordTokens(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens += n
}

// RecordOutcome updates the consecutive-failure counter: any success
// resets it to zero, any failure increments it.
func (t *Tracker) RecordOutcome(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if success {
		t.consecutiveFailures = 0
	} else {
		t.consecutiveFailures++
	}
}

// Check returns the first exceeded budget dimension, or ExitReasonNone if
// every ceiling still has headroom. Once any dimension has tripped, Check
// keeps returning that same reason on every subsequent call regardless of
// counter changes, satisfying invariant 10 (global-budget checks are
// monotone).
func (t *Tracker) Check() ExitReason {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tripped {
		return t.trippedWhy
	}

	reason := t.checkLocked()
	if reason != ExitReasonNone {
		t.tripped = true
		t.trippedWhy = reason
	}
	return reason
}

func (t *Tracker) checkLocked() ExitReason {
	l := t.limits
	switch {
	case l.MaxIterations > 0 && t.iterations >= l.MaxIterations:
		return ExitReasonMaxIterations
	case l.MaxWallClockSeconds > 0 && time.Since(t.startedAt).Seconds() >= l.MaxWallClockSeconds:
		return ExitReasonWallClock
	case l.MaxCostUSD > 0 && t.costUSD >= l.MaxCostUSD:
		return ExitReasonCost
	case l.MaxTokens > 0 && t.tokens >= l.MaxTokens:
		return ExitReasonTokens
	case l.MaxRemoteAPICalls > 0 && t.remoteAPICalls >= l.MaxRemoteAPICalls:
		return ExitReasonRemoteAPICalls
	case l.MaxConsecutiveFailures > 0 && t.consecutiveFailures >= l.MaxConsecutiveFailures:
		return ExitReasonConsecutiveFailures
	default:
		return ExitReasonNone
	}
}

// Snapshot captures the tracker's current counters for the ledger's run
// record.
type Snapshot struct {
	Iterations          int
	WallClockSeconds    float64
	CostUSD             float64
	Tokens              int64
	RemoteAPICalls      int
	ConsecutiveFailures int
}

// Snapshot returns the tracker's current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Iterations:          t.iterations,
		WallClockSeconds:    time.Since(t.startedAt).Seconds(),
		CostUSD:             t.costUSD,
		Tokens:              t.tokens,
		RemoteAPICalls:      t.remoteAPICalls,
		ConsecutiveFailures: t.consecutiveFailures,
	}
}
