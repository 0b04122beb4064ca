package construct

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/ralph-dev/construct/internal/ticketstore"
)

// fingerprint combines the current stage with a stable hash of the
// ticket store's visible contents, so the loop detector can recognize
// "nothing changed" across iterations.
func fingerprint(ctx context.Context, store ticketstore.Client, stage string) (string, error) {
	pending, err := store.ListPending(ctx)
	if err != nil {
		return "", err
	}
	done, err := store.ListDone(ctx)
	if err != nil {
		return "", err
	}
	issues, err := store.ListIssues(ctx)
	if err != nil {
		return "", err
	}

	var pendingIDs, doneIDs, issueIDs []string
	for _, t := range pending {
		pendingIDs = append(pendingIDs, t.ID)
	}
	for _, t := range done {
		doneIDs = append(doneIDs, t.ID)
	}
	for _, iss := range issues {
		issueIDs = append(issueIDs, iss.ID)
	}
	sort.Strings(pendingIDs)
	sort.Strings(doneIDs)
	sort.Strings(issueIDs)

	h := sha256.New()
	h.Write([]byte(stage))
	h.Write([]byte("|p:" + strings.Join(pendingIDs, ",")))
	h.Write([]byte("|d:" + strings.Join(doneIDs, ",")))
	h.Write([]byte("|i:" + strings.Join(issueIDs, ",")))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// loopDetector tracks fingerprint repetition across iterations. A zero
// threshold disables detection entirely.
type loopDetector struct {
	threshold int
	last      string
	repeats   int
}

func newLoopDetector(threshold int) *loopDetector {
	return &loopDetector{threshold: threshold}
}

// Observe records a new fingerprint and reports whether the repeat
// threshold has now been reached.
func (d *loopDetector) Observe(fp string) bool {
	if d.threshold <= 0 {
		return false
	}
	if fp == d.last {
		d.repeats++
	} else {
		d.last = fp
		d.repeats = 1
	}
	return d.repeats >= d.threshold
}
