package scheduler

import (
	"context"
	"regexp"
	"strings"

	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/ticketstore"
)

// DefaultSimilarityThreshold is used when config doesn't override it.
const DefaultSimilarityThreshold = 0.8

var whitespaceRe = regexp.MustCompile(`\s+`)

// canonicalize lowercases and collapses whitespace, the normalization step
// before tokenizing a description for similarity comparison.
func canonicalize(desc string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(desc)), " ")
}

// tokenize splits a canonicalized description into a set of word tokens.
func tokenize(canonical string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(canonical) {
		set[tok] = true
	}
	return set
}

// jaccardSimilarity computes |A∩B| / |A∪B| for two token sets, 1.0 for two
// empty sets (vacuously identical).
func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// DedupGroups partitions issues into duplicate groups under the Jaccard
// threshold: each group's first entry (in input order) is the one to keep;
// the rest are duplicates to resolve. A threshold of 1.0 or above compares
// the whole canonicalized descriptions for equality instead, so issues that
// only reorder the same words are not collapsed.
func DedupGroups(issues []*plan.Issue, threshold float64) (kept []*plan.Issue, duplicates []*plan.Issue) {
	canon := make([]string, len(issues))
	tokens := make([]map[string]bool, len(issues))
	for i, iss := range issues {
		canon[i] = canonicalize(iss.Desc)
		tokens[i] = tokenize(canon[i])
	}

	absorbed := make([]bool, len(issues))
	for i, iss := range issues {
		if absorbed[i] {
			continue
		}
		kept = append(kept, iss)
		for j := i + 1; j < len(issues); j++ {
			if absorbed[j] {
				continue
			}
			dup := jaccardSimilarity(tokens[i], tokens[j]) >= threshold
			if threshold >= 1.0 {
				dup = canon[i] == canon[j]
			}
			if dup {
				absorbed[j] = true
				duplicates = append(duplicates, issues[j])
			}
		}
	}
	return kept, duplicates
}

// DeduplicateIssues runs DedupGroups over the store's current open issues
// and resolves every duplicate via IssueDoneIDs, keeping the earliest of
// each group. Returns the IDs resolved.
func DeduplicateIssues(ctx context.Context, store ticketstore.Client, threshold float64) ([]string, error) {
	issues, err := store.ListIssues(ctx)
	if err != nil {
		return nil, err
	}
	_, duplicates := DedupGroups(issues, threshold)
	if len(duplicates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(duplicates))
	for i, d := range duplicates {
		ids[i] = d.ID
	}
	if _, err := store.IssueDoneIDs(ctx, ids); err != nil {
		return nil, err
	}
	return ids, nil
}
