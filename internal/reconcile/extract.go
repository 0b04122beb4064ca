// Package reconcile extracts the agent's structured output block from its
// raw stdout, validates it against the invoking stage's JSON Schema, and
// applies the resulting mutations to the ticket store.
package reconcile

import (
	"strings"
)

const (
	markerStart = "[RALPH_OUTPUT]"
	markerEnd   = "[/RALPH_OUTPUT]"
)

// ExtractStructuredOutput locates the agent's structured JSON block in raw
// output. It first looks for the literal [RALPH_OUTPUT]...[/RALPH_OUTPUT]
// markers; if absent, it falls back to the last balanced {...} object in
// the text. Returns ("", false) if neither is found.
func ExtractStructuredOutput(output string) (string, bool) {
	if start := strings.LastIndex(output, markerStart); start != -1 {
		rest := output[start+len(markerStart):]
		if end := strings.Index(rest, markerEnd); end != -1 {
			return strings.TrimSpace(rest[:end]), true
		}
	}
	return lastBalancedObject(output)
}

// lastBalancedObject scans output for the last top-level balanced {...}
// object, tolerating braces inside string literals. Used when the agent
// forgot (or never emitted) the marker block.
func lastBalancedObject(output string) (string, bool) {
	var (
		bestStart, bestEnd = -1, -1
		depth              int
		start              int
		inString           bool
		escaped            bool
	)

	for i, r := range output {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					bestStart, bestEnd = start, i+1
				}
			}
		}
	}

	if bestStart == -1 {
		return "", false
	}
	return output[bestStart:bestEnd], true
}
