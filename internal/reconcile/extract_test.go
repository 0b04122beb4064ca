package reconcile

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStructuredOutputWithMarkers(t *testing.T) {
	output := "some agent prose\n[RALPH_OUTPUT]{\"verdict\":\"done\"}[/RALPH_OUTPUT]\ntrailing text"
	block, ok := ExtractStructuredOutput(output)
	require.True(t, ok)
	assert.Equal(t, `{"verdict":"done"}`, block)
}

func TestExtractStructuredOutputUsesLastMarkerPair(t *testing.T) {
	output := "[RALPH_OUTPUT]{\"verdict\":\"blocked\"}[/RALPH_OUTPUT] retry\n[RALPH_OUTPUT]{\"verdict\":\"done\"}[/RALPH_OUTPUT]"
	block, ok := ExtractStructuredOutput(output)
	require.True(t, ok)
	assert.Equal(t, `{"verdict":"done"}`, block)
}

func TestExtractStructuredOutputFallsBackToLastBalancedObject(t *testing.T) {
	output := `agent thinks: {"intermediate": true} then concludes {"verdict": "done", "summary": "ok"}`
	block, ok := ExtractStructuredOutput(output)
	require.True(t, ok)
	assert.Equal(t, `{"verdict": "done", "summary": "ok"}`, block)
}

func TestExtractStructuredOutputToleratesBracesInStrings(t *testing.T) {
	output := `[RALPH_OUTPUT]{"summary": "uses a { brace } inside a string", "verdict": "done"}[/RALPH_OUTPUT]`
	block, ok := ExtractStructuredOutput(output)
	require.True(t, ok)
	assert.Contains(t, block, "brace")
}

func TestExtractStructuredOutputNoneFound(t *testing.T) {
	_, ok := ExtractStructuredOutput("no structured data here at all")
	assert.False(t, ok)
}

// TestExtractNeverPanics is a lightweight property check: extraction on
// arbitrary text never panics and, when it claims success, returns text
// containing at least one '{' and '}'.
func TestExtractNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("extraction result, if any, is non-empty and brace-delimited", prop.ForAll(
		func(s string) bool {
			block, ok := ExtractStructuredOutput(s)
			if !ok {
				return true
			}
			return len(block) >= 2 && block[0] == '{' && block[len(block)-1] == '}'
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
