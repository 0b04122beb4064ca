package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Per-stage schemas, one literal JSON Schema document per §4.3's table.
// Compiled lazily and cached by stage name.
var stageSchemas = map[string]string{
	StagePlan: `{
		"type": "object",
		"properties": {
			"tasks": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name", "accept"],
					"properties": {
						"name": {"type": "string"},
						"notes": {"type": "string"},
						"accept": {"type": "string"},
						"deps": {"type": "array", "items": {"type": "string"}},
						"priority": {"type": "string", "enum": ["high", "medium", "low"]}
					}
				}
			},
			"drop": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	StageBuild: `{
		"type": "object",
		"required": ["verdict"],
		"properties": {
			"verdict": {"type": "string", "enum": ["done", "blocked"]},
			"summary": {"type": "string"},
			"reason": {"type": "string"},
			"issues": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["desc"],
					"properties": {"desc": {"type": "string"}}
				}
			}
		}
	}`,
	StageVerify: `{
		"type": "object",
		"properties": {
			"results": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["task_id", "passed"],
					"properties": {
						"task_id": {"type": "string"},
						"passed": {"type": "boolean"},
						"evidence": {"type": "string"},
						"reason": {"type": "string"}
					}
				}
			}
		}
	}`,
	StageInvestigate: `{
		"type": "object",
		"properties": {
			"results": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["issue_id", "resolution"],
					"properties": {
						"issue_id": {"type": "string"},
						"resolution": {"type": "string", "enum": ["task", "trivial", "out_of_scope"]},
						"task": {
							"type": "object",
							"properties": {
								"name": {"type": "string"},
								"notes": {"type": "string"},
								"accept": {"type": "string"},
								"deps": {"type": "array", "items": {"type": "string"}},
								"priority": {"type": "string", "enum": ["high", "medium", "low"]}
							}
						},
						"trivial_fix": {"type": "string"}
					}
				}
			}
		}
	}`,
	StageDecompose: `{
		"type": "object",
		"required": ["subtasks"],
		"properties": {
			"subtasks": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name", "accept"],
					"properties": {
						"name": {"type": "string"},
						"notes": {"type": "string"},
						"accept": {"type": "string"},
						"deps": {"type": "array", "items": {"type": "string"}},
						"priority": {"type": "string", "enum": ["high", "medium", "low"]}
					}
				}
			}
		}
	}`,
}

var compiledSchemas = map[string]*jsonschema.Schema{}

// compileSchema compiles (and memoizes) the JSON Schema for the given
// stage.
func compileSchema(stage string) (*jsonschema.Schema, error) {
	if s, ok := compiledSchemas[stage]; ok {
		return s, nil
	}
	raw, ok := stageSchemas[stage]
	if !ok {
		return nil, fmt.Errorf("reconcile: no schema registered for stage %q", stage)
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("reconcile: invalid schema literal for stage %q: %w", stage, err)
	}

	c := jsonschema.NewCompiler()
	resourceID := "construct-" + stage + ".json"
	if err := c.AddResource(resourceID, doc); err != nil {
		return nil, fmt.Errorf("reconcile: adding schema resource for stage %q: %w", stage, err)
	}
	schema, err := c.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: compiling schema for stage %q: %w", stage, err)
	}
	compiledSchemas[stage] = schema
	return schema, nil
}

// Validate checks a decoded JSON document against the given stage's schema.
func Validate(stage string, doc any) error {
	schema, err := compileSchema(stage)
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}
