package plan

import (
	"github.com/ralph-dev/construct/internal/persist"
)

// Load reads and decodes the plan.jsonl file at path, returning a fresh
// default Plan if the file does not exist.
func Load(path string) (*Plan, error) {
	data, err := persist.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return New(), nil
	}
	return Decode(data), nil
}

// Save atomically writes p to path in the canonical record order.
func Save(p *Plan, path string) error {
	return persist.WriteFileAtomic(path, Encode(p), 0o644)
}
