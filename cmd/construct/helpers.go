package main

import (
	"time"

	"github.com/ralph-dev/construct/internal/config"
)

// timeoutFor derives the wall-clock budget for a single `plan` or
// `construct` command invocation from global config, defaulting to 15
// minutes when unset — mirroring stages.timeoutFor's fallback for a single
// stage invocation, but over the iteration-level timeout since these
// commands wrap a full stage call.
func timeoutFor(cfg config.GlobalConfig) time.Duration {
	if cfg.IterationTimeoutMs <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(cfg.IterationTimeoutMs) * time.Millisecond
}
