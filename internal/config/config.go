// Package config loads the orchestrator's global configuration from
// $HOME/.config/ralph/config.toml, with [default] and [profiles.<name>]
// overlay support selected by the RALPH_PROFILE environment variable.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// GlobalConfig holds process-wide defaults. Per-plan overrides (see
// plan.Config) take precedence over these at the stage-runner boundary.
type GlobalConfig struct {
	// Model selection.
	Model      string `toml:"model"`
	ModelBuild string `toml:"model_build"`

	// Context pressure thresholds, as percentages of ContextWindow.
	ContextWindow     int `toml:"context_window"`
	ContextWarnPct    int `toml:"context_warn_pct"`
	ContextCompactPct int `toml:"context_compact_pct"`
	ContextKillPct    int `toml:"context_kill_pct"`

	// Timeouts, in milliseconds.
	StageTimeoutMs     int `toml:"stage_timeout_ms"`
	IterationTimeoutMs int `toml:"iteration_timeout_ms"`

	// Failure handling.
	MaxFailures        int `toml:"max_failures"`
	MaxIterations      int `toml:"max_iterations"`
	MaxDecomposeDepth  int `toml:"max_decompose_depth"`
	MaxRetriesPerTask  int `toml:"max_retries_per_task"`

	// Batching.
	InvestigateBatchSize int `toml:"investigate_batch_size"`
	VerifyBatchSize      int `toml:"verify_batch_size"`

	// Issue dedup.
	IssueSimilarityThreshold float64 `toml:"issue_similarity_threshold"`

	// Stall detection (warn-only; global budgets decide abort).
	ProgressCheckIntervalSeconds int `toml:"progress_check_interval"`

	// Git settings.
	CommitPrefix          string `toml:"commit_prefix"`
	RecentCommitsDisplay  int    `toml:"recent_commits_display"`

	// Directories, relative to repo root unless absolute.
	RalphDir string `toml:"ralph_dir"`
	LogDir   string `toml:"log_dir"`

	// Profile name, for display/debugging; set by Load when RALPH_PROFILE
	// selects an overlay.
	Profile string `toml:"profile"`
}

// Defaults returns a GlobalConfig populated with the orchestrator's built-in
// defaults, used whenever no config file is present or a key is unset.
func Defaults() GlobalConfig {
	return GlobalConfig{
		ContextWindow:                200_000,
		ContextWarnPct:               70,
		ContextCompactPct:            85,
		ContextKillPct:               95,
		StageTimeoutMs:               900_000,
		IterationTimeoutMs:           900_000,
		MaxFailures:                  3,
		MaxIterations:                50,
		MaxDecomposeDepth:            3,
		MaxRetriesPerTask:            3,
		InvestigateBatchSize:         8,
		VerifyBatchSize:              8,
		IssueSimilarityThreshold:     0.8,
		ProgressCheckIntervalSeconds: 0,
		CommitPrefix:                 "ralph:",
		RecentCommitsDisplay:         3,
		RalphDir:                     "ralph",
		LogDir:                       "/tmp/ralph-logs",
		Profile:                      "default",
	}
}

// configPath returns $HOME/.config/ralph/config.toml.
func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ralph", "config.toml"), nil
}

// rawDoc mirrors the on-disk shape: a flat top-level table, a deprecated
// [default] table, and named [profiles.*] overlay tables.
type rawDoc struct {
	Default  map[string]any            `toml:"default"`
	Profiles map[string]map[string]any `toml:"profiles"`

	// Top-level flat keys decode directly into GlobalConfig so a file with
	// no [default]/[profiles] sections at all still works. Only the keys
	// mergeNonZero copies take effect from the top level.
	GlobalConfig
}

// Load reads the global config file, applying the [default] section and any
// RALPH_PROFILE overlay on top of Defaults(). A missing or unparsable file
// yields Defaults() unchanged, matching the original CLI's graceful
// degradation.
func Load() GlobalConfig {
	cfg := Defaults()

	path, err := configPath()
	if err != nil {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var doc rawDoc
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return cfg
	}

	// Priority 1: top-level keys already decoded onto doc.GlobalConfig. Only
	// model, model_build, context_window, stage_timeout_ms, max_failures,
	// max_iterations, max_decompose_depth, ralph_dir and log_dir are applied
	// from the top level; other top-level keys are ignored.
	mergeNonZero(&cfg, doc.GlobalConfig)

	// Priority 2: [default] section (deprecated, kept for backward compat).
	if doc.Default != nil {
		applyOverlay(&cfg, doc.Default)
	}

	// Priority 3: RALPH_PROFILE overlay.
	if profile := os.Getenv("RALPH_PROFILE"); profile != "" {
		if overlay, ok := doc.Profiles[profile]; ok {
			applyOverlay(&cfg, overlay)
			cfg.Profile = profile
		}
	}

	return cfg
}

// AvailableProfiles returns the names and raw overlay tables of every
// [profiles.*] section in the config file, or an empty map if none exist.
func AvailableProfiles() map[string]map[string]any {
	path, err := configPath()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc rawDoc
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil
	}
	return doc.Profiles
}

func mergeNonZero(dst *GlobalConfig, src GlobalConfig) {
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.ModelBuild != "" {
		dst.ModelBuild = src.ModelBuild
	}
	if src.ContextWindow != 0 {
		dst.ContextWindow = src.ContextWindow
	}
	if src.StageTimeoutMs != 0 {
		dst.StageTimeoutMs = src.StageTimeoutMs
		dst.IterationTimeoutMs = src.StageTimeoutMs
	}
	if src.MaxFailures != 0 {
		dst.MaxFailures = src.MaxFailures
	}
	if src.MaxIterations != 0 {
		dst.MaxIterations = src.MaxIterations
	}
	if src.MaxDecomposeDepth != 0 {
		dst.MaxDecomposeDepth = src.MaxDecomposeDepth
	}
	if src.RalphDir != "" {
		dst.RalphDir = src.RalphDir
	}
	if src.LogDir != "" {
		dst.LogDir = src.LogDir
	}
}

// applyOverlay mutates dst in place using a loosely-typed TOML table,
// mirroring the original Python's "only overwrite known fields" behavior.
func applyOverlay(dst *GlobalConfig, overlay map[string]any) {
	if v, ok := overlay["model"].(string); ok {
		dst.Model = v
	}
	if v, ok := overlay["model_build"].(string); ok {
		dst.ModelBuild = v
	}
	if v, ok := toInt(overlay["context_window"]); ok {
		dst.ContextWindow = v
	}
	if v, ok := toInt(overlay["stage_timeout_ms"]); ok {
		dst.StageTimeoutMs = v
	}
	if v, ok := toInt(overlay["max_failures"]); ok {
		dst.MaxFailures = v
	}
	if v, ok := toInt(overlay["max_iterations"]); ok {
		dst.MaxIterations = v
	}
	if v, ok := toInt(overlay["max_decompose_depth"]); ok {
		dst.MaxDecomposeDepth = v
	}
	if v, ok := toInt(overlay["max_retries_per_task"]); ok {
		dst.MaxRetriesPerTask = v
	}
	if v, ok := toInt(overlay["investigate_batch_size"]); ok {
		dst.InvestigateBatchSize = v
	}
	if v, ok := toInt(overlay["verify_batch_size"]); ok {
		dst.VerifyBatchSize = v
	}
	if v, ok := overlay["issue_similarity_threshold"].(float64); ok {
		dst.IssueSimilarityThreshold = v
	}
	if v, ok := toInt(overlay["progress_check_interval"]); ok {
		dst.ProgressCheckIntervalSeconds = v
	}
	if v, ok := overlay["commit_prefix"].(string); ok {
		dst.CommitPrefix = v
	}
	if v, ok := overlay["ralph_dir"].(string); ok {
		dst.RalphDir = v
	}
	if v, ok := overlay["log_dir"].(string); ok {
		dst.LogDir = v
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
