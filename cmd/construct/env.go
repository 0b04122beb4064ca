// Command construct is the thin CLI front end over the orchestrator
// packages: init, plan, construct, status, query, task, issue, validate,
// compact, log, set-spec, compare. No TUI, no colored dashboard, no shell
// completion — plain text and JSON output only.
package main

import (
	"os"
	"path/filepath"

	"github.com/ralph-dev/construct/internal/config"
	"github.com/ralph-dev/construct/internal/gitops"
	"github.com/ralph-dev/construct/internal/plan"
	"github.com/ralph-dev/construct/internal/stages"
	"github.com/ralph-dev/construct/internal/ticketstore"
)

// env bundles the paths and collaborators every subcommand needs, resolved
// once from the working directory and global config.
type env struct {
	RepoRoot  string
	Cfg       config.GlobalConfig
	RalphDir  string
	SpecsDir  string
	LogDir    string
	StatePath string
	PlanPath  string

	Store ticketstore.Client
	Git   *gitops.Runner
}

// tixBinName is the ticket-store CLI binary construct shells out to. It is
// resolved from PATH; RALPH_TIX_BIN overrides it, matching the original's
// configurable tix binary location — without hardcoding a project-specific
// path, since this port is meant to run against any repo's tix binary.
func tixBinName() string {
	if v := os.Getenv("RALPH_TIX_BIN"); v != "" {
		return v
	}
	return "tix"
}

// gitCallsPerSecond paces gitops.Runner's subprocess calls, matching
// budget.Tracker's remote-call pacing pattern.
const gitCallsPerSecond = 4.0

func newEnv() (*env, error) {
	repoRoot, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg := config.Load()

	resolve := func(dir string) string {
		if filepath.IsAbs(dir) {
			return dir
		}
		return filepath.Join(repoRoot, dir)
	}

	ralphDir := resolve(cfg.RalphDir)
	logDir := resolve(cfg.LogDir)

	return &env{
		RepoRoot:  repoRoot,
		Cfg:       cfg,
		RalphDir:  ralphDir,
		SpecsDir:  filepath.Join(ralphDir, "specs"),
		LogDir:    logDir,
		StatePath: filepath.Join(ralphDir, ".orchestration_state.json"),
		PlanPath:  filepath.Join(repoRoot, "plan.jsonl"),
		Store:     ticketstore.NewProcessClient(tixBinName(), repoRoot),
		Git:       gitops.New(repoRoot, gitCallsPerSecond),
	}, nil
}

// stageDeps builds the stages.Deps shared by the plan and construct
// subcommands. exec is executor.Run, passed in by the caller so this
// package stays free of a direct executor import cycle concern and tests
// can substitute a stub.
func (e *env) stageDeps(exec stages.ExecutorFunc) stages.Deps {
	return stages.Deps{
		Executor:     exec,
		Store:        e.Store,
		Config:       planConfigFrom(e.Cfg),
		Model:        e.Cfg.Model,
		WorkDir:      e.RepoRoot,
		TemplateDir:  e.RalphDir,
		RulesDirs:    []string{e.RepoRoot},
		StateDirRoot: e.LogDir,
	}
}

// planConfigFrom derives the per-plan stage config from global config,
// matching the fields the original CLI copies from its argparse defaults
// into the plan's embedded config section at `ralph plan` time.
func planConfigFrom(cfg config.GlobalConfig) plan.Config {
	c := plan.DefaultConfig()
	if cfg.StageTimeoutMs > 0 {
		c.TimeoutMs = cfg.StageTimeoutMs
	}
	if cfg.MaxIterations > 0 {
		c.MaxIterations = cfg.MaxIterations
	}
	if cfg.ContextWarnPct > 0 {
		c.ContextWarn = float64(cfg.ContextWarnPct) / 100
	}
	if cfg.ContextCompactPct > 0 {
		c.ContextCompact = float64(cfg.ContextCompactPct) / 100
	}
	if cfg.ContextKillPct > 0 {
		c.ContextKill = float64(cfg.ContextKillPct) / 100
	}
	return c
}
