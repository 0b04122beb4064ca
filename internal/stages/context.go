package stages

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/ralph-dev/construct/internal/plan"
)

const (
	killLogHeadLines = 50
	killLogTailLines = 100
)

// templateData is the placeholder set substituted into PROMPT_<stage>.md.
type templateData struct {
	Stage         string
	SpecFile      string
	SpecContents  string
	Task          *plan.Task
	BatchItems    []string
	KillReason    string
	KillLogHead   string
	KillLogTail   string
	ProjectRules  string
}

// loadTemplate reads ralph/PROMPT_<STAGE>.md from templateDir. A missing
// template falls back to a minimal built-in so a fresh checkout with no
// customized templates still produces a usable prompt.
func loadTemplate(templateDir, stage string) (*template.Template, error) {
	path := filepath.Join(templateDir, fmt.Sprintf("PROMPT_%s.md", stage))
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			body = []byte(DefaultTemplateBody(stage))
		} else {
			return nil, err
		}
	}
	return template.New(stage).Parse(string(body))
}

// DefaultTemplateBody returns the built-in PROMPT_<stage>.md body used when
// no customized template file exists. Exported so cmd/construct's init
// command can scaffold starter template files with the same content a
// fresh checkout would fall back to anyway.
func DefaultTemplateBody(stage string) string {
	return "# " + stage + `

Spec: {{.SpecFile}}

{{.SpecContents}}

{{if .Task}}Current task: {{.Task.Name}} ({{.Task.ID}})
{{.Task.Spec}}
{{end}}
{{if .BatchItems}}Batch items: {{range .BatchItems}}{{.}} {{end}}
{{end}}
{{if .KillReason}}Previous failure: {{.KillReason}}
--- log head ---
{{.KillLogHead}}
--- log tail ---
{{.KillLogTail}}
{{end}}
{{if .ProjectRules}}Project rules:
{{.ProjectRules}}
{{end}}
`
}

// loadProjectRules concatenates AGENTS.md/CLAUDE.md contents from the
// configured rule directories, if present. Missing files are silently
// skipped — project rules are optional context, not a requirement.
func loadProjectRules(dirs []string) string {
	var sb strings.Builder
	for _, dir := range dirs {
		for _, name := range []string{"AGENTS.md", "CLAUDE.md"} {
			body, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			sb.WriteString(string(body))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// headTailLines splits log into its first headLines and last tailLines,
// never embedding the full contents — required for DECOMPOSE, applied
// uniformly since no stage benefits from an unbounded kill log.
func headTailLines(log string, headLines, tailLines int) (head, tail string) {
	if log == "" {
		return "", ""
	}
	lines := strings.Split(strings.TrimRight(log, "\n"), "\n")
	if len(lines) <= headLines+tailLines {
		return strings.Join(lines, "\n"), ""
	}
	head = strings.Join(lines[:headLines], "\n")
	tail = strings.Join(lines[len(lines)-tailLines:], "\n")
	return head, tail
}

// composePrompt renders the stage's template against the supplied context,
// truncating any kill log to its head/tail per the DECOMPOSE rule (applied
// to every stage uniformly, since no stage should embed an unbounded log).
func composePrompt(d Deps, stage string, specFile, specContents string, task *plan.Task, batchItems []string, killReason, killLog string) (string, error) {
	tmpl, err := loadTemplate(d.TemplateDir, stage)
	if err != nil {
		return "", err
	}

	head, tail := headTailLines(killLog, killLogHeadLines, killLogTailLines)

	data := templateData{
		Stage:        stage,
		SpecFile:     specFile,
		SpecContents: specContents,
		Task:         task,
		BatchItems:   batchItems,
		KillReason:   killReason,
		KillLogHead:  head,
		KillLogTail:  tail,
		ProjectRules: loadProjectRules(d.RulesDirs),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
