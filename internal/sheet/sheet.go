// Package sheet reads test cases from a spreadsheet-like store and writes
// pass/fail outcomes back. Backends: a local YAML file, a local SQLite
// database, and a Feishu Bitable table.
package sheet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/flow"
)

// Case is one test case row.
type Case struct {
	// Ref is the backend's row handle, such as a Bitable record id.
	Ref     string `yaml:"-"                 json:"ref,omitempty"`
	ID      string `yaml:"id"                json:"id"`
	Name    string `yaml:"name"              json:"name"`
	Device  string `yaml:"device,omitempty"  json:"device,omitempty"`
	Package string `yaml:"package,omitempty" json:"package,omitempty"`
	// Steps is a YAML step list or comma-separated instructions.
	Steps  string `yaml:"steps"             json:"steps"`
	Expect string `yaml:"expect,omitempty"  json:"expect,omitempty"`
	Status Status `yaml:"status,omitempty"  json:"status,omitempty"`
	Reason string `yaml:"reason,omitempty"  json:"reason,omitempty"`
}

// Status is a case outcome.
type Status string

const (
	StatusPending Status = ""
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// Result is the outcome written back for one case.
type Result struct {
	Ref      string        `yaml:"-"                json:"ref,omitempty"`
	CaseID   string        `yaml:"case_id"          json:"case_id"`
	Device   string        `yaml:"device"           json:"device"`
	Status   Status        `yaml:"status"           json:"status"`
	Reason   string        `yaml:"reason,omitempty" json:"reason,omitempty"`
	Duration time.Duration `yaml:"duration"         json:"duration"`
	Script   string        `yaml:"script,omitempty" json:"script,omitempty"`
	Finished time.Time     `yaml:"finished"         json:"finished"`
}

// Source is a case store.
type Source interface {
	ReadCases(ctx context.Context) ([]Case, error)
	WriteResult(ctx context.Context, r Result) error
}

// Open returns the backend selected by cfg.
func Open(ctx context.Context, cfg config.SheetConfig) (Source, error) {
	switch cfg.Backend {
	case "yaml":
		return NewYAMLFile(cfg.Path), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "feishu":
		return NewFeishu(cfg.Feishu, nil)
	default:
		return nil, fmt.Errorf("unknown sheet backend %q", cfg.Backend)
	}
}

// Plan turns a case into steps: an optional launch of the case's package,
// the case steps, and an assertion for the expected text.
func (c Case) Plan() ([]flow.Step, error) {
	body := strings.TrimSpace(c.Steps)
	if body == "" {
		return nil, fmt.Errorf("case %s: no steps", c.ID)
	}

	steps, err := flow.Parse([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", c.ID, err)
	}

	if c.Package != "" && (len(steps) == 0 || steps[0].Action != "launch") {
		steps = append([]flow.Step{{Action: "launch", Params: map[string]any{"package": c.Package}}}, steps...)
	}
	if expect := strings.TrimSpace(c.Expect); expect != "" {
		steps = append(steps, flow.Step{Action: "assert", Params: map[string]any{"text": expect}, Source: "expect"})
	}
	return steps, nil
}
