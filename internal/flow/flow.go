// Package flow runs scripted step lists against a device session. Steps come
// from YAML (one action key per list item, as in `mobile-mcp do`) or from
// terse Chinese instructions such as "启动应用com.example，点击登录".
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"github.com/mj1618/mobile-mcp/internal/session"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Step is one action with its parameters.
type Step struct {
	Action string         `yaml:"action"           json:"action"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Source string         `yaml:"source,omitempty" json:"source,omitempty"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Step         int                  `yaml:"step"                    json:"step"`
	OK           bool                 `yaml:"ok"                      json:"ok"`
	Action       string               `yaml:"action"                  json:"action"`
	Error        string               `yaml:"error,omitempty"         json:"error,omitempty"`
	ErrorKind    string               `yaml:"error_kind,omitempty"    json:"error_kind,omitempty"`
	Strategy     model.Strategy       `yaml:"strategy,omitempty"      json:"strategy,omitempty"`
	Point        *model.Point         `yaml:"point,omitempty"         json:"point,omitempty"`
	Evidence     string               `yaml:"evidence,omitempty"      json:"evidence,omitempty"`
	ChangeRatio  float64              `yaml:"change_ratio,omitempty"  json:"change_ratio,omitempty"`
	FallbackUsed bool                 `yaml:"fallback_used,omitempty" json:"fallback_used,omitempty"`
	Elapsed      string               `yaml:"elapsed,omitempty"       json:"elapsed,omitempty"`
	Attempts     []model.Attempt      `yaml:"attempts,omitempty"      json:"attempts,omitempty"`
	Vision       *model.VisionRequest `yaml:"vision,omitempty"        json:"vision,omitempty"`
}

// Result is the outcome of a step list.
type Result struct {
	OK        bool         `yaml:"ok"              json:"ok"`
	Device    string       `yaml:"device"          json:"device"`
	Steps     int          `yaml:"steps"           json:"steps"`
	Completed int          `yaml:"completed"       json:"completed"`
	Error     string       `yaml:"error,omitempty" json:"error,omitempty"`
	Results   []StepResult `yaml:"results"         json:"results"`
}

// Err returns the first failure as an error, or nil when every step passed.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return errors.New(r.Error)
}

// ParseSteps reads a YAML list where each item maps one action name to its
// parameters:
//
//	- click: { text: "登录" }
//	- input: { id: "username", value: "alice" }
//	- key: { name: "search" }
func ParseSteps(data []byte) ([]Step, error) {
	var raw []map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML steps: %w", err)
	}
	steps := make([]Step, 0, len(raw))
	for i, item := range raw {
		if len(item) != 1 {
			return nil, fmt.Errorf("step %d: expected exactly one action key, got %d", i+1, len(item))
		}
		for action, params := range item {
			if params == nil {
				params = map[string]any{}
			}
			steps = append(steps, Step{Action: action, Params: params})
		}
	}
	return steps, nil
}

// Parse reads a step list in either form: a YAML list when the text starts
// with "-", natural-language instructions otherwise.
func Parse(data []byte) ([]Step, error) {
	body := strings.TrimSpace(string(data))
	if body == "" {
		return nil, errors.New("no steps given")
	}
	if strings.HasPrefix(body, "-") {
		return ParseSteps([]byte(body))
	}
	return ParseNatural(body)
}

// Options control a run.
type Options struct {
	StopOnError bool
}

// Run executes steps in order on s. With StopOnError the run ends at the
// first failed step.
func Run(ctx context.Context, s *session.Session, steps []Step, opts Options) Result {
	log := observability.GetLogger().With(zap.String("device", s.Serial()))
	res := Result{Device: s.Serial(), Steps: len(steps), Results: make([]StepResult, 0, len(steps))}

	for i, step := range steps {
		start := time.Now()
		sr, err := Execute(ctx, s, step)
		sr.Step = i + 1
		sr.Action = step.Action
		sr.Elapsed = time.Since(start).Round(time.Millisecond).String()
		if err != nil {
			sr.OK = false
			sr.Error = err.Error()
			sr.ErrorKind = model.ErrorKind(err)
			describeFailure(&sr, err)
			res.Results = append(res.Results, sr)
			if res.Error == "" {
				res.Error = fmt.Sprintf("step %d (%s): %s", sr.Step, step.Action, err)
			}
			log.Warn("step failed", zap.Int("step", sr.Step), zap.String("action", step.Action), zap.Error(err))
			if opts.StopOnError || ctx.Err() != nil || sr.ErrorKind == "driver_error" {
				break
			}
			continue
		}
		sr.OK = true
		res.Completed++
		res.Results = append(res.Results, sr)
	}
	res.OK = res.Error == ""
	return res
}

func describeFailure(sr *StepResult, err error) {
	var (
		nf *model.NotFoundError
		ve *model.VerificationError
	)
	switch {
	case errors.As(err, &nf):
		sr.Attempts = nf.Attempts
		sr.Vision = nf.Vision
	case errors.As(err, &ve):
		sr.ChangeRatio = ve.Result.ChangeRatio
		sr.Evidence = ve.Reason
	}
}
