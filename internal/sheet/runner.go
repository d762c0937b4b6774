package sheet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mj1618/mobile-mcp/internal/flow"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"github.com/mj1618/mobile-mcp/internal/recorder"
	"github.com/mj1618/mobile-mcp/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner executes cases across devices. Cases for one device run one after
// another on that device's session; devices run in parallel.
type Runner struct {
	Sessions *session.Manager
	Source   Source

	// Devices receive cases that name no device, round robin.
	Devices []string
	// Emit, when set, renders a script for every passed case into ScriptDir.
	Emit      recorder.Template
	ScriptDir string
	// Retry reruns a case once when it failed to find an element or read
	// the screen.
	Retry bool

	now func() time.Time
}

// Summary reports a batch run.
type Summary struct {
	Total   int      `yaml:"total"   json:"total"`
	Passed  int      `yaml:"passed"  json:"passed"`
	Failed  int      `yaml:"failed"  json:"failed"`
	Results []Result `yaml:"results" json:"results"`
}

// Assign groups cases by device. Cases without a device are spread over
// devices in order; with no devices they go to the empty serial, which the
// session manager resolves to the only online device.
func Assign(cases []Case, devices []string) map[string][]Case {
	out := make(map[string][]Case)
	next := 0
	for _, c := range cases {
		serial := c.Device
		if serial == "" && len(devices) > 0 {
			serial = devices[next%len(devices)]
			next++
		}
		out[serial] = append(out[serial], c)
	}
	return out
}

// Run executes cases and writes each outcome back to the source. Case
// failures are reported in the summary; the returned error is for failures
// to open a device or write a result.
func (r *Runner) Run(ctx context.Context, cases []Case) (Summary, error) {
	now := r.now
	if now == nil {
		now = time.Now
	}
	log := observability.GetLogger()

	var (
		mu      sync.Mutex
		summary = Summary{Total: len(cases)}
	)
	g, ctx := errgroup.WithContext(ctx)
	for serial, group := range Assign(cases, r.Devices) {
		g.Go(func() error {
			s, err := r.Sessions.Get(ctx, serial)
			if err != nil {
				return fmt.Errorf("device %q: %w", serial, err)
			}
			for _, c := range group {
				if err := ctx.Err(); err != nil {
					return err
				}
				res := r.runCase(ctx, s, c, now)
				log.Info("case finished",
					zap.String("case", c.ID),
					zap.String("device", s.Serial()),
					zap.String("status", string(res.Status)),
					zap.String("reason", res.Reason))
				if err := r.Source.WriteResult(ctx, res); err != nil {
					return fmt.Errorf("write result for %s: %w", c.ID, err)
				}
				mu.Lock()
				summary.Results = append(summary.Results, res)
				if res.Status == StatusPassed {
					summary.Passed++
				} else {
					summary.Failed++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	sort.SliceStable(summary.Results, func(i, j int) bool { return summary.Results[i].CaseID < summary.Results[j].CaseID })
	return summary, err
}

func (r *Runner) runCase(ctx context.Context, s *session.Session, c Case, now func() time.Time) Result {
	start := now()
	res := Result{Ref: c.Ref, CaseID: c.ID, Device: s.Serial(), Status: StatusFailed}
	finish := func() Result {
		res.Finished = now()
		res.Duration = res.Finished.Sub(start)
		return res
	}

	steps, err := c.Plan()
	if err != nil {
		res.Reason = err.Error()
		return finish()
	}

	out := r.attempt(ctx, s, steps)
	if !out.OK && r.Retry && retryable(out) {
		out = r.attempt(ctx, s, steps)
	}
	if !out.OK {
		res.Reason = out.Error
		return finish()
	}

	res.Status = StatusPassed
	if r.Emit != "" && r.ScriptDir != "" {
		path, err := r.writeScript(s, c)
		if err != nil {
			res.Reason = "passed; " + err.Error()
		}
		res.Script = path
	}
	return finish()
}

func (r *Runner) attempt(ctx context.Context, s *session.Session, steps []flow.Step) flow.Result {
	s.ClearHistory()
	return flow.Run(ctx, s, steps, flow.Options{StopOnError: true})
}

// retryable reports whether the failed step may pass on a fresh snapshot.
// Unverified actions are not retried.
func retryable(res flow.Result) bool {
	if len(res.Results) == 0 {
		return false
	}
	switch res.Results[len(res.Results)-1].ErrorKind {
	case "not_found", "parse_error":
		return true
	default:
		return false
	}
}

func (r *Runner) writeScript(s *session.Session, c Case) (string, error) {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	script, err := s.GenerateScript(r.Emit, recorder.Meta{Name: name, Package: c.Package})
	if err != nil {
		return "", fmt.Errorf("emit script: %w", err)
	}
	if err := os.MkdirAll(r.ScriptDir, 0o755); err != nil {
		return "", fmt.Errorf("create script dir: %w", err)
	}
	path := filepath.Join(r.ScriptDir, r.Emit.FileName(c.ID+"_"+s.Serial()))
	if err := os.WriteFile(path, script, 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	return path, nil
}
