package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/session"
)

// Actions lists the supported step names.
var Actions = []string{"click", "long_click", "double_click", "input", "swipe", "key", "launch", "terminate", "open_url", "wait", "sleep", "assert", "close_popup"}

// Execute runs a single step.
func Execute(ctx context.Context, s *session.Session, step Step) (StepResult, error) {
	p := step.Params
	switch step.Action {
	case "click", "long_click", "double_click":
		return executeClick(ctx, s, p, session.TapOptions{
			Long:   step.Action == "long_click",
			Double: step.Action == "double_click",
		})
	case "input":
		return executeInput(ctx, s, p)
	case "swipe":
		dir, err := model.ParseDirection(stringParam(p, "direction", "up"))
		if err != nil {
			return StepResult{}, err
		}
		return fromReport(s.Swipe(ctx, dir))
	case "key":
		name := stringParam(p, "name", stringParam(p, "key", ""))
		if name == "" {
			return StepResult{}, fmt.Errorf("key: specify name")
		}
		return fromReport(s.PressKey(ctx, name))
	case "launch":
		return fromReport(s.Launch(ctx, stringParam(p, "package", "")))
	case "terminate":
		return fromReport(s.Terminate(ctx, stringParam(p, "package", "")))
	case "open_url":
		return fromReport(s.OpenURL(ctx, stringParam(p, "url", "")))
	case "wait":
		return executeWait(ctx, s, p)
	case "sleep":
		return fromReport(s.Wait(ctx, durationParam(p, "seconds", time.Second)))
	case "assert":
		return executeAssert(ctx, s, p)
	case "close_popup":
		return executeClosePopup(ctx, s)
	default:
		return StepResult{}, fmt.Errorf("unknown step type %q; supported: %v", step.Action, Actions)
	}
}

// queryParam builds a locator query from id, text, x%/y% and description.
func queryParam(p map[string]any) (model.Query, error) {
	hint, err := model.ParseHint(stringParam(p, "hint", ""))
	if err != nil {
		return model.Query{}, err
	}
	q := model.Query{
		ID:          stringParam(p, "id", ""),
		Text:        stringParam(p, "text", ""),
		Description: stringParam(p, "description", ""),
		Hint:        hint,
	}
	if _, ok := p["x_percent"]; ok {
		q.Percent = &model.PercentPoint{X: floatParam(p, "x_percent", 0), Y: floatParam(p, "y_percent", 0)}
	}
	return q, q.Validate()
}

func signalsParam(p map[string]any) []model.Signal {
	var out []model.Signal
	if v := stringParam(p, "expect_text", ""); v != "" {
		out = append(out, model.Signal{Kind: model.SignalText, Value: v})
	}
	if v := stringParam(p, "expect_id", ""); v != "" {
		out = append(out, model.Signal{Kind: model.SignalElement, Value: v})
	}
	if v := stringParam(p, "expect_gone", ""); v != "" {
		out = append(out, model.Signal{Kind: model.SignalGone, Value: v})
	}
	return out
}

func executeClick(ctx context.Context, s *session.Session, p map[string]any, opts session.TapOptions) (StepResult, error) {
	opts.Expect = signalsParam(p)
	if _, ok := p["x"]; ok {
		pt := model.Point{X: intParam(p, "x", 0), Y: intParam(p, "y", 0)}
		if opts.Double {
			return fromReport(s.DoubleTapPoint(ctx, pt, opts.Expect...))
		}
		return fromReport(s.TapPoint(ctx, pt, opts.Expect...))
	}
	q, err := queryParam(p)
	if err != nil {
		return StepResult{}, err
	}
	opts.Wait = durationParam(p, "wait", 0)
	return fromReport(s.Tap(ctx, q, opts))
}

func executeInput(ctx context.Context, s *session.Session, p map[string]any) (StepResult, error) {
	value := stringParam(p, "value", "")
	if value == "" {
		return StepResult{}, fmt.Errorf("input: specify value")
	}
	if _, ok := p["x"]; ok {
		return fromReport(s.InputAt(ctx, model.Point{X: intParam(p, "x", 0), Y: intParam(p, "y", 0)}, value))
	}
	if stringParam(p, "id", "") == "" && stringParam(p, "text", "") == "" {
		return fromReport(s.Input(ctx, nil, value, 0))
	}
	q, err := queryParam(p)
	if err != nil {
		return StepResult{}, err
	}
	return fromReport(s.Input(ctx, &q, value, durationParam(p, "wait", 0)))
}

func executeWait(ctx context.Context, s *session.Session, p map[string]any) (StepResult, error) {
	if stringParam(p, "id", "") == "" && stringParam(p, "text", "") == "" {
		return fromReport(s.Wait(ctx, durationParam(p, "seconds", time.Second)))
	}
	q, err := queryParam(p)
	if err != nil {
		return StepResult{}, err
	}
	res, err := s.WaitFor(ctx, q, durationParam(p, "timeout", 0))
	if err != nil {
		return StepResult{}, err
	}
	pt := res.Point
	return StepResult{Strategy: res.Strategy, Point: &pt}, nil
}

func executeAssert(ctx context.Context, s *session.Session, p map[string]any) (StepResult, error) {
	text := stringParam(p, "text", "")
	if text == "" {
		return StepResult{}, fmt.Errorf("assert: specify text")
	}
	want := !boolParam(p, "absent", false)
	found, err := s.AssertText(ctx, text)
	if err != nil {
		return StepResult{}, err
	}
	if found != want {
		if want {
			return StepResult{}, fmt.Errorf("assert: text %q not on screen", text)
		}
		return StepResult{}, fmt.Errorf("assert: text %q still on screen", text)
	}
	return StepResult{Evidence: text}, nil
}

// executeClosePopup passes when there was no popup or the dismissal tap was
// verified. An unverified tap fails the step.
func executeClosePopup(ctx context.Context, s *session.Session) (StepResult, error) {
	report, err := s.ClosePopup(ctx)
	if err != nil {
		return StepResult{}, err
	}
	sr := StepResult{Evidence: fmt.Sprintf("closed=%t attempts=%d", report.Closed, report.Attempts)}
	if report.Closed || report.Attempts == 0 {
		return sr, nil
	}
	var last session.Report
	if n := len(report.Reports); n > 0 {
		last = report.Reports[n-1]
		sr.ChangeRatio = last.Result.ChangeRatio
		if last.Resolution != nil {
			pt := last.Resolution.Point
			sr.Strategy, sr.Point = last.Resolution.Strategy, &pt
		}
	}
	return sr, &model.VerificationError{
		Action: last.Action,
		Result: last.Result,
		Reason: fmt.Sprintf("popup still shown after %d attempt(s)", report.Attempts),
	}
}

// fromReport converts a session report. Verification failures keep the
// report details and still fail the step.
func fromReport(r session.Report, err error) (StepResult, error) {
	sr := StepResult{
		Evidence:     r.Result.Evidence,
		ChangeRatio:  r.Result.ChangeRatio,
		FallbackUsed: r.Result.FallbackUsed,
	}
	if r.Resolution != nil {
		pt := r.Resolution.Point
		sr.Strategy, sr.Point = r.Resolution.Strategy, &pt
	}
	return sr, err
}
