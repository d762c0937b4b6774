// Package verify dispatches an action and confirms it had an observable
// effect on the screen.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/index"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"github.com/mj1618/mobile-mcp/internal/platform"
	"go.uber.org/zap"
)

// CaptureFunc takes and indexes a fresh snapshot.
type CaptureFunc func(ctx context.Context) (*index.Index, error)

// Verifier runs the snapshot, dispatch, poll and classify loop for one device.
type Verifier struct {
	driver  platform.Driver
	capture CaptureFunc
	tables  config.Tables
	cfg     config.VerifyConfig
}

// New returns a Verifier. capture must read the same device driver dispatches to.
func New(driver platform.Driver, capture CaptureFunc, tables config.Tables, cfg config.VerifyConfig) *Verifier {
	return &Verifier{driver: driver, capture: capture, tables: tables, cfg: cfg}
}

// Outcome is a verification result plus the last snapshot observed.
type Outcome struct {
	Result model.VerificationResult
	After  *index.Index
}

// ExecuteAndVerify snapshots the screen, dispatches action, then polls until
// the page changes by at least the configured ratio, one of expect is
// observed, or the timeout passes. A search key that has no effect is retried
// once as the enter key and the result is marked FallbackUsed.
//
// Driver failures return *model.DriverError at once. An effect that cannot be
// confirmed returns the unsuccessful result together with a
// *model.VerificationError.
func (v *Verifier) ExecuteAndVerify(ctx context.Context, action model.Action, expect ...model.Signal) (Outcome, error) {
	logger := observability.GetLogger().With(
		zap.String("device", v.driver.Serial()),
		zap.Stringer("action", action))

	before, err := v.capture(ctx)
	if err != nil {
		return Outcome{}, err
	}

	out, reason, err := v.attempt(ctx, before, action, expect)
	if err != nil {
		return out, err
	}

	if !out.Result.Success && v.isSearchKey(action) {
		alt, ok := v.enterFallback(action)
		if !ok {
			logger.Warn("search key had no effect and no enter key code is configured")
			return out, &model.VerificationError{Action: action, Result: out.Result, Reason: reason}
		}
		logger.Info("search key had no effect, retrying with enter")

		base := out.After
		if base == nil {
			base = before
		}
		samples := out.Result.Samples
		out, reason, err = v.attempt(ctx, base, alt, expect)
		out.Result.FallbackUsed = true
		out.Result.Samples += samples
		if err != nil {
			return out, err
		}
	}

	if !out.Result.Success {
		logger.Warn("verification failed", zap.String("reason", reason), zap.Float64("ratio", out.Result.ChangeRatio))
		return out, &model.VerificationError{Action: action, Result: out.Result, Reason: reason}
	}
	logger.Debug("verified", zap.String("evidence", out.Result.Evidence), zap.Int("samples", out.Result.Samples))

	if v.cfg.SettleDelay > 0 {
		if err := sleep(ctx, v.cfg.SettleDelay); err != nil {
			return out, err
		}
	}
	return out, nil
}

// attempt dispatches once and polls. The returned reason describes a failure.
func (v *Verifier) attempt(ctx context.Context, before *index.Index, action model.Action, expect []model.Signal) (Outcome, string, error) {
	if err := v.driver.Dispatch(ctx, action); err != nil {
		return Outcome{}, "", err
	}

	start := time.Now()
	deadline := start.Add(v.cfg.Timeout)
	var (
		out       Outcome
		lastParse error
	)
	for {
		if err := sleep(ctx, v.cfg.PollInterval); err != nil {
			return out, "", err
		}

		after, err := v.capture(ctx)
		var pe *model.ParseError
		switch {
		case errors.As(err, &pe):
			// A dump taken mid-transition can be truncated; sample again.
			lastParse = err
		case err != nil:
			return out, "", err
		default:
			out.After = after
			out.Result.Samples++
			diff := model.DiffElementsByHash(before.Elements(), after.Elements())
			ratio := diff.ChangeRatio()
			if ratio > out.Result.ChangeRatio {
				out.Result.ChangeRatio = ratio
			}
			if evidence, ok := observed(expect, before, after); ok {
				out.Result.Success = true
				out.Result.Evidence = evidence
			} else if ratio > 0 && ratio >= v.cfg.Threshold {
				out.Result.Success = true
				out.Result.Evidence = fmt.Sprintf("page changed (ratio %.3f)", ratio)
			}
		}

		if out.Result.Success || !time.Now().Before(deadline) {
			break
		}
	}
	out.Result.Elapsed = time.Since(start).Round(time.Millisecond).String()

	if out.Result.Success {
		return out, "", nil
	}
	switch {
	case out.Result.Samples == 0 && lastParse != nil:
		return out, "no readable snapshot: " + lastParse.Error(), nil
	case len(expect) > 0:
		return out, fmt.Sprintf("no expected signal observed and change ratio below %.3f", v.cfg.Threshold), nil
	default:
		return out, fmt.Sprintf("change ratio below %.3f", v.cfg.Threshold), nil
	}
}

// enterFallback returns a as an enter key press. ok is false when the key
// table has no usable enter code.
func (v *Verifier) enterFallback(a model.Action) (alt model.Action, ok bool) {
	enter, ok := v.tables.KeyCode("enter")
	if !ok {
		return model.Action{}, false
	}
	alt = a
	alt.Key, alt.KeyCode = "enter", enter
	return alt, true
}

func (v *Verifier) isSearchKey(a model.Action) bool {
	if a.Kind != model.ActionKey {
		return false
	}
	search, ok := v.tables.KeyCode("search")
	return ok && a.KeyCode == search
}

// observed reports the first signal that became true between before and
// after. A text that was already on screen has not appeared.
func observed(expect []model.Signal, before, after *index.Index) (string, bool) {
	for _, s := range expect {
		switch s.Kind {
		case model.SignalText:
			if after.HasText(s.Value) && !before.HasText(s.Value) {
				return s.Value, true
			}
		case model.SignalElement:
			if len(after.ByID(s.Value)) > 0 && len(before.ByID(s.Value)) == 0 {
				return "element " + s.Value + " appeared", true
			}
		case model.SignalGone:
			if before.HasText(s.Value) && !after.HasText(s.Value) {
				return s.Value + " disappeared", true
			}
		}
	}
	return "", false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
