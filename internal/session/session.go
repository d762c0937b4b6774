// Package session binds the locator, verifier, popup detector and recorder to
// one device. Every operation on a session is serialized; sessions for
// different devices share no mutable state.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/index"
	"github.com/mj1618/mobile-mcp/internal/locator"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"github.com/mj1618/mobile-mcp/internal/platform"
	"github.com/mj1618/mobile-mcp/internal/popup"
	"github.com/mj1618/mobile-mcp/internal/recorder"
	"github.com/mj1618/mobile-mcp/internal/shot"
	"github.com/mj1618/mobile-mcp/internal/verify"
	"go.uber.org/zap"
)

// elementPollInterval is how often WaitFor and waited taps re-read the screen.
const elementPollInterval = 500 * time.Millisecond

// ErrUnsupported is returned when the driver lacks an optional capability.
var ErrUnsupported = errors.New("not supported by this device driver")

// Options are the immutable settings a session is built with.
type Options struct {
	Tables     config.Tables
	Verify     config.VerifyConfig
	Locator    config.LocatorConfig
	Popup      config.PopupConfig
	Screenshot config.ScreenshotConfig
	CacheTTL   time.Duration
	Recognizer platform.Recognizer
}

// OptionsFromConfig copies session settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Tables:     config.NewTables(cfg),
		Verify:     cfg.Verify,
		Locator:    cfg.Locator,
		Popup:      cfg.Popup,
		Screenshot: cfg.Screenshot,
		CacheTTL:   cfg.Server.CacheTTL,
	}
}

// Report describes one executed action.
type Report struct {
	Action     model.Action             `yaml:"action"               json:"action"`
	Resolution *model.Resolution        `yaml:"resolution,omitempty" json:"resolution,omitempty"`
	Result     model.VerificationResult `yaml:"result"               json:"result"`
	Seq        int                      `yaml:"seq"                  json:"seq"`
}

// Session is the per-device automation context.
type Session struct {
	mu       sync.Mutex
	driver   platform.Driver
	opts     Options
	locator  *locator.Locator
	verifier *verify.Verifier
	popup    *popup.Detector
	recorder *recorder.Recorder
	cache    *snapshotCache
	screen   model.Size
	broken   error
}

// New returns a session for driver.
func New(driver platform.Driver, opts Options) *Session {
	s := &Session{
		driver:   driver,
		opts:     opts,
		popup:    popup.New(opts.Tables, opts.Popup.IconMaxRatio),
		recorder: recorder.New(),
		cache:    newSnapshotCache(opts.CacheTTL),
	}
	locOpts := []locator.Option{}
	if opts.Recognizer != nil {
		locOpts = append(locOpts, locator.WithRecognizer(opts.Recognizer))
	}
	if shooter, ok := driver.(platform.Screenshotter); ok {
		locOpts = append(locOpts, locator.WithScreenshotter(shooter))
	}
	s.locator = locator.New(opts.Tables, locOpts...)
	s.verifier = verify.New(driver, s.capture, opts.Tables, opts.Verify)
	return s
}

// Serial returns the device serial.
func (s *Session) Serial() string { return s.driver.Serial() }

func (s *Session) logger() *zap.Logger {
	return observability.GetLogger().With(zap.String("device", s.driver.Serial()))
}

// check fails fast once a driver error has broken the session.
func (s *Session) check() error {
	if s.broken != nil {
		return &model.DriverError{
			Device: s.driver.Serial(),
			Op:     "session",
			Err:    fmt.Errorf("unusable until reset: %w", s.broken),
		}
	}
	return nil
}

// fail marks the session broken when err is a driver error. Cancellation is
// the caller's doing and leaves the session usable.
func (s *Session) fail(err error) error {
	var de *model.DriverError
	if errors.As(err, &de) && !errors.Is(err, context.Canceled) && s.broken == nil {
		s.broken = err
		s.cache.invalidate()
		s.logger().Error("session broken by driver error", zap.Error(err))
	}
	return err
}

// Reset clears a broken state and cached device data.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = nil
	s.screen = model.Size{}
	s.cache.invalidate()
}

// Reconnect probes the device of a broken session and clears the broken
// state when it answers. It is a no-op on a healthy session.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken == nil {
		return nil
	}
	size, err := s.driver.ScreenSize(ctx)
	if err != nil {
		return err
	}
	s.logger().Info("session recovered", zap.NamedError("cause", s.broken))
	s.broken = nil
	s.screen = size
	s.cache.invalidate()
	return nil
}

// Broken returns the driver error that broke the session, if any.
func (s *Session) Broken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

// capture takes and indexes a fresh snapshot. Callers hold s.mu.
func (s *Session) capture(ctx context.Context) (*index.Index, error) {
	screen, err := s.screenSize(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := s.driver.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return index.Parse(raw, index.Options{Device: s.driver.Serial(), Screen: screen, TakenAt: time.Now()})
}

func (s *Session) screenSize(ctx context.Context) (model.Size, error) {
	if s.screen.Valid() {
		return s.screen, nil
	}
	size, err := s.driver.ScreenSize(ctx)
	if err != nil {
		return model.Size{}, err
	}
	s.screen = size
	return size, nil
}

// ScreenSize returns the device screen size.
func (s *Session) ScreenSize(ctx context.Context) (model.Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return model.Size{}, err
	}
	size, err := s.screenSize(ctx)
	return size, s.fail(err)
}

// Snapshot returns the current screen index, reusing a snapshot taken within
// the cache TTL unless fresh is set.
func (s *Session) Snapshot(ctx context.Context, fresh bool) (*index.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, fresh)
}

func (s *Session) snapshot(ctx context.Context, fresh bool) (*index.Index, error) {
	if fresh {
		s.cache.invalidate()
	}
	idx, err := s.cache.get(ctx, s.capture)
	return idx, s.fail(err)
}

// Elements returns the filtered, non-empty elements of the current screen.
func (s *Session) Elements(ctx context.Context, opts model.FilterOptions) (*index.Index, []model.Element, error) {
	idx, err := s.Snapshot(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	return idx, model.FilterElements(model.PruneEmptyGroups(idx.Elements()), opts), nil
}

// resolve locates q, re-reading the screen until wait passes when the target
// is not there yet. Callers hold s.mu.
func (s *Session) resolve(ctx context.Context, q model.Query, wait time.Duration) (model.Resolution, error) {
	deadline := time.Now().Add(wait)
	fresh := false
	for {
		idx, err := s.snapshot(ctx, fresh)
		if err != nil {
			return model.Resolution{}, err
		}
		res, err := s.locator.Resolve(ctx, q, idx)
		if err == nil {
			return res, nil
		}
		err = s.fail(err)
		var nf *model.NotFoundError
		if !errors.As(err, &nf) || !time.Now().Before(deadline) {
			return model.Resolution{}, err
		}
		if serr := sleep(ctx, min(elementPollInterval, time.Until(deadline))); serr != nil {
			return model.Resolution{}, serr
		}
		fresh = true
	}
}

// act dispatches action with verification and records it. A verification
// failure still returns the report with the error.
func (s *Session) act(ctx context.Context, action model.Action, res *model.Resolution, expect []model.Signal) (Report, error) {
	out, err := s.verifier.ExecuteAndVerify(ctx, action, expect...)
	if out.After != nil {
		s.cache.put(out.After)
	} else {
		s.cache.invalidate()
	}
	var ve *model.VerificationError
	if err != nil && !errors.As(err, &ve) {
		return Report{}, s.fail(err)
	}

	rec := model.ActionRecord{
		Kind:         action.Kind,
		Value:        recordValue(action, out.Result),
		Point:        action.Point,
		To:           action.To,
		Screen:       s.screen,
		Success:      out.Result.Success,
		Evidence:     out.Result.Evidence,
		FallbackUsed: out.Result.FallbackUsed,
	}
	if res != nil {
		rec.Strategy = res.Strategy
		rec.Locator = locatorValue(*res)
	}
	rec = s.recorder.Append(rec)

	s.logger().Info("action",
		zap.Stringer("action", action),
		zap.Bool("success", out.Result.Success),
		zap.String("evidence", out.Result.Evidence),
		zap.Bool("fallback_used", out.Result.FallbackUsed))
	return Report{Action: action, Resolution: res, Result: out.Result, Seq: rec.Seq}, err
}

func recordValue(a model.Action, r model.VerificationResult) string {
	switch a.Kind {
	case model.ActionInput:
		return a.Text
	case model.ActionKey:
		if r.FallbackUsed && r.Success {
			return "enter"
		}
		return a.Key
	case model.ActionLaunch, model.ActionTerminate:
		return a.Package
	case model.ActionOpenURL:
		return a.Text
	case model.ActionWait:
		return a.Duration.String()
	default:
		return ""
	}
}

func locatorValue(res model.Resolution) string {
	switch res.Strategy {
	case model.StrategyID:
		return res.Element.ResourceID
	case model.StrategyText:
		if res.Element.Text != "" {
			return res.Element.Text
		}
		return res.Element.Description
	default:
		return ""
	}
}

// TapOptions tune a tap. Long wins over Double.
type TapOptions struct {
	Long   bool
	Double bool
	Wait   time.Duration
	Expect []model.Signal
}

func (o TapOptions) kind() model.ActionKind {
	switch {
	case o.Long:
		return model.ActionLongClick
	case o.Double:
		return model.ActionDoubleClick
	default:
		return model.ActionClick
	}
}

// Tap resolves q and taps the element.
func (s *Session) Tap(ctx context.Context, q model.Query, opts TapOptions) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return Report{}, err
	}
	res, err := s.resolve(ctx, q, opts.Wait)
	if err != nil {
		return Report{}, err
	}
	return s.act(ctx, model.Action{Kind: opts.kind(), Point: res.Point}, &res, opts.Expect)
}

// TapPoint taps absolute device coordinates.
func (s *Session) TapPoint(ctx context.Context, pt model.Point, expect ...model.Signal) (Report, error) {
	return s.tapPoint(ctx, model.ActionClick, pt, expect)
}

// DoubleTapPoint double-taps absolute device coordinates.
func (s *Session) DoubleTapPoint(ctx context.Context, pt model.Point, expect ...model.Signal) (Report, error) {
	return s.tapPoint(ctx, model.ActionDoubleClick, pt, expect)
}

func (s *Session) tapPoint(ctx context.Context, kind model.ActionKind, pt model.Point, expect []model.Signal) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return Report{}, err
	}
	screen, err := s.screenSize(ctx)
	if err != nil {
		return Report{}, s.fail(err)
	}
	if !(model.Rect{0, 0, screen.Width, screen.Height}).Contains(pt) {
		return Report{}, fmt.Errorf("point (%d,%d) is outside the %dx%d screen", pt.X, pt.Y, screen.Width, screen.Height)
	}
	res := model.Resolution{Point: pt, Strategy: model.StrategyCoords, Matches: 1, Synthetic: true}
	return s.act(ctx, model.Action{Kind: kind, Point: pt}, &res, expect)
}

// Input types text. When q is set the target is resolved and tapped first.
// The typed text appearing on screen counts as evidence.
func (s *Session) Input(ctx context.Context, q *model.Query, text string, wait time.Duration) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return Report{}, err
	}
	action := model.Action{Kind: model.ActionInput, Text: text}
	var res *model.Resolution
	if q != nil {
		r, err := s.resolve(ctx, *q, wait)
		if err != nil {
			return Report{}, err
		}
		res = &r
		action.Point = r.Point
	}
	return s.act(ctx, action, res, []model.Signal{{Kind: model.SignalText, Value: text}})
}

// InputAt taps pt and types text.
func (s *Session) InputAt(ctx context.Context, pt model.Point, text string) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return Report{}, err
	}
	res := model.Resolution{Point: pt, Strategy: model.StrategyCoords, Matches: 1, Synthetic: true}
	action := model.Action{Kind: model.ActionInput, Point: pt, Text: text}
	return s.act(ctx, action, &res, []model.Signal{{Kind: model.SignalText, Value: text}})
}

// Swipe swipes across the screen in direction d.
func (s *Session) Swipe(ctx context.Context, d model.Direction) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return Report{}, err
	}
	screen, err := s.screenSize(ctx)
	if err != nil {
		return Report{}, s.fail(err)
	}
	from, to := model.SwipePoints(d, screen)
	return s.act(ctx, model.Action{Kind: model.ActionSwipe, Point: from, To: to, Duration: 300 * time.Millisecond}, nil, nil)
}

// PressKey presses a named key, alias, or numeric key code.
func (s *Session) PressKey(ctx context.Context, key string) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return Report{}, err
	}
	code, ok := s.opts.Tables.KeyCode(key)
	if !ok {
		return Report{}, fmt.Errorf("unknown key %q", key)
	}
	action := model.Action{Kind: model.ActionKey, Key: s.opts.Tables.KeyName(code), KeyCode: code}
	return s.act(ctx, action, nil, nil)
}

// Launch starts an application by package name.
func (s *Session) Launch(ctx context.Context, pkg string) (Report, error) {
	return s.appAction(ctx, model.ActionLaunch, pkg)
}

// Terminate force-stops an application.
func (s *Session) Terminate(ctx context.Context, pkg string) (Report, error) {
	return s.appAction(ctx, model.ActionTerminate, pkg)
}

func (s *Session) appAction(ctx context.Context, kind model.ActionKind, pkg string) (Report, error) {
	if pkg == "" {
		return Report{}, fmt.Errorf("%s: package name is required", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return Report{}, err
	}
	return s.act(ctx, model.Action{Kind: kind, Package: pkg}, nil, nil)
}

// OpenURL opens rawURL with the device's default handler.
func (s *Session) OpenURL(ctx context.Context, rawURL string) (Report, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return Report{}, fmt.Errorf("open_url: %q is not an absolute url", rawURL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return Report{}, err
	}
	return s.act(ctx, model.Action{Kind: model.ActionOpenURL, Text: rawURL}, nil, nil)
}

// Wait pauses for d and records the pause.
func (s *Session) Wait(ctx context.Context, d time.Duration) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return Report{}, err
	}
	action := model.Action{Kind: model.ActionWait, Duration: d}
	if err := s.driver.Dispatch(ctx, action); err != nil {
		return Report{}, s.fail(err)
	}
	s.cache.invalidate()
	result := model.VerificationResult{Success: true, Evidence: "waited " + d.String(), Elapsed: d.String()}
	rec := s.recorder.Append(model.ActionRecord{Kind: model.ActionWait, Value: d.String(), Screen: s.screen, Success: true, Evidence: result.Evidence})
	return Report{Action: action, Result: result, Seq: rec.Seq}, nil
}

// WaitFor polls until q resolves or timeout passes.
func (s *Session) WaitFor(ctx context.Context, q model.Query, timeout time.Duration) (model.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return model.Resolution{}, err
	}
	if timeout <= 0 {
		timeout = s.opts.Locator.ElementWait
	}
	s.cache.invalidate()
	return s.resolve(ctx, q, timeout)
}

// AssertText reports whether text is on a fresh snapshot, exactly or as a
// substring of some element.
func (s *Session) AssertText(ctx context.Context, text string) (bool, error) {
	idx, err := s.Snapshot(ctx, true)
	if err != nil {
		return false, err
	}
	return idx.HasText(text), nil
}

// DetectPopup lists dismissal candidates on the current screen. It never acts.
func (s *Session) DetectPopup(ctx context.Context) ([]popup.Candidate, error) {
	idx, err := s.Snapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	return s.popup.Candidates(idx), nil
}

// PopupShown reports whether idx shows a popup with a dismissal control.
func (s *Session) PopupShown(idx *index.Index) bool {
	_, ok := s.popup.Scan(idx)
	return ok
}

// PopupReport describes a popup dismissal run.
type PopupReport struct {
	Closed   bool     `yaml:"closed"            json:"closed"`
	Attempts int      `yaml:"attempts"          json:"attempts"`
	Reports  []Report `yaml:"reports,omitempty" json:"reports,omitempty"`
}

// ClosePopup taps the best dismissal candidate until none remain or the
// configured attempts run out. Closed is false when there was nothing to close
// or a tap could not be verified.
func (s *Session) ClosePopup(ctx context.Context) (PopupReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return PopupReport{}, err
	}
	attempts := max(s.opts.Popup.MaxAttempts, 1)

	var report PopupReport
	for report.Attempts < attempts {
		idx, err := s.snapshot(ctx, true)
		if err != nil {
			return report, err
		}
		el, ok := s.popup.Scan(idx)
		if !ok {
			return report, nil
		}
		report.Attempts++
		res := model.Resolution{Element: el, Point: el.Center(), Strategy: model.StrategyText, Matches: 1}
		if el.Label() == "" {
			res.Strategy = model.StrategyID
			if el.ResourceID == "" {
				res.Strategy = model.StrategyCoords
			}
		}
		r, err := s.act(ctx, model.Action{Kind: model.ActionClick, Point: res.Point}, &res, nil)
		var ve *model.VerificationError
		switch {
		case errors.As(err, &ve):
			report.Reports = append(report.Reports, r)
			report.Closed = false
			return report, nil
		case err != nil:
			return report, err
		}
		report.Reports = append(report.Reports, r)
		report.Closed = true
	}
	return report, nil
}

// Screenshot captures, compresses and optionally annotates the screen.
func (s *Session) Screenshot(ctx context.Context, annotate bool) (shot.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return shot.Image{}, err
	}
	shooter, ok := s.driver.(platform.Screenshotter)
	if !ok {
		return shot.Image{}, fmt.Errorf("screenshot: %w", ErrUnsupported)
	}
	raw, err := shooter.Screenshot(ctx)
	if err != nil {
		return shot.Image{}, s.fail(err)
	}
	img, err := shot.Decode(raw)
	if err != nil {
		return shot.Image{}, err
	}
	if annotate {
		idx, err := s.snapshot(ctx, false)
		if err != nil {
			return shot.Image{}, err
		}
		elements := model.FilterElements(idx.Elements(), model.FilterOptions{InteractiveOnly: true})
		img = shot.Annotate(img, elements, idx.Screen(), shot.LabelIndex)
	}
	return shot.Compress(img, s.opts.Screenshot.MaxWidth, s.opts.Screenshot.Quality)
}

// ListApps lists installed packages.
func (s *Session) ListApps(ctx context.Context, thirdPartyOnly bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	apps, ok := s.driver.(platform.AppManager)
	if !ok {
		return nil, fmt.Errorf("list apps: %w", ErrUnsupported)
	}
	pkgs, err := apps.ListPackages(ctx, thirdPartyOnly)
	return pkgs, s.fail(err)
}

// CurrentApp returns the foreground package.
func (s *Session) CurrentApp(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return "", err
	}
	apps, ok := s.driver.(platform.AppManager)
	if !ok {
		return "", fmt.Errorf("current app: %w", ErrUnsupported)
	}
	pkg, err := apps.CurrentPackage(ctx)
	return pkg, s.fail(err)
}

// InstallApp installs a local APK file.
func (s *Session) InstallApp(ctx context.Context, apkPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	inst, ok := s.driver.(platform.Installer)
	if !ok {
		return fmt.Errorf("install app: %w", ErrUnsupported)
	}
	if err := inst.Install(ctx, apkPath); err != nil {
		return s.fail(err)
	}
	s.logger().Info("installed", zap.String("apk", apkPath))
	return nil
}

// UninstallApp removes an application by package name.
func (s *Session) UninstallApp(ctx context.Context, pkg string) error {
	if pkg == "" {
		return fmt.Errorf("uninstall app: package name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	inst, ok := s.driver.(platform.Installer)
	if !ok {
		return fmt.Errorf("uninstall app: %w", ErrUnsupported)
	}
	if err := inst.Uninstall(ctx, pkg); err != nil {
		return s.fail(err)
	}
	s.cache.invalidate()
	s.logger().Info("uninstalled", zap.String("package", pkg))
	return nil
}

// Orientation returns the display orientation.
func (s *Session) Orientation(ctx context.Context) (model.Orientation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return "", err
	}
	rot, ok := s.driver.(platform.Rotator)
	if !ok {
		return "", fmt.Errorf("orientation: %w", ErrUnsupported)
	}
	o, err := rot.Orientation(ctx)
	return o, s.fail(err)
}

// SetOrientation locks the display to o and returns the new screen size.
// Cached snapshots and the cached size are dropped since every coordinate
// changes with the rotation.
func (s *Session) SetOrientation(ctx context.Context, o model.Orientation) (model.Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return model.Size{}, err
	}
	rot, ok := s.driver.(platform.Rotator)
	if !ok {
		return model.Size{}, fmt.Errorf("set orientation: %w", ErrUnsupported)
	}
	if err := rot.SetOrientation(ctx, o); err != nil {
		return model.Size{}, s.fail(err)
	}
	s.screen = model.Size{}
	s.cache.invalidate()
	size, err := s.screenSize(ctx)
	if err != nil {
		return model.Size{}, s.fail(err)
	}
	s.logger().Info("orientation set", zap.String("orientation", string(o)), zap.Int("width", size.Width), zap.Int("height", size.Height))
	return size, nil
}

// History returns a copy of the recorded actions.
func (s *Session) History() []model.ActionRecord {
	return s.recorder.Records()
}

// ClearHistory empties the action log.
func (s *Session) ClearHistory() {
	s.recorder.Clear()
}

// RecorderState returns the recording state.
func (s *Session) RecorderState() recorder.State {
	return s.recorder.State()
}

// GenerateScript renders the action log. The log is left untouched.
func (s *Session) GenerateScript(tmpl recorder.Template, meta recorder.Meta) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta.Device == "" {
		meta.Device = s.driver.Serial()
	}
	return s.recorder.Emit(tmpl, meta)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
