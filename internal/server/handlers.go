package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/go-homedir"
	"github.com/mj1618/mobile-mcp/internal/flow"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/output"
	"github.com/mj1618/mobile-mcp/internal/popup"
	"github.com/mj1618/mobile-mcp/internal/recorder"
	"github.com/mj1618/mobile-mcp/internal/session"
	"github.com/mj1618/mobile-mcp/internal/shot"
)

// toText serializes v to YAML for an MCP response.
func toText(v any) string {
	b, err := output.Marshal(v, output.FormatYAML)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}

func textResult(v any) *mcp.CallToolResult {
	return mcp.NewToolResultText(toText(v))
}

// errorResult renders err with its taxonomy kind. Tool failures are reported
// in the result, never as protocol errors.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(toText(output.NewErrorResult(err)))
}

// reportResult renders an action report. A verification failure still comes
// back as an error with the report's evidence attached.
func reportResult(r session.Report, err error) *mcp.CallToolResult {
	if err != nil {
		return errorResult(err)
	}
	return textResult(r)
}

func (s *Server) session(ctx context.Context, request mcp.CallToolRequest) (*session.Session, error) {
	return s.sessions.Get(ctx, request.GetString("device", ""))
}

func seconds(request mcp.CallToolRequest, key string, def time.Duration) time.Duration {
	v := request.GetFloat(key, -1)
	if v < 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

func expectations(request mcp.CallToolRequest) []model.Signal {
	var out []model.Signal
	if v := request.GetString("expect_text", ""); v != "" {
		out = append(out, model.Signal{Kind: model.SignalText, Value: v})
	}
	if v := request.GetString("expect_id", ""); v != "" {
		out = append(out, model.Signal{Kind: model.SignalElement, Value: v})
	}
	if v := request.GetString("expect_gone", ""); v != "" {
		out = append(out, model.Signal{Kind: model.SignalGone, Value: v})
	}
	return out
}

type deviceEntry struct {
	Serial  string `yaml:"serial"          json:"serial"`
	State   string `yaml:"state"           json:"state"`
	Model   string `yaml:"model,omitempty" json:"model,omitempty"`
	Session bool   `yaml:"session"         json:"session"`
}

func (s *Server) handleListDevices(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.sessions.Devices(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	open := make(map[string]bool)
	for _, serial := range s.sessions.Open() {
		open[serial] = true
	}
	entries := make([]deviceEntry, 0, len(devices))
	for _, d := range devices {
		entries = append(entries, deviceEntry{Serial: d.Serial, State: d.State, Model: d.Model, Session: open[d.Serial]})
	}
	return textResult(map[string]any{"devices": entries, "count": len(entries)}), nil
}

type connectionResult struct {
	Device     string     `yaml:"device"                json:"device"`
	Connected  bool       `yaml:"connected"             json:"connected"`
	Screen     model.Size `yaml:"screen"                json:"screen"`
	CurrentApp string     `yaml:"current_app,omitempty" json:"current_app,omitempty"`
	Recording  string     `yaml:"recording"             json:"recording"`
	Actions    int        `yaml:"actions"               json:"actions"`
}

func (s *Server) handleCheckConnection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	if err := sess.Reconnect(ctx); err != nil {
		return errorResult(err), nil
	}
	size, err := sess.ScreenSize(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	// The foreground app is informational; drivers without it still connect.
	app, _ := sess.CurrentApp(ctx)
	return textResult(connectionResult{
		Device:     sess.Serial(),
		Connected:  true,
		Screen:     size,
		CurrentApp: app,
		Recording:  sess.RecorderState().String(),
		Actions:    len(sess.History()),
	}), nil
}

func (s *Server) handleScreenSize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	size, err := sess.ScreenSize(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(size), nil
}

func (s *Server) handleListElements(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	if request.GetBool("fresh", false) {
		if _, err := sess.Snapshot(ctx, true); err != nil {
			return errorResult(err), nil
		}
	}
	idx, elements, err := sess.Elements(ctx, model.FilterOptions{
		InteractiveOnly: request.GetBool("interactive_only", true),
		Text:            request.GetString("text", ""),
		MaxElements:     request.GetInt("max_elements", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(output.SnapshotResult{
		Device:   idx.Snapshot().Device(),
		TS:       idx.Snapshot().TakenAt().Unix(),
		Screen:   idx.Screen(),
		Popup:    sess.PopupShown(idx),
		Elements: elements,
	}), nil
}

func (s *Server) handleScreenshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	img, err := sess.Screenshot(ctx, request.GetBool("annotate", false))
	if err != nil {
		return errorResult(err), nil
	}
	if request.GetBool("save", false) && s.shotDir != "" {
		name := fmt.Sprintf("%s_%s.jpg", sess.Serial(), time.Now().Format("20060102_150405"))
		path := filepath.Join(s.shotDir, name)
		if err := os.MkdirAll(s.shotDir, 0o755); err != nil {
			return errorResult(fmt.Errorf("save screenshot: %w", err)), nil
		}
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return errorResult(fmt.Errorf("save screenshot: %w", err)), nil
		}
		img.Path = path
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: toText(img)},
			mcp.ImageContent{
				Type:     "image",
				Data:     base64.StdEncoding.EncodeToString(img.Data),
				MIMEType: "image/jpeg",
			},
		},
	}, nil
}

func (s *Server) tap(ctx context.Context, request mcp.CallToolRequest, q model.Query) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	return reportResult(sess.Tap(ctx, q, session.TapOptions{
		Long:   request.GetBool("long", false),
		Wait:   seconds(request, "wait", 0),
		Expect: expectations(request),
	})), nil
}

func (s *Server) handleClickByText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hint, err := model.ParseHint(request.GetString("hint", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.tap(ctx, request, model.Query{
		Text:        text,
		Description: request.GetString("description", ""),
		Hint:        hint,
	})
}

func (s *Server) handleClickByID(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hint, err := model.ParseHint(request.GetString("hint", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.tap(ctx, request, model.Query{ID: id, Hint: hint})
}

func (s *Server) handleClickByPercent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, err := request.RequireFloat("x_percent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := request.RequireFloat("y_percent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := model.Query{Percent: &model.PercentPoint{X: x, Y: y}}
	if err := q.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.tap(ctx, request, q)
}

// devicePoint reads x/y and maps them from screenshot pixels to device
// pixels when the image size is given.
func devicePoint(ctx context.Context, sess *session.Session, request mcp.CallToolRequest) (model.Point, error) {
	x, err := request.RequireInt("x")
	if err != nil {
		return model.Point{}, err
	}
	y, err := request.RequireInt("y")
	if err != nil {
		return model.Point{}, err
	}
	pt := model.Point{X: x, Y: y}
	w, h := request.GetInt("image_width", 0), request.GetInt("image_height", 0)
	if w <= 0 || h <= 0 {
		return pt, nil
	}
	screen, err := sess.ScreenSize(ctx)
	if err != nil {
		return model.Point{}, err
	}
	return shot.ToDevice(pt, w, h, screen), nil
}

func (s *Server) handleClickAtCoords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	pt, err := devicePoint(ctx, sess, request)
	if err != nil {
		return errorResult(err), nil
	}
	return reportResult(sess.TapPoint(ctx, pt, expectations(request)...)), nil
}

func (s *Server) handleDoubleClick(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	args := request.GetArguments()
	if _, ok := args["x"]; ok {
		pt, err := devicePoint(ctx, sess, request)
		if err != nil {
			return errorResult(err), nil
		}
		return reportResult(sess.DoubleTapPoint(ctx, pt, expectations(request)...)), nil
	}
	hint, err := model.ParseHint(request.GetString("hint", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := model.Query{Text: request.GetString("text", ""), ID: request.GetString("id", ""), Hint: hint}
	if q.Text == "" && q.ID == "" {
		return mcp.NewToolResultError("specify text, id, or x and y"), nil
	}
	return reportResult(sess.Tap(ctx, q, session.TapOptions{
		Double: true,
		Wait:   seconds(request, "wait", 0),
		Expect: expectations(request),
	})), nil
}

func (s *Server) handleInputByID(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	var q *model.Query
	if id := request.GetString("id", ""); id != "" {
		q = &model.Query{ID: id}
	}
	return reportResult(sess.Input(ctx, q, text, seconds(request, "wait", 0))), nil
}

func (s *Server) handleInputAtCoords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	pt, err := devicePoint(ctx, sess, request)
	if err != nil {
		return errorResult(err), nil
	}
	return reportResult(sess.InputAt(ctx, pt, text)), nil
}

func (s *Server) handleSwipe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := model.ParseDirection(request.GetString("direction", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	return reportResult(sess.Swipe(ctx, dir)), nil
}

func (s *Server) handlePressKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	return reportResult(sess.PressKey(ctx, key)), nil
}

func (s *Server) handleWait(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	q := model.Query{ID: request.GetString("id", ""), Text: request.GetString("text", "")}
	if q.ID == "" && q.Text == "" {
		return reportResult(sess.Wait(ctx, seconds(request, "seconds", time.Second))), nil
	}
	res, err := sess.WaitFor(ctx, q, seconds(request, "timeout", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(map[string]any{"found": true, "resolution": res}), nil
}

func (s *Server) handleLaunchApp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pkg, err := request.RequireString("package_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	return reportResult(sess.Launch(ctx, pkg)), nil
}

func (s *Server) handleTerminateApp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pkg, err := request.RequireString("package_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	return reportResult(sess.Terminate(ctx, pkg)), nil
}

func (s *Server) handleListApps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	pkgs, err := sess.ListApps(ctx, !request.GetBool("all", false))
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(map[string]any{"packages": pkgs, "count": len(pkgs)}), nil
}

func (s *Server) handleCurrentPackage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	pkg, err := sess.CurrentApp(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(map[string]any{"package": pkg}), nil
}

func (s *Server) handleOpenURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	return reportResult(sess.OpenURL(ctx, u)), nil
}

func (s *Server) handleInstallApp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("apk_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if path, err = homedir.Expand(path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	if err := sess.InstallApp(ctx, path); err != nil {
		return errorResult(err), nil
	}
	return textResult(map[string]any{"installed": path}), nil
}

func (s *Server) handleUninstallApp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pkg, err := request.RequireString("package_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	if err := sess.UninstallApp(ctx, pkg); err != nil {
		return errorResult(err), nil
	}
	return textResult(map[string]any{"uninstalled": pkg}), nil
}

func (s *Server) handleGetOrientation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	o, err := sess.Orientation(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(map[string]any{"orientation": o}), nil
}

func (s *Server) handleSetOrientation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("orientation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	o, err := model.ParseOrientation(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	size, err := sess.SetOrientation(ctx, o)
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(map[string]any{"orientation": o, "screen": size}), nil
}

type assertResult struct {
	Text   string `yaml:"text"   json:"text"`
	Found  bool   `yaml:"found"  json:"found"`
	Passed bool   `yaml:"passed" json:"passed"`
}

func (s *Server) handleAssertText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	found, err := sess.AssertText(ctx, text)
	if err != nil {
		return errorResult(err), nil
	}
	res := assertResult{Text: text, Found: found, Passed: found != request.GetBool("absent", false)}
	if !res.Passed {
		return mcp.NewToolResultError(toText(res)), nil
	}
	return textResult(res), nil
}

func (s *Server) handleDetectPopup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	candidates, err := sess.DetectPopup(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(struct {
		Popup      bool              `yaml:"popup"`
		Candidates []popup.Candidate `yaml:"candidates"`
	}{len(candidates) > 0, candidates}), nil
}

func (s *Server) handleClosePopup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	report, err := sess.ClosePopup(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	// Nothing to close is a normal answer; an unverified tap is not.
	if !report.Closed && report.Attempts > 0 {
		return mcp.NewToolResultError(toText(report)), nil
	}
	return textResult(report), nil
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	history := sess.History()
	return textResult(map[string]any{
		"device":  sess.Serial(),
		"state":   sess.RecorderState().String(),
		"count":   len(history),
		"actions": history,
	}), nil
}

func (s *Server) handleClearHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	cleared := len(sess.History())
	sess.ClearHistory()
	return textResult(map[string]any{"device": sess.Serial(), "cleared": cleared}), nil
}

func (s *Server) handleGenerateScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tmpl, err := recorder.ParseTemplate(request.GetString("template", string(recorder.TemplatePytest)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	script, err := sess.GenerateScript(tmpl, recorder.Meta{
		Name:      request.GetString("name", ""),
		Package:   request.GetString("package_name", ""),
		Generated: time.Now(),
	})
	if err != nil {
		return errorResult(err), nil
	}
	if path := request.GetString("output", ""); path != "" {
		if err := os.WriteFile(path, script, 0o644); err != nil {
			return errorResult(fmt.Errorf("write script: %w", err)), nil
		}
	}
	return mcp.NewToolResultText(string(script)), nil
}

func (s *Server) handleRunSteps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := request.RequireString("steps")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	steps, err := flow.Parse([]byte(body))
	if err != nil {
		return errorResult(err), nil
	}
	sess, err := s.session(ctx, request)
	if err != nil {
		return errorResult(err), nil
	}
	res := flow.Run(ctx, sess, steps, flow.Options{StopOnError: !request.GetBool("continue_on_error", false)})
	if !res.OK {
		return mcp.NewToolResultError(toText(res)), nil
	}
	return textResult(res), nil
}
