package sheet

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/platform"
	"github.com/mj1618/mobile-mcp/internal/platform/fake"
	"github.com/mj1618/mobile-mcp/internal/recorder"
	"github.com/mj1618/mobile-mcp/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var screen = model.Size{Width: 1080, Height: 2400}

var (
	launcherNodes = []fake.Node{{Text: "桌面", Bounds: model.Rect{0, 0, 1080, 100}}}
	loginNodes    = []fake.Node{
		{Text: "欢迎", Bounds: model.Rect{100, 100, 880, 80}},
		{Text: "登录", ID: "com.example:id/login_btn", Class: "android.widget.Button", Bounds: model.Rect{100, 200, 80, 40}, Clickable: true},
	}
	homeNodes = []fake.Node{{Text: "首页", Bounds: model.Rect{0, 2300, 200, 100}, Clickable: true}}
)

func appDevice(serial string) *fake.Driver {
	drv := fake.New(serial, screen, fake.Screen(launcherNodes...))
	drv.OnDispatch(func(a model.Action, _ string) string {
		switch {
		case a.Kind == model.ActionLaunch:
			return fake.Screen(loginNodes...)
		case a.Kind == model.ActionClick && a.Point == (model.Point{X: 140, Y: 220}):
			return fake.Screen(homeNodes...)
		}
		return ""
	})
	return drv
}

type memSource struct {
	mu      sync.Mutex
	results []Result
	fail    error
}

func (m *memSource) ReadCases(context.Context) ([]Case, error) { return nil, nil }

func (m *memSource) WriteResult(_ context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.results = append(m.results, r)
	return nil
}

func newManager(drivers ...*fake.Driver) *session.Manager {
	byserial := make(map[string]*fake.Driver)
	var devices fake.Lister
	for _, d := range drivers {
		byserial[d.Serial()] = d
		devices = append(devices, model.Device{Serial: d.Serial(), State: "device"})
	}
	return session.NewManager(&platform.Provider{
		Name:    "fake",
		Devices: devices,
		Open: func(serial string) (platform.Driver, error) {
			if d, ok := byserial[serial]; ok {
				return d, nil
			}
			return nil, fmt.Errorf("no device %s", serial)
		},
	}, session.Options{
		Tables: config.DefaultTables(),
		Verify: config.VerifyConfig{Threshold: 0.05, PollInterval: 5 * time.Millisecond, Timeout: 40 * time.Millisecond},
		Popup:  config.PopupConfig{IconMaxRatio: 0.12, MaxAttempts: 1},
	})
}

func TestRunner_RunsPerDevice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a, b := appDevice("a"), appDevice("b")
	src := &memSource{}
	dir := t.TempDir()
	r := &Runner{
		Sessions:  newManager(a, b),
		Source:    src,
		Devices:   []string{"a", "b"},
		Emit:      recorder.TemplatePytest,
		ScriptDir: dir,
	}
	cases := []Case{
		{Ref: "r1", ID: "TC-1", Device: "a", Package: "com.example", Steps: "- click: { text: 登录 }", Expect: "首页"},
		{Ref: "r2", ID: "TC-2", Package: "com.example", Steps: "点击登录", Expect: "首页"},
		{Ref: "r3", ID: "TC-3", Package: "com.example", Steps: "点击Login"},
	}

	summary, err := r.Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 3)

	byID := map[string]Result{}
	for _, res := range summary.Results {
		byID[res.CaseID] = res
	}
	assert.Equal(t, StatusPassed, byID["TC-1"].Status)
	assert.Equal(t, "a", byID["TC-2"].Device)
	assert.Equal(t, "b", byID["TC-3"].Device)
	assert.Equal(t, StatusFailed, byID["TC-3"].Status)
	assert.Contains(t, byID["TC-3"].Reason, "element not found")
	assert.Equal(t, "r3", byID["TC-3"].Ref)

	script, err := os.ReadFile(byID["TC-1"].Script)
	require.NoError(t, err)
	assert.Contains(t, string(script), `d.app_start("com.example")`)
	assert.Contains(t, string(script), `d(text="登录").click()`)
	assert.Empty(t, byID["TC-3"].Script)

	assert.Len(t, src.results, 3)
	// Cases on one device ran back to back: launch, click for each.
	assert.Len(t, a.Actions(), 4)
	assert.Len(t, b.Actions(), 1)
}

func TestRunner_WriteFailureStops(t *testing.T) {
	src := &memSource{fail: fmt.Errorf("sheet is read-only")}
	r := &Runner{Sessions: newManager(appDevice("a")), Source: src}
	_, err := r.Run(context.Background(), []Case{{ID: "TC-1", Steps: "上滑"}})
	assert.ErrorContains(t, err, "sheet is read-only")
}

func TestRunner_UnknownDevice(t *testing.T) {
	r := &Runner{Sessions: newManager(appDevice("a")), Source: &memSource{}}
	_, err := r.Run(context.Background(), []Case{{ID: "TC-1", Device: "zz", Steps: "上滑"}})
	assert.Error(t, err)
}

func TestRunner_BadStepsFailCase(t *testing.T) {
	src := &memSource{}
	r := &Runner{Sessions: newManager(appDevice("a")), Source: src}
	summary, err := r.Run(context.Background(), []Case{{ID: "TC-1", Steps: "跳舞"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[0].Reason, "unrecognized instruction")
}
