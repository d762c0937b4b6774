package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/platform/fake"
	"github.com/mj1618/mobile-mcp/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var screen = model.Size{Width: 1080, Height: 2400}

var loginNodes = []fake.Node{
	{Text: "欢迎", Bounds: model.Rect{100, 100, 880, 80}},
	{Text: "登录", ID: "com.example:id/login_btn", Class: "android.widget.Button", Bounds: model.Rect{100, 200, 80, 40}, Clickable: true},
}

var homeNodes = []fake.Node{
	{Text: "首页", Bounds: model.Rect{0, 2300, 200, 100}, Clickable: true},
}

func newSession(drv *fake.Driver) *session.Session {
	return session.New(drv, session.Options{
		Tables: config.DefaultTables(),
		Verify: config.VerifyConfig{Threshold: 0.05, PollInterval: 5 * time.Millisecond, Timeout: 40 * time.Millisecond},
		Popup:  config.PopupConfig{IconMaxRatio: 0.12, MaxAttempts: 1},
	})
}

func loginApp() *fake.Driver {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.OnDispatch(func(a model.Action, _ string) string {
		switch a.Kind {
		case model.ActionLaunch:
			return fake.Screen(loginNodes...)
		case model.ActionClick:
			if a.Point == (model.Point{X: 140, Y: 220}) {
				return fake.Screen(append(append([]fake.Node(nil), homeNodes...),
					fake.Node{Text: "登录成功", Class: "android.widget.Toast", Bounds: model.Rect{340, 2000, 400, 80}})...)
			}
		}
		return ""
	})
	return drv
}

func TestParseSteps(t *testing.T) {
	steps, err := ParseSteps([]byte(`
- click: { text: "登录", expect_text: "登录成功" }
- input: { id: username, value: alice }
- key: { name: search }
- sleep: {}
`))
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, "click", steps[0].Action)
	assert.Equal(t, "登录成功", steps[0].Params["expect_text"])
	assert.Equal(t, "alice", steps[1].Params["value"])
	assert.NotNil(t, steps[3].Params)
}

func TestParseSteps_TwoKeys(t *testing.T) {
	_, err := ParseSteps([]byte(`- { click: { text: a }, key: { name: back } }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one action key")
}

func TestRun_LoginFlow(t *testing.T) {
	drv := loginApp()
	s := newSession(drv)
	steps, err := ParseSteps([]byte(`
- click: { text: "登录", expect_text: "登录成功" }
- assert: { text: "首页" }
- assert: { text: "欢迎", absent: true }
`))
	require.NoError(t, err)

	res := Run(context.Background(), s, steps, Options{StopOnError: true})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, 3, res.Completed)
	assert.Equal(t, "登录成功", res.Results[0].Evidence)
	assert.Equal(t, model.StrategyText, res.Results[0].Strategy)
	assert.Equal(t, &model.Point{X: 140, Y: 220}, res.Results[0].Point)
	assert.NoError(t, res.Err())
}

func TestRun_StopOnError(t *testing.T) {
	s := newSession(loginApp())
	steps := []Step{
		{Action: "click", Params: map[string]any{"text": "Login"}},
		{Action: "assert", Params: map[string]any{"text": "欢迎"}},
	}

	res := Run(context.Background(), s, steps, Options{StopOnError: true})
	assert.False(t, res.OK)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "not_found", res.Results[0].ErrorKind)
	require.NotEmpty(t, res.Results[0].Attempts)
	assert.Equal(t, model.StrategyText, res.Results[0].Attempts[0].Strategy)
	assert.Contains(t, res.Error, "step 1 (click)")
	assert.Error(t, res.Err())

	res = Run(context.Background(), s, steps, Options{StopOnError: false})
	assert.False(t, res.OK)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 1, res.Completed)
}

func TestRun_DriverErrorAlwaysStops(t *testing.T) {
	drv := loginApp()
	drv.FailDispatch(errors.New("offline"))
	s := newSession(drv)
	steps := []Step{
		{Action: "click", Params: map[string]any{"id": "login_btn"}},
		{Action: "assert", Params: map[string]any{"text": "欢迎"}},
	}
	res := Run(context.Background(), s, steps, Options{})
	require.Len(t, res.Results, 1)
	assert.Equal(t, "driver_error", res.Results[0].ErrorKind)
}

func TestRun_VerificationFailureIsReported(t *testing.T) {
	s := newSession(fake.New("emulator-5554", screen, fake.Screen(loginNodes...)))
	res := Run(context.Background(), s, []Step{{Action: "click", Params: map[string]any{"id": "login_btn"}}}, Options{})
	require.Len(t, res.Results, 1)
	assert.False(t, res.Results[0].OK)
	assert.Equal(t, "verification_failed", res.Results[0].ErrorKind)
	assert.NotEmpty(t, res.Results[0].Evidence)
}

func TestExecute_UnknownStep(t *testing.T) {
	_, err := Execute(context.Background(), newSession(loginApp()), Step{Action: "teleport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step type")
}

func TestExecute_Percent(t *testing.T) {
	drv := loginApp()
	sr, err := Execute(context.Background(), newSession(drv), Step{Action: "click", Params: map[string]any{"x_percent": 13.0, "y_percent": 9.2}})
	require.NoError(t, err)
	assert.Equal(t, model.StrategyPercent, sr.Strategy)
	assert.Equal(t, model.Point{X: 140, Y: 220}, drv.Actions()[0].Point)
}

func TestParseNatural(t *testing.T) {
	steps, err := ParseNatural("启动应用com.example.app，点击登录按钮，输入用户名为alice\n上滑，按返回键，等待2秒，断言\"登录成功\"，关闭弹窗")
	require.NoError(t, err)

	want := []Step{
		{Action: "launch", Params: map[string]any{"package": "com.example.app"}},
		{Action: "click", Params: map[string]any{"text": "登录按钮"}},
		{Action: "input", Params: map[string]any{"text": "用户名", "value": "alice"}},
		{Action: "swipe", Params: map[string]any{"direction": "up"}},
		{Action: "key", Params: map[string]any{"name": "返回"}},
		{Action: "sleep", Params: map[string]any{"seconds": 2.0}},
		{Action: "assert", Params: map[string]any{"text": "登录成功"}},
		{Action: "close_popup", Params: map[string]any{}},
	}
	require.Len(t, steps, len(want))
	for i := range want {
		assert.Equal(t, want[i].Action, steps[i].Action, "step %d", i)
		assert.Equal(t, want[i].Params, steps[i].Params, "step %d", i)
		assert.NotEmpty(t, steps[i].Source)
	}
}

func TestParseNatural_Unrecognized(t *testing.T) {
	_, err := ParseNatural("点击登录，飞到月球")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "飞到月球")
}

func TestDurationParam(t *testing.T) {
	p := map[string]any{"a": 2, "b": 0.5, "c": "300ms", "d": "1.5", "e": true}
	assert.Equal(t, 2*time.Second, durationParam(p, "a", 0))
	assert.Equal(t, 500*time.Millisecond, durationParam(p, "b", 0))
	assert.Equal(t, 300*time.Millisecond, durationParam(p, "c", 0))
	assert.Equal(t, 1500*time.Millisecond, durationParam(p, "d", 0))
	assert.Equal(t, time.Second, durationParam(p, "e", time.Second))
}

func TestParse_PicksForm(t *testing.T) {
	steps, err := Parse([]byte("\n- click: { text: 登录 }\n"))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "click", steps[0].Action)

	steps, err = Parse([]byte("点击登录，等待2秒"))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "sleep", steps[1].Action)

	_, err = Parse([]byte("   "))
	assert.Error(t, err)
}

var updateDialog = []fake.Node{{Class: "android.widget.FrameLayout", Bounds: model.Rect{0, 0, 1080, 2400}, Children: []fake.Node{
	{ID: "com.example:id/content", Class: "android.widget.LinearLayout", Bounds: model.Rect{0, 0, 1080, 2400}, Children: homeNodes},
	{Class: "android.app.AlertDialog", Bounds: model.Rect{140, 800, 800, 800}, Children: []fake.Node{
		{Text: "发现新版本", Bounds: model.Rect{180, 850, 720, 100}},
		{Text: "关闭", Bounds: model.Rect{200, 1450, 300, 100}, Clickable: true},
	}},
}}}

func TestRun_ClosePopupUnverifiedFails(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(updateDialog...))
	steps, err := ParseNatural("关闭弹窗，断言\"首页\"")
	require.NoError(t, err)

	res := Run(context.Background(), newSession(drv), steps, Options{StopOnError: true})
	assert.False(t, res.OK)
	assert.Equal(t, 0, res.Completed)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "verification_failed", res.Results[0].ErrorKind)
	assert.Contains(t, res.Results[0].Error, "popup still shown")
	require.Len(t, drv.Actions(), 1)
	assert.Equal(t, model.ActionClick, drv.Actions()[0].Kind)
}

func TestRun_ClosePopupDismissed(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(updateDialog...))
	drv.OnDispatch(func(a model.Action, _ string) string {
		if a.Kind == model.ActionClick {
			return fake.Screen(homeNodes...)
		}
		return ""
	})
	steps, err := ParseNatural("关闭弹窗，断言\"首页\"")
	require.NoError(t, err)

	res := Run(context.Background(), newSession(drv), steps, Options{StopOnError: true})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, 2, res.Completed)
	assert.Contains(t, res.Results[0].Evidence, "closed=true")
}

func TestRun_ClosePopupWithoutPopupSucceeds(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(homeNodes...))
	res := Run(context.Background(), newSession(drv), []Step{{Action: "close_popup", Params: map[string]any{}}}, Options{})
	require.True(t, res.OK, res.Error)
	assert.Contains(t, res.Results[0].Evidence, "attempts=0")
	assert.Empty(t, drv.Actions())
}

func TestParseNatural_LeadingVerbWins(t *testing.T) {
	steps, err := ParseNatural("点击启动按钮，长按打开应用图标，断言\"启动成功\"，输入启动码为42")
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, Step{Action: "click", Params: map[string]any{"text": "启动按钮"}, Source: "点击启动按钮"}, steps[0])
	assert.Equal(t, "long_click", steps[1].Action)
	assert.Equal(t, "打开应用图标", steps[1].Params["text"])
	assert.Equal(t, "assert", steps[2].Action)
	assert.Equal(t, "启动成功", steps[2].Params["text"])
	assert.Equal(t, map[string]any{"text": "启动码", "value": "42"}, steps[3].Params)

	steps, err = ParseNatural("请启动应用com.example.app")
	require.NoError(t, err)
	assert.Equal(t, "launch", steps[0].Action)
}

func TestExecute_DoubleClickAndOpenURL(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.OnDispatch(func(a model.Action, _ string) string {
		switch a.Kind {
		case model.ActionDoubleClick:
			return fake.Screen(homeNodes...)
		case model.ActionOpenURL:
			return fake.Screen(loginNodes...)
		}
		return ""
	})
	steps, err := ParseNatural("双击登录，打开链接https://example.com/login")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, map[string]any{"url": "https://example.com/login"}, steps[1].Params)

	res := Run(context.Background(), newSession(drv), steps, Options{StopOnError: true})
	require.True(t, res.OK, res.Error)
	actions := drv.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, model.Action{Kind: model.ActionDoubleClick, Point: model.Point{X: 140, Y: 220}}, actions[0])
	assert.Equal(t, "https://example.com/login", actions[1].Text)
}
