package verify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/index"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/platform/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var screen = model.Size{Width: 1080, Height: 2400}

var fastCfg = config.VerifyConfig{
	Threshold:    0.05,
	PollInterval: 5 * time.Millisecond,
	Timeout:      40 * time.Millisecond,
}

func newVerifier(drv *fake.Driver) *Verifier {
	capture := func(ctx context.Context) (*index.Index, error) {
		raw, err := drv.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return index.Parse(raw, index.Options{Device: drv.Serial(), Screen: screen})
	}
	return New(drv, capture, config.DefaultTables(), fastCfg)
}

var loginNodes = []fake.Node{
	{Text: "欢迎", Bounds: model.Rect{100, 100, 880, 80}},
	{Text: "登录", ID: "com.example:id/login_btn", Bounds: model.Rect{100, 200, 80, 40}, Clickable: true},
}

func withToast(nodes []fake.Node, text string) []fake.Node {
	out := append([]fake.Node(nil), nodes...)
	return append(out, fake.Node{Text: text, Class: "android.widget.Toast", Bounds: model.Rect{340, 2000, 400, 80}})
}

func longList(n int) []fake.Node {
	nodes := make([]fake.Node, n)
	for i := range nodes {
		nodes[i] = fake.Node{Text: fmt.Sprintf("row %d", i), Bounds: model.Rect{0, i * 60, 1080, 60}}
	}
	return nodes
}

var click = model.Action{Kind: model.ActionClick, Point: model.Point{X: 140, Y: 220}}

func TestExecuteAndVerify_ToastSignal(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.OnDispatch(func(a model.Action, _ string) string {
		return fake.Screen(withToast(loginNodes, "登录成功")...)
	})

	out, err := newVerifier(drv).ExecuteAndVerify(context.Background(), click,
		model.Signal{Kind: model.SignalText, Value: "登录成功"})
	require.NoError(t, err)
	assert.True(t, out.Result.Success)
	assert.Equal(t, "登录成功", out.Result.Evidence)
	assert.False(t, out.Result.FallbackUsed)
	assert.Equal(t, 1, out.Result.Samples)
	assert.Len(t, drv.Actions(), 1)
}

func TestExecuteAndVerify_SignalBelowThreshold(t *testing.T) {
	rows := longList(40)
	drv := fake.New("emulator-5554", screen, fake.Screen(rows...))
	drv.OnDispatch(func(model.Action, string) string {
		return fake.Screen(withToast(rows, "已保存")...)
	})
	v := newVerifier(drv)

	out, err := v.ExecuteAndVerify(context.Background(), click, model.Signal{Kind: model.SignalText, Value: "已保存"})
	require.NoError(t, err)
	assert.Equal(t, "已保存", out.Result.Evidence)
	assert.Less(t, out.Result.ChangeRatio, fastCfg.Threshold)
}

func TestExecuteAndVerify_NoFalsePositive(t *testing.T) {
	rows := longList(40)
	drv := fake.New("emulator-5554", screen, fake.Screen(rows...))
	drv.OnDispatch(func(model.Action, string) string {
		// One row of forty changes: below the threshold.
		return fake.Screen(withToast(rows, "已保存")...)
	})

	out, err := newVerifier(drv).ExecuteAndVerify(context.Background(), click)
	var ve *model.VerificationError
	require.True(t, errors.As(err, &ve), "expected VerificationError, got %v", err)
	assert.False(t, out.Result.Success)
	assert.False(t, ve.Result.Success)
	assert.Greater(t, out.Result.Samples, 1)
	assert.InDelta(t, 1.0/41.0, out.Result.ChangeRatio, 1e-9)
	assert.Contains(t, ve.Reason, "change ratio below")
}

func TestExecuteAndVerify_SignalAlreadyPresentIsNotEvidence(t *testing.T) {
	nodes := withToast(loginNodes, "登录成功")
	drv := fake.New("emulator-5554", screen, fake.Screen(nodes...))

	out, err := newVerifier(drv).ExecuteAndVerify(context.Background(), click,
		model.Signal{Kind: model.SignalText, Value: "登录成功"})
	assert.Equal(t, "verification_failed", model.ErrorKind(err))
	assert.False(t, out.Result.Success)
	assert.Contains(t, err.Error(), "no expected signal observed")
}

func TestExecuteAndVerify_PageChange(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.OnDispatch(func(model.Action, string) string {
		return fake.Screen(fake.Node{Text: "我的订单", Bounds: model.Rect{0, 0, 1080, 200}})
	})

	out, err := newVerifier(drv).ExecuteAndVerify(context.Background(), click)
	require.NoError(t, err)
	assert.True(t, out.Result.Success)
	assert.Equal(t, 1.0, out.Result.ChangeRatio)
	assert.Equal(t, "page changed (ratio 1.000)", out.Result.Evidence)
	require.NotNil(t, out.After)
	assert.True(t, out.After.HasText("我的订单"))
}

func TestExecuteAndVerify_ElementAndGoneSignals(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.OnDispatch(func(model.Action, string) string {
		return fake.Screen(fake.Node{ID: "com.example:id/home_tab", Text: "首页", Bounds: model.Rect{0, 2300, 200, 100}})
	})
	out, err := newVerifier(drv).ExecuteAndVerify(context.Background(), click,
		model.Signal{Kind: model.SignalElement, Value: "home_tab"})
	require.NoError(t, err)
	assert.Equal(t, "element home_tab appeared", out.Result.Evidence)

	drv = fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.OnDispatch(func(model.Action, string) string { return fake.Screen(loginNodes[1:]...) })
	out, err = newVerifier(drv).ExecuteAndVerify(context.Background(), click,
		model.Signal{Kind: model.SignalGone, Value: "欢迎"})
	require.NoError(t, err)
	assert.Equal(t, "欢迎 disappeared", out.Result.Evidence)
}

func TestExecuteAndVerify_SearchFallsBackToEnter(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.OnDispatch(func(a model.Action, _ string) string {
		if a.Kind == model.ActionKey && a.KeyCode == 66 {
			return fake.Screen(fake.Node{Text: "搜索结果", Bounds: model.Rect{0, 0, 1080, 200}})
		}
		return ""
	})

	search := model.Action{Kind: model.ActionKey, Key: "search", KeyCode: 84}
	out, err := newVerifier(drv).ExecuteAndVerify(context.Background(), search)
	require.NoError(t, err)
	assert.True(t, out.Result.Success)
	assert.True(t, out.Result.FallbackUsed)

	actions := drv.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, 84, actions[0].KeyCode)
	assert.Equal(t, 66, actions[1].KeyCode)
	assert.Equal(t, "enter", actions[1].Key)
}

func TestExecuteAndVerify_FallbackRunsOnce(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))

	search := model.Action{Kind: model.ActionKey, Key: "search", KeyCode: 84}
	out, err := newVerifier(drv).ExecuteAndVerify(context.Background(), search)
	var ve *model.VerificationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, out.Result.FallbackUsed)
	assert.False(t, out.Result.Success)
	assert.Len(t, drv.Actions(), 2)
	// The error names the action that was asked for.
	assert.Equal(t, 84, ve.Action.KeyCode)
}

func TestExecuteAndVerify_OtherKeysDoNotFallBack(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	back := model.Action{Kind: model.ActionKey, Key: "back", KeyCode: 4}
	out, err := newVerifier(drv).ExecuteAndVerify(context.Background(), back)
	assert.Error(t, err)
	assert.False(t, out.Result.FallbackUsed)
	assert.Len(t, drv.Actions(), 1)
}

func TestExecuteAndVerify_DriverErrorsSurface(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.FailDispatch(errors.New("device offline"))
	_, err := newVerifier(drv).ExecuteAndVerify(context.Background(), click)
	assert.Equal(t, "driver_error", model.ErrorKind(err))

	drv = fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.OnDispatch(func(model.Action, string) string {
		drv.FailSnapshot(errors.New("adb disconnected"))
		return ""
	})
	_, err = newVerifier(drv).ExecuteAndVerify(context.Background(), click)
	var de *model.DriverError
	require.True(t, errors.As(err, &de), "expected DriverError, got %v", err)
	assert.Equal(t, "snapshot", de.Op)
}

func TestExecuteAndVerify_ParseErrorsKeepPolling(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	drv.OnDispatch(func(model.Action, string) string { return "<hierarchy><node" })

	out, err := newVerifier(drv).ExecuteAndVerify(context.Background(), click)
	var ve *model.VerificationError
	require.True(t, errors.As(err, &ve), "expected VerificationError, got %v", err)
	assert.Equal(t, 0, out.Result.Samples)
	assert.Contains(t, ve.Reason, "no readable snapshot")
}

func TestExecuteAndVerify_ContextCanceled(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	ctx, cancel := context.WithCancel(context.Background())
	drv.OnDispatch(func(model.Action, string) string {
		cancel()
		return ""
	})
	_, err := newVerifier(drv).ExecuteAndVerify(ctx, click)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteAndVerify_SearchWithoutEnterCodeSkipsFallback(t *testing.T) {
	drv := fake.New("emulator-5554", screen, fake.Screen(loginNodes...))
	cfg := config.NewDefaultConfig()
	cfg.Keys = map[string]int{"search": 84}
	v := newVerifier(drv)
	v.tables = config.NewTables(cfg)

	search := model.Action{Kind: model.ActionKey, Key: "search", KeyCode: 84}
	out, err := v.ExecuteAndVerify(context.Background(), search)
	var ve *model.VerificationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 84, ve.Action.KeyCode)
	assert.False(t, out.Result.FallbackUsed)
	require.Len(t, drv.Actions(), 1)
	assert.Equal(t, 84, drv.Actions()[0].KeyCode)
}
