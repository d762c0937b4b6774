package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	stepSplitRe = regexp.MustCompile(`[，,。;；\n]`)
	packageRe   = regexp.MustCompile(`[a-zA-Z]\w*(?:\.\w+)+`)
	inputRe     = regexp.MustCompile(`输入(.+?)(?:为|：|:)(.+)`)
	numberRe    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	urlRe       = regexp.MustCompile(`[a-zA-Z][\w+.-]*://\S+`)
	quotedRe    = regexp.MustCompile(`["'“”‘’「」]([^"'“”‘’「」]+)["'“”‘’「」]`)
)

// ParseNatural turns short imperative instructions separated by commas or
// newlines into steps. Recognized forms: 启动应用<package>, 关闭应用<package>,
// 点击<text>, 双击<text>, 长按<text>, 输入<field>为<value>, 滑动/上滑/下滑,
// 按<key>, 等待<n>秒, 断言"<text>", 打开链接<url>, 关闭弹窗. Unrecognized instructions are an error
// so nothing is silently skipped.
func ParseNatural(text string) ([]Step, error) {
	var steps []Step
	for _, part := range stepSplitRe.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		step, err := parseInstruction(part)
		if err != nil {
			return nil, err
		}
		step.Source = part
		steps = append(steps, step)
	}
	return steps, nil
}

// leadingVerbs are matched against the start of an instruction before any
// substring rule, so "点击启动按钮" is a click and not a launch.
var leadingVerbs = []struct {
	prefix string
	parse  func(part string) (Step, error)
}{
	{"长按", func(part string) (Step, error) { return targetStep("long_click", part, "长按") }},
	{"点击", func(part string) (Step, error) { return targetStep("click", part, "点击") }},
	{"双击", func(part string) (Step, error) { return targetStep("double_click", part, "双击") }},
	{"打开链接", parseOpenURL},
	{"打开网址", parseOpenURL},
	{"输入", parseInput},
	{"断言", parseAssert},
	{"验证", parseAssert},
	{"检查", parseAssert},
	{"等待", parseSleep},
	{"启动", parseLaunch},
	{"打开应用", parseLaunch},
	{"关闭应用", parseTerminate},
	{"停止应用", parseTerminate},
	{"关闭弹窗", closePopup},
}

func parseInstruction(part string) (Step, error) {
	for _, v := range leadingVerbs {
		if strings.HasPrefix(part, v.prefix) {
			return v.parse(part)
		}
	}

	switch {
	case strings.Contains(part, "弹窗"):
		return closePopup(part)
	case hasAny(part, "启动", "打开应用"):
		return parseLaunch(part)
	case hasAny(part, "关闭应用", "停止应用", "杀掉"):
		return parseTerminate(part)
	case strings.Contains(part, "长按"):
		return targetStep("long_click", part, "长按")
	case strings.Contains(part, "双击"):
		return targetStep("double_click", part, "双击")
	case urlRe.MatchString(part):
		return parseOpenURL(part)
	case strings.Contains(part, "点击"):
		return targetStep("click", part, "点击")
	case strings.Contains(part, "输入"):
		return parseInput(part)
	case hasAny(part, "滑动", "上滑", "下滑", "左滑", "右滑"):
		return parseSwipe(part)
	case strings.HasPrefix(part, "按"):
		key := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(part, "按"), "键"))
		if key == "" {
			return Step{}, fmt.Errorf("%q: no key name", part)
		}
		return Step{Action: "key", Params: map[string]any{"name": key}}, nil
	case strings.Contains(part, "等待"):
		return parseSleep(part)
	case hasAny(part, "断言", "验证", "检查"):
		return parseAssert(part)
	}
	return Step{}, fmt.Errorf("unrecognized instruction %q", part)
}

func closePopup(string) (Step, error) {
	return Step{Action: "close_popup", Params: map[string]any{}}, nil
}

func parseLaunch(part string) (Step, error) {
	pkg := packageRe.FindString(part)
	if pkg == "" {
		return Step{}, fmt.Errorf("%q: no package name", part)
	}
	return Step{Action: "launch", Params: map[string]any{"package": pkg}}, nil
}

func parseTerminate(part string) (Step, error) {
	pkg := packageRe.FindString(part)
	if pkg == "" {
		return Step{}, fmt.Errorf("%q: no package name", part)
	}
	return Step{Action: "terminate", Params: map[string]any{"package": pkg}}, nil
}

func parseOpenURL(part string) (Step, error) {
	u := urlRe.FindString(part)
	if u == "" {
		return Step{}, fmt.Errorf("%q: no url", part)
	}
	return Step{Action: "open_url", Params: map[string]any{"url": u}}, nil
}

func parseInput(part string) (Step, error) {
	m := inputRe.FindStringSubmatch(part)
	if m == nil {
		return Step{}, fmt.Errorf("%q: expected 输入<field>为<value>", part)
	}
	field := unquote(strings.TrimSpace(m[1]))
	params := map[string]any{"value": unquote(strings.TrimSpace(m[2]))}
	if field != "" {
		params["text"] = field
	}
	return Step{Action: "input", Params: params}, nil
}

func parseSwipe(part string) (Step, error) {
	dir := ""
	switch {
	case hasAny(part, "上", "up"):
		dir = "up"
	case hasAny(part, "下", "down"):
		dir = "down"
	case hasAny(part, "左", "left"):
		dir = "left"
	case hasAny(part, "右", "right"):
		dir = "right"
	default:
		return Step{}, fmt.Errorf("%q: no swipe direction", part)
	}
	return Step{Action: "swipe", Params: map[string]any{"direction": dir}}, nil
}

func parseSleep(part string) (Step, error) {
	n := numberRe.FindString(part)
	if n == "" {
		return Step{}, fmt.Errorf("%q: no wait duration", part)
	}
	secs, _ := strconv.ParseFloat(n, 64)
	return Step{Action: "sleep", Params: map[string]any{"seconds": secs}}, nil
}

func parseAssert(part string) (Step, error) {
	m := quotedRe.FindStringSubmatch(part)
	if m == nil {
		return Step{}, fmt.Errorf("%q: quote the expected text", part)
	}
	return Step{Action: "assert", Params: map[string]any{"text": m[1]}}, nil
}

func targetStep(action, part, verb string) (Step, error) {
	target := unquote(strings.TrimSpace(part[strings.Index(part, verb)+len(verb):]))
	if target == "" {
		return Step{}, fmt.Errorf("%q: no target", part)
	}
	return Step{Action: action, Params: map[string]any{"text": target}}, nil
}

func unquote(s string) string {
	if m := quotedRe.FindStringSubmatch(s); m != nil && len(m[0]) == len(s) {
		return m[1]
	}
	return s
}

func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
