package recorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode"

	"github.com/mj1618/mobile-mcp/internal/model"
	"gopkg.in/yaml.v3"
)

// Template names an output format for Emit.
type Template string

const (
	TemplatePytest  Template = "pytest"
	TemplateMaestro Template = "maestro"
	TemplateJSON    Template = "json"
)

// Templates lists the supported templates.
var Templates = []Template{TemplatePytest, TemplateMaestro, TemplateJSON}

// ParseTemplate validates a template name.
func ParseTemplate(s string) (Template, error) {
	t := Template(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Templates {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown script template %q (expected pytest, maestro, or json)", s)
}

// FileName returns a file name for a script called name.
func (t Template) FileName(name string) string {
	base := pyIdent(name)
	if base == "" {
		base = "recorded_flow"
	}
	switch t {
	case TemplatePytest:
		return "test_" + base + ".py"
	case TemplateMaestro:
		return base + ".yaml"
	default:
		return base + ".json"
	}
}

// Meta is script-level information rendered into the header.
type Meta struct {
	Name      string    `yaml:"name"              json:"name"`
	Package   string    `yaml:"package,omitempty" json:"package,omitempty"`
	Device    string    `yaml:"device,omitempty"  json:"device,omitempty"`
	Generated time.Time `yaml:"generated"         json:"generated"`
}

// Step is one record with its coordinates converted to percent of screen.
type Step struct {
	Seq          int                `yaml:"seq"                     json:"seq"`
	Kind         model.ActionKind   `yaml:"kind"                    json:"kind"`
	Strategy     model.Strategy     `yaml:"strategy,omitempty"      json:"strategy,omitempty"`
	Locator      string             `yaml:"locator,omitempty"       json:"locator,omitempty"`
	Value        string             `yaml:"value,omitempty"         json:"value,omitempty"`
	At           model.PercentPoint `yaml:"at"                      json:"at"`
	To           model.PercentPoint `yaml:"to,omitempty"            json:"to,omitempty"`
	Success      bool               `yaml:"success"                 json:"success"`
	Evidence     string             `yaml:"evidence,omitempty"      json:"evidence,omitempty"`
	FallbackUsed bool               `yaml:"fallback_used,omitempty" json:"fallback_used,omitempty"`
}

// Steps converts records to percent-coordinate steps. Records are not
// modified.
func Steps(records []model.ActionRecord) []Step {
	steps := make([]Step, 0, len(records))
	for _, rec := range records {
		steps = append(steps, Step{
			Seq:          rec.Seq,
			Kind:         rec.Kind,
			Strategy:     rec.Strategy,
			Locator:      rec.Locator,
			Value:        rec.Value,
			At:           model.ToPercent(rec.Point, rec.Screen),
			To:           model.ToPercent(rec.To, rec.Screen),
			Success:      rec.Success,
			Evidence:     rec.Evidence,
			FallbackUsed: rec.FallbackUsed,
		})
	}
	return steps
}

func render(tmpl Template, meta Meta, records []model.ActionRecord) ([]byte, error) {
	if meta.Name == "" {
		meta.Name = "recorded_flow"
	}
	steps := Steps(records)
	switch tmpl {
	case TemplatePytest:
		return renderPytest(meta, steps)
	case TemplateMaestro:
		return renderMaestro(meta, steps)
	case TemplateJSON:
		return renderJSON(meta, steps)
	default:
		return nil, fmt.Errorf("unknown script template %q", tmpl)
	}
}

var pytestTmpl = template.Must(template.New("pytest").Funcs(template.FuncMap{
	"ident": pyIdent,
	"quote": strconv.Quote,
	"lines": pyLines,
}).Parse(`#!/usr/bin/env python3
# -*- coding: utf-8 -*-
"""
{{.Meta.Name}}
Generated by mobile-mcp at {{.Meta.Generated.Format "2006-01-02 15:04:05"}}
"""
import time

import pytest
import uiautomator2 as u2

PACKAGE = {{quote .Meta.Package}}


@pytest.fixture(scope="module")
def d():
    device = u2.connect({{if .Meta.Device}}{{quote .Meta.Device}}{{end}})
    device.implicitly_wait(10)
    yield device


def tap_percent(d, x, y):
    w, h = d.window_size()
    d.click(int(w * x / 100), int(h * y / 100))


def swipe_percent(d, x1, y1, x2, y2):
    w, h = d.window_size()
    d.swipe(int(w * x1 / 100), int(h * y1 / 100), int(w * x2 / 100), int(h * y2 / 100), 0.3)


def long_tap_percent(d, x, y):
    w, h = d.window_size()
    d.long_click(int(w * x / 100), int(h * y / 100))


def double_tap_percent(d, x, y):
    w, h = d.window_size()
    d.double_click(int(w * x / 100), int(h * y / 100))


def test_{{ident .Meta.Name}}(d):
{{- if not .Steps}}
    pass
{{- end}}
{{- range .Steps}}
    # step {{.Seq}}: {{.Kind}}{{if .Strategy}} by {{.Strategy}}{{end}}{{if not .Success}} (unverified){{end}}
{{- range lines .}}
    {{.}}
{{- end}}
{{- end}}
`))

func renderPytest(meta Meta, steps []Step) ([]byte, error) {
	var buf bytes.Buffer
	if err := pytestTmpl.Execute(&buf, struct {
		Meta  Meta
		Steps []Step
	}{meta, steps}); err != nil {
		return nil, fmt.Errorf("render pytest script: %w", err)
	}
	return buf.Bytes(), nil
}

// pyLines renders one step as uiautomator2 calls. Locators prefer the
// resource-id, then the text, then the percent position.
func pyLines(s Step) []string {
	q := strconv.Quote
	pct := func(p model.PercentPoint) string { return fmt.Sprintf("%.1f, %.1f", p.X, p.Y) }
	selector := ""
	switch s.Strategy {
	case model.StrategyID:
		selector = "d(resourceId=" + q(s.Locator) + ")"
	case model.StrategyText:
		selector = "d(text=" + q(s.Locator) + ")"
	}

	switch s.Kind {
	case model.ActionClick:
		if selector != "" {
			return []string{selector + ".click()"}
		}
		return []string{"tap_percent(d, " + pct(s.At) + ")"}
	case model.ActionLongClick:
		if selector != "" {
			return []string{selector + ".long_click()"}
		}
		return []string{"long_tap_percent(d, " + pct(s.At) + ")"}
	case model.ActionDoubleClick:
		if selector != "" {
			return []string{"d.double_click(*" + selector + ".center())"}
		}
		return []string{"double_tap_percent(d, " + pct(s.At) + ")"}
	case model.ActionInput:
		if s.Strategy == model.StrategyID {
			return []string{selector + ".set_text(" + q(s.Value) + ")"}
		}
		return []string{"tap_percent(d, " + pct(s.At) + ")", "d.send_keys(" + q(s.Value) + ")"}
	case model.ActionSwipe:
		return []string{"swipe_percent(d, " + pct(s.At) + ", " + pct(s.To) + ")"}
	case model.ActionKey:
		return []string{"d.press(" + q(s.Value) + ")"}
	case model.ActionLaunch:
		return []string{"d.app_start(" + q(s.Value) + ")"}
	case model.ActionTerminate:
		return []string{"d.app_stop(" + q(s.Value) + ")"}
	case model.ActionOpenURL:
		return []string{"d.open_url(" + q(s.Value) + ")"}
	case model.ActionWait:
		d, err := time.ParseDuration(s.Value)
		if err != nil {
			d = time.Second
		}
		return []string{fmt.Sprintf("time.sleep(%g)", d.Seconds())}
	default:
		return []string{"# unsupported action " + string(s.Kind)}
	}
}

// pyIdent turns a case name into a Python identifier.
func pyIdent(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// maestroKeys maps key names to Maestro pressKey values.
var maestroKeys = map[string]string{
	"enter":       "Enter",
	"back":        "Back",
	"home":        "Home",
	"delete":      "Backspace",
	"tab":         "Tab",
	"power":       "Power",
	"volume_up":   "Volume Up",
	"volume_down": "Volume Down",
}

func renderMaestro(meta Meta, steps []Step) ([]byte, error) {
	header := map[string]string{"appId": meta.Package, "name": meta.Name}
	commands := make([]any, 0, len(steps))
	pct := func(p model.PercentPoint) string { return fmt.Sprintf("%.1f%%,%.1f%%", p.X, p.Y) }
	target := func(s Step) any {
		switch s.Strategy {
		case model.StrategyID:
			return map[string]string{"id": s.Locator}
		case model.StrategyText:
			return s.Locator
		default:
			return map[string]string{"point": pct(s.At)}
		}
	}

	for _, s := range steps {
		switch s.Kind {
		case model.ActionClick:
			commands = append(commands, map[string]any{"tapOn": target(s)})
		case model.ActionLongClick:
			commands = append(commands, map[string]any{"longPressOn": target(s)})
		case model.ActionDoubleClick:
			commands = append(commands, map[string]any{"doubleTapOn": target(s)})
		case model.ActionInput:
			commands = append(commands,
				map[string]any{"tapOn": target(s)},
				map[string]any{"inputText": s.Value})
		case model.ActionSwipe:
			commands = append(commands, map[string]any{"swipe": map[string]string{"start": pct(s.At), "end": pct(s.To)}})
		case model.ActionKey:
			key, ok := maestroKeys[strings.ToLower(s.Value)]
			if !ok {
				key = s.Value
			}
			commands = append(commands, map[string]any{"pressKey": key})
		case model.ActionLaunch:
			commands = append(commands, map[string]any{"launchApp": map[string]string{"appId": s.Value}})
		case model.ActionTerminate:
			commands = append(commands, map[string]any{"stopApp": s.Value})
		case model.ActionOpenURL:
			commands = append(commands, map[string]any{"openLink": s.Value})
		case model.ActionWait:
			d, err := time.ParseDuration(s.Value)
			if err != nil {
				d = time.Second
			}
			commands = append(commands, map[string]any{"waitForAnimationToEnd": map[string]int64{"timeout": d.Milliseconds()}})
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("render maestro header: %w", err)
	}
	if err := enc.Encode(commands); err != nil {
		return nil, fmt.Errorf("render maestro flow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderJSON(meta Meta, steps []Step) ([]byte, error) {
	data, err := json.MarshalIndent(struct {
		Meta  Meta   `json:"meta"`
		Steps []Step `json:"steps"`
	}{meta, steps}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json script: %w", err)
	}
	return append(data, '\n'), nil
}
