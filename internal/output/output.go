// Package output renders command and tool results as YAML or JSON.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mj1618/mobile-mcp/internal/model"
	"gopkg.in/yaml.v3"
)

// Format represents the output format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// OutputFormat is the current output format, set by the root command's --format flag.
var OutputFormat Format = FormatYAML

// PrettyOutput enables pretty-printing for JSON output.
var PrettyOutput bool

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatYAML, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected yaml or json)", s)
	}
}

// SnapshotResult is the output of a screen read.
type SnapshotResult struct {
	Device   string          `yaml:"device"             json:"device"`
	TS       int64           `yaml:"ts"                 json:"ts"`
	Screen   model.Size      `yaml:"screen"             json:"screen"`
	Popup    bool            `yaml:"popup,omitempty"    json:"popup,omitempty"`
	Elements []model.Element `yaml:"elements"           json:"elements"`
}

// ErrorResult describes a failure in the error taxonomy.
type ErrorResult struct {
	OK        bool                      `yaml:"ok"                 json:"ok"`
	Kind      string                    `yaml:"kind"               json:"kind"`
	Error     string                    `yaml:"error"              json:"error"`
	Retryable bool                      `yaml:"retryable"          json:"retryable"`
	Attempts  []model.Attempt           `yaml:"attempts,omitempty" json:"attempts,omitempty"`
	Vision    *model.VisionRequest      `yaml:"vision,omitempty"   json:"vision,omitempty"`
	Result    *model.VerificationResult `yaml:"result,omitempty"   json:"result,omitempty"`
}

// NewErrorResult classifies err and copies out its structured details.
func NewErrorResult(err error) ErrorResult {
	out := ErrorResult{
		Kind:      model.ErrorKind(err),
		Error:     err.Error(),
		Retryable: model.IsRetryable(err),
	}
	var (
		nf *model.NotFoundError
		ve *model.VerificationError
	)
	if errors.As(err, &nf) {
		out.Attempts, out.Vision = nf.Attempts, nf.Vision
	}
	if errors.As(err, &ve) {
		r := ve.Result
		out.Result = &r
	}
	return out
}

// Print serializes v to stdout in the current output format.
func Print(v interface{}) error {
	return Fprint(os.Stdout, v)
}

// Fprint serializes v to w in the current output format.
func Fprint(w io.Writer, v interface{}) error {
	data, err := Marshal(v, OutputFormat)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Marshal serializes v in format.
func Marshal(v interface{}, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		if PrettyOutput {
			enc.SetIndent("", "  ")
		}
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("json encode: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("yaml encode: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("yaml encode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return buf.Bytes(), nil
}
