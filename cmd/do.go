package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mj1618/mobile-mcp/internal/flow"
	"github.com/mj1618/mobile-mcp/internal/recorder"
	"github.com/spf13/cobra"
)

// DoResult is the output of a do command.
type DoResult struct {
	flow.Result `yaml:",inline"`
	Script      string `yaml:"script,omitempty" json:"script,omitempty"`
}

var doCmd = &cobra.Command{
	Use:   "do",
	Short: "Execute multiple steps in a batch",
	Long: `Execute a sequence of steps from a YAML list or from Chinese instructions,
read from --file or stdin. Steps execute sequentially on one device and by
default execution stops on the first error.

Supported step types: click, long_click, input, swipe, key, launch, terminate,
wait, sleep, assert, close_popup

With --emit the verified steps are rendered as a replayable script.

Examples:
  mobile-mcp do <<'EOF'
  - launch: { package: com.example.app }
  - click: { text: "登录", expect_text: "登录成功" }
  - input: { id: username, value: alice }
  - key: { name: search }
  EOF

  echo '启动应用com.example.app，点击登录，断言"首页"' | mobile-mcp do --emit pytest`,
	Args: cobra.NoArgs,
	RunE: runDo,
}

func init() {
	rootCmd.AddCommand(doCmd)
	doCmd.Flags().String("file", "", "Read steps from this file instead of stdin")
	doCmd.Flags().Bool("stop-on-error", true, "Stop execution on first error")
	doCmd.Flags().String("emit", "", "Render the recorded steps as a script: pytest, maestro, json")
	doCmd.Flags().String("script", "", "Write the emitted script to this file (default: include it in the output)")
	doCmd.Flags().String("name", "", "Script name")
	doCmd.Flags().String("package", "", "Application package the script targets")
}

func runDo(cmd *cobra.Command, args []string) error {
	var tmpl recorder.Template
	if emit, _ := cmd.Flags().GetString("emit"); emit != "" {
		t, err := recorder.ParseTemplate(emit)
		if err != nil {
			return err
		}
		tmpl = t
	}

	data, err := readSteps(cmd)
	if err != nil {
		return err
	}
	steps, err := flow.Parse(data)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("no steps provided; expected a YAML list of actions or instructions")
	}

	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	stopOnError, _ := cmd.Flags().GetBool("stop-on-error")
	res := DoResult{Result: flow.Run(cmd.Context(), s, steps, flow.Options{StopOnError: stopOnError})}

	if tmpl != "" && len(s.History()) > 0 {
		name, _ := cmd.Flags().GetString("name")
		pkg, _ := cmd.Flags().GetString("package")
		script, err := s.GenerateScript(tmpl, recorder.Meta{Name: name, Package: pkg, Generated: time.Now()})
		if err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("script"); path != "" {
			if err := os.WriteFile(path, script, 0o644); err != nil {
				return fmt.Errorf("write script: %w", err)
			}
			res.Script = path
		} else {
			res.Script = string(script)
		}
	}

	if err := printResult(cmd, res); err != nil {
		return err
	}
	return res.Err()
}

func readSteps(cmd *cobra.Command) ([]byte, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read steps: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no steps provided on stdin; pipe a YAML list of actions")
	}
	return data, nil
}
