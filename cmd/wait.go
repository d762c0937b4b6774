package cmd

import (
	"time"

	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/spf13/cobra"
)

// WaitResult is the output of a wait for an element.
type WaitResult struct {
	OK         bool             `yaml:"ok"         json:"ok"`
	Elapsed    string           `yaml:"elapsed"    json:"elapsed"`
	Resolution model.Resolution `yaml:"resolution" json:"resolution"`
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for an element, or for a fixed time",
	Long: `Poll the screen until a target resolves, or pause for --for when no target
is given. The pause is recorded in the action history so replayed scripts
keep the same timing.

Examples:
  mobile-mcp wait --text 首页 --timeout 15s
  mobile-mcp wait --for 2s`,
	Args: cobra.NoArgs,
	RunE: runWait,
}

func init() {
	rootCmd.AddCommand(waitCmd)
	addQueryFlags(waitCmd)
	waitCmd.Flags().Duration("timeout", 0, "Max time to wait for the target (default: locator.element_wait)")
	waitCmd.Flags().Duration("for", time.Second, "Pause length when no target is given")
}

func runWait(cmd *cobra.Command, args []string) error {
	q, hasQuery, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	if !hasQuery {
		r, err := s.Wait(cmd.Context(), durationFlag(cmd, "for"))
		return printReport(cmd, r, err)
	}

	start := time.Now()
	res, err := s.WaitFor(cmd.Context(), q, durationFlag(cmd, "timeout"))
	if err != nil {
		return printError(cmd, err)
	}
	return printResult(cmd, WaitResult{
		OK:         true,
		Elapsed:    time.Since(start).Round(time.Millisecond).String(),
		Resolution: res,
	})
}
