package cmd

import (
	"github.com/spf13/cobra"
)

var inputCmd = &cobra.Command{
	Use:   "input <text>",
	Short: "Type text, optionally into a located field",
	Long: `Type text into an input field. With a target flag the field is located and
tapped first; with --x/--y that point is tapped; otherwise the focused field
receives the text. The typed text showing on screen counts as verification.

Examples:
  mobile-mcp input alice --id username
  mobile-mcp input 123456 --text 密码
  mobile-mcp input hello --x 540 --y 800`,
	Args: cobra.ExactArgs(1),
	RunE: runInput,
}

func init() {
	rootCmd.AddCommand(inputCmd)
	addQueryFlags(inputCmd)
	inputCmd.Flags().Int("x", 0, "Tap absolute X device coordinate before typing")
	inputCmd.Flags().Int("y", 0, "Tap absolute Y device coordinate before typing")
	inputCmd.Flags().Duration("wait", 0, "Wait up to this long for the field to appear")
}

func runInput(cmd *cobra.Command, args []string) error {
	text := args[0]
	q, hasQuery, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	if pt, ok := pointFromFlags(cmd); ok {
		r, err := s.InputAt(cmd.Context(), pt, text)
		return printReport(cmd, r, err)
	}
	if !hasQuery {
		r, err := s.Input(cmd.Context(), nil, text, 0)
		return printReport(cmd, r, err)
	}
	r, err := s.Input(cmd.Context(), &q, text, durationFlag(cmd, "wait"))
	return printReport(cmd, r, err)
}
