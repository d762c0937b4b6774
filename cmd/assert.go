package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AssertResult is the output of an assertion.
type AssertResult struct {
	Pass   bool   `yaml:"pass"   json:"pass"`
	Text   string `yaml:"text"   json:"text"`
	Found  bool   `yaml:"found"  json:"found"`
	Absent bool   `yaml:"absent" json:"absent"`
}

var assertCmd = &cobra.Command{
	Use:   "assert <text>",
	Short: "Check that text is (or is not) on screen",
	Long: `Take a fresh snapshot and check whether any element shows text, exactly or
as a substring. Exits non-zero when the expectation fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runAssert,
}

func init() {
	rootCmd.AddCommand(assertCmd)
	assertCmd.Flags().Bool("absent", false, "Expect the text to be absent")
}

func runAssert(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	absent, _ := cmd.Flags().GetBool("absent")
	found, err := s.AssertText(cmd.Context(), args[0])
	if err != nil {
		return printError(cmd, err)
	}
	res := AssertResult{Pass: found != absent, Text: args[0], Found: found, Absent: absent}
	if err := printResult(cmd, res); err != nil {
		return err
	}
	if !res.Pass {
		if absent {
			return fmt.Errorf("assertion failed: %q is on screen", args[0])
		}
		return fmt.Errorf("assertion failed: %q not found", args[0])
	}
	return nil
}
