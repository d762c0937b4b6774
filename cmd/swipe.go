package cmd

import (
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/spf13/cobra"
)

var swipeCmd = &cobra.Command{
	Use:       "swipe <up|down|left|right>",
	Short:     "Swipe across the screen",
	Long:      "Swipe from 80% to 20% of the screen along the center line. \"up\" scrolls content down.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down", "left", "right"},
	RunE:      runSwipe,
}

func init() {
	rootCmd.AddCommand(swipeCmd)
}

func runSwipe(cmd *cobra.Command, args []string) error {
	dir, err := model.ParseDirection(args[0])
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	r, err := s.Swipe(cmd.Context(), dir)
	return printReport(cmd, r, err)
}
