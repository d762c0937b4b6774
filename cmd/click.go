package cmd

import (
	"fmt"

	"github.com/mj1618/mobile-mcp/internal/session"
	"github.com/spf13/cobra"
)

var clickCmd = &cobra.Command{
	Use:   "click",
	Short: "Tap an element and verify the screen reacted",
	Long: `Resolve a target by resource-id, text, percent position, or visual
description and tap it. The command fails unless the page changed or an
expected signal appeared.

Examples:
  mobile-mcp click --text 登录
  mobile-mcp click --id login_btn --expect-text 登录成功
  mobile-mcp click --text 删除 --hint bottom
  mobile-mcp click --x-percent 50 --y-percent 90
  mobile-mcp click --x 540 --y 1200
  mobile-mcp click --text 头像 --double`,
	Args: cobra.NoArgs,
	RunE: runClick,
}

func init() {
	rootCmd.AddCommand(clickCmd)
	addQueryFlags(clickCmd)
	addExpectFlags(clickCmd)
	clickCmd.Flags().Int("x", 0, "Tap absolute X device coordinate")
	clickCmd.Flags().Int("y", 0, "Tap absolute Y device coordinate")
	clickCmd.Flags().Bool("long", false, "Long-press instead of tap")
	clickCmd.Flags().Bool("double", false, "Double-tap instead of tap")
	clickCmd.Flags().Duration("wait", 0, "Wait up to this long for the target to appear")
}

func runClick(cmd *cobra.Command, args []string) error {
	q, hasQuery, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}
	pt, hasPoint := pointFromFlags(cmd)
	if !hasQuery && !hasPoint {
		return fmt.Errorf("specify --id, --text, --description, --x-percent/--y-percent, or --x/--y")
	}

	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	long, _ := cmd.Flags().GetBool("long")
	double, _ := cmd.Flags().GetBool("double")
	if hasPoint {
		if double {
			r, err := s.DoubleTapPoint(cmd.Context(), pt, signalsFromFlags(cmd)...)
			return printReport(cmd, r, err)
		}
		r, err := s.TapPoint(cmd.Context(), pt, signalsFromFlags(cmd)...)
		return printReport(cmd, r, err)
	}
	r, err := s.Tap(cmd.Context(), q, session.TapOptions{
		Long:   long,
		Double: double,
		Wait:   durationFlag(cmd, "wait"),
		Expect: signalsFromFlags(cmd),
	})
	return printReport(cmd, r, err)
}
