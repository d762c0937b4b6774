package cmd

import (
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key <name>",
	Short: "Press a device key",
	Long: `Press a key by name (back, home, enter, search, delete, ...), by Chinese
alias (返回, 搜索, 回车), or by numeric key code. A search key that changes
nothing is retried once as enter.`,
	Args: cobra.ExactArgs(1),
	RunE: runKey,
}

func init() {
	rootCmd.AddCommand(keyCmd)
}

func runKey(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	r, err := s.PressKey(cmd.Context(), args[0])
	return printReport(cmd, r, err)
}
