package cmd

import (
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/output"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Aliases: []string{"read"},
	Short:   "Read the on-screen UI elements",
	Long: `Dump the uiautomator hierarchy and print the indexed elements with their
text, resource-id, bounds and center point. By default only interactive
elements are listed.

Examples:
  mobile-mcp snapshot
  mobile-mcp snapshot --text 登录
  mobile-mcp snapshot --all --roles btn,input`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().Bool("all", false, "Include non-interactive elements")
	snapshotCmd.Flags().String("text", "", "Only elements whose text, description or id contains this")
	snapshotCmd.Flags().StringSlice("roles", nil, "Only these roles (btn, input, txt, img, list, ...)")
	snapshotCmd.Flags().Int("max-elements", 0, "Max elements in output (0 = unlimited)")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	all, _ := cmd.Flags().GetBool("all")
	text, _ := cmd.Flags().GetString("text")
	roles, _ := cmd.Flags().GetStringSlice("roles")
	maxElements, _ := cmd.Flags().GetInt("max-elements")

	idx, elements, err := s.Elements(cmd.Context(), model.FilterOptions{
		Roles:           roles,
		Text:            text,
		InteractiveOnly: !all,
		MaxElements:     maxElements,
	})
	if err != nil {
		return printError(cmd, err)
	}
	if elements == nil {
		elements = []model.Element{}
	}
	return printResult(cmd, output.SnapshotResult{
		Device:   idx.Snapshot().Device(),
		TS:       idx.Snapshot().TakenAt().Unix(),
		Screen:   idx.Screen(),
		Popup:    s.PopupShown(idx),
		Elements: elements,
	})
}
