package cmd

import (
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List attached devices",
	Long:  "List the devices the configured driver can see, with their adb state.",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().Bool("online", false, "Only list devices that accept commands")
}

func runDevices(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	devices, err := m.Devices(cmd.Context())
	if err != nil {
		return printError(cmd, err)
	}
	if online, _ := cmd.Flags().GetBool("online"); online {
		kept := devices[:0]
		for _, d := range devices {
			if d.Online() {
				kept = append(kept, d)
			}
		}
		devices = kept
	}
	if devices == nil {
		devices = []model.Device{}
	}
	return printResult(cmd, devices)
}
