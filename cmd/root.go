package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"github.com/mj1618/mobile-mcp/internal/output"
	"github.com/mj1618/mobile-mcp/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Register the adb device driver.
	_ "github.com/mj1618/mobile-mcp/internal/platform/android"
)

// cfg is the configuration loaded by the root command before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mobile-mcp",
	Short: "Drive Android devices for AI agents with verified actions",
	Long: `mobile-mcp reads the Android UI hierarchy, resolves targets by resource-id,
text, percent position, or vision, and verifies that every action changed the
screen before reporting success. It runs as an MCP server or as a CLI.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	observability.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.BuildDate)
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./mobile-mcp.yaml or ~/.config/mobile-mcp/mobile-mcp.yaml)")
	rootCmd.PersistentFlags().StringP("device", "s", "", "Device serial (default: the only connected device)")
	rootCmd.PersistentFlags().String("format", "yaml", "Output format: yaml, json")
	rootCmd.PersistentFlags().Bool("pretty", false, "Pretty-print JSON output")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfgFile, _ := rootCmd.PersistentFlags().GetString("config")

		v := viper.New()
		if err := v.BindPFlag("device.serial", rootCmd.PersistentFlags().Lookup("device")); err != nil {
			return err
		}
		if err := v.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
			return err
		}
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		observability.InitializeLogger(cfg.Logger)

		format, _ := rootCmd.PersistentFlags().GetString("format")
		f, err := output.ParseFormat(format)
		if err != nil {
			return err
		}
		output.OutputFormat = f
		output.PrettyOutput, _ = rootCmd.PersistentFlags().GetBool("pretty")
		return nil
	}
}
