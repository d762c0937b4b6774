package cmd

import (
	"github.com/mitchellh/go-homedir"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/spf13/cobra"
)

// AppsResult is the output of app list.
type AppsResult struct {
	Device   string   `yaml:"device"              json:"device"`
	Current  string   `yaml:"current,omitempty"   json:"current,omitempty"`
	Packages []string `yaml:"packages"            json:"packages"`
}

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Launch, stop, install, or list applications",
}

var appLaunchCmd = &cobra.Command{
	Use:   "launch <package>",
	Short: "Launch an application and verify its screen appeared",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return printError(cmd, err)
		}
		r, err := s.Launch(cmd.Context(), args[0])
		return printReport(cmd, r, err)
	},
}

var appStopCmd = &cobra.Command{
	Use:   "stop <package>",
	Short: "Force-stop an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return printError(cmd, err)
		}
		r, err := s.Terminate(cmd.Context(), args[0])
		return printReport(cmd, r, err)
	},
}

var appListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return printError(cmd, err)
		}
		all, _ := cmd.Flags().GetBool("all")
		pkgs, err := s.ListApps(cmd.Context(), !all)
		if err != nil {
			return printError(cmd, err)
		}
		current, _ := s.CurrentApp(cmd.Context())
		if pkgs == nil {
			pkgs = []string{}
		}
		return printResult(cmd, AppsResult{Device: s.Serial(), Current: current, Packages: pkgs})
	},
}

// PackageResult is the output of app install, uninstall, and current.
type PackageResult struct {
	Device  string `yaml:"device"            json:"device"`
	Package string `yaml:"package,omitempty" json:"package,omitempty"`
	APK     string `yaml:"apk,omitempty"     json:"apk,omitempty"`
}

var appCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the foreground package",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return printError(cmd, err)
		}
		pkg, err := s.CurrentApp(cmd.Context())
		if err != nil {
			return printError(cmd, err)
		}
		return printResult(cmd, PackageResult{Device: s.Serial(), Package: pkg})
	},
}

var appInstallCmd = &cobra.Command{
	Use:   "install <apk>",
	Short: "Install an APK file, replacing an existing version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := homedir.Expand(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd)
		if err != nil {
			return printError(cmd, err)
		}
		if err := s.InstallApp(cmd.Context(), path); err != nil {
			return printError(cmd, err)
		}
		return printResult(cmd, PackageResult{Device: s.Serial(), APK: path})
	},
}

var appUninstallCmd = &cobra.Command{
	Use:   "uninstall <package>",
	Short: "Uninstall an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return printError(cmd, err)
		}
		if err := s.UninstallApp(cmd.Context(), args[0]); err != nil {
			return printError(cmd, err)
		}
		return printResult(cmd, PackageResult{Device: s.Serial(), Package: args[0]})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <url>",
	Short: "Open a URL with the device's default handler",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return printError(cmd, err)
		}
		r, err := s.OpenURL(cmd.Context(), args[0])
		return printReport(cmd, r, err)
	},
}

// OrientationResult is the output of orientation.
type OrientationResult struct {
	Device      string            `yaml:"device"           json:"device"`
	Orientation model.Orientation `yaml:"orientation"      json:"orientation"`
	Screen      *model.Size       `yaml:"screen,omitempty" json:"screen,omitempty"`
}

var orientationCmd = &cobra.Command{
	Use:   "orientation [portrait|landscape]",
	Short: "Print the display orientation, or lock it when an argument is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var want model.Orientation
		if len(args) == 1 {
			o, err := model.ParseOrientation(args[0])
			if err != nil {
				return err
			}
			want = o
		}
		s, err := openSession(cmd)
		if err != nil {
			return printError(cmd, err)
		}
		if want == "" {
			o, err := s.Orientation(cmd.Context())
			if err != nil {
				return printError(cmd, err)
			}
			return printResult(cmd, OrientationResult{Device: s.Serial(), Orientation: o})
		}
		size, err := s.SetOrientation(cmd.Context(), want)
		if err != nil {
			return printError(cmd, err)
		}
		return printResult(cmd, OrientationResult{Device: s.Serial(), Orientation: want, Screen: &size})
	},
}

func init() {
	rootCmd.AddCommand(appCmd, openCmd, orientationCmd)
	appCmd.AddCommand(appLaunchCmd, appStopCmd, appListCmd, appCurrentCmd, appInstallCmd, appUninstallCmd)
	appListCmd.Flags().Bool("all", false, "Include system packages")
}
