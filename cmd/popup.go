package cmd

import (
	"fmt"

	"github.com/mj1618/mobile-mcp/internal/popup"
	"github.com/spf13/cobra"
)

// PopupResult is the output of popup detection.
type PopupResult struct {
	Popup      bool              `yaml:"popup"      json:"popup"`
	Candidates []popup.Candidate `yaml:"candidates" json:"candidates"`
}

var popupCmd = &cobra.Command{
	Use:   "popup",
	Short: "Detect or close a popup, ad, or guide overlay",
	Long: `Report the dismissal controls of the top-most overlay. Only controls inside
that layer are considered, so a "Cancel" in a page behind a dialog is never
picked. With --close the best control is tapped and the tap verified.`,
	Args: cobra.NoArgs,
	RunE: runPopup,
}

func init() {
	rootCmd.AddCommand(popupCmd)
	popupCmd.Flags().Bool("close", false, "Tap the best dismissal control")
}

func runPopup(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	if closeIt, _ := cmd.Flags().GetBool("close"); closeIt {
		report, err := s.ClosePopup(cmd.Context())
		if err != nil {
			return printError(cmd, err)
		}
		if err := printResult(cmd, report); err != nil {
			return err
		}
		if !report.Closed && report.Attempts > 0 {
			return fmt.Errorf("popup dismissal could not be verified after %d attempt(s)", report.Attempts)
		}
		return nil
	}

	candidates, err := s.DetectPopup(cmd.Context())
	if err != nil {
		return printError(cmd, err)
	}
	if candidates == nil {
		candidates = []popup.Candidate{}
	}
	return printResult(cmd, PopupResult{Popup: len(candidates) > 0, Candidates: candidates})
}
