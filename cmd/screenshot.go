package cmd

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture a compressed screenshot",
	Long: `Capture the device screen, scale it to screenshot.max_width and encode it as
JPEG. Without --output the image is written to stdout as base64.

Coordinates read from the scaled image map back to the device with
click --x/--y after multiplying by screen/width.`,
	Args: cobra.NoArgs,
	RunE: runScreenshot,
}

func init() {
	rootCmd.AddCommand(screenshotCmd)
	screenshotCmd.Flags().String("output", "", "Output file path (default: stdout as base64)")
	screenshotCmd.Flags().Bool("annotate", false, "Draw numbered boxes around interactive elements")
	screenshotCmd.Flags().Int("max-width", 0, "Override screenshot.max_width")
	screenshotCmd.Flags().Int("quality", 0, "Override JPEG quality 1-100")
}

func runScreenshot(cmd *cobra.Command, args []string) error {
	if w, _ := cmd.Flags().GetInt("max-width"); w > 0 {
		cfg.Screenshot.MaxWidth = w
	}
	if q, _ := cmd.Flags().GetInt("quality"); q > 0 {
		if q > 100 {
			return fmt.Errorf("quality must be 1-100, got %d", q)
		}
		cfg.Screenshot.Quality = q
	}
	s, err := openSession(cmd)
	if err != nil {
		return printError(cmd, err)
	}
	annotate, _ := cmd.Flags().GetBool("annotate")
	img, err := s.Screenshot(cmd.Context(), annotate)
	if err != nil {
		return printError(cmd, err)
	}

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return err
		}
		img.Path = path
		return printResult(cmd, img)
	}

	encoder := base64.NewEncoder(base64.StdEncoding, cmd.OutOrStdout())
	if _, err := encoder.Write(img.Data); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
