package cmd

import (
	"fmt"
	"time"

	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/output"
	"github.com/mj1618/mobile-mcp/internal/platform"
	"github.com/mj1618/mobile-mcp/internal/session"
	"github.com/spf13/cobra"
)

// newManager builds a session manager for the configured device driver.
func newManager() (*session.Manager, error) {
	provider, err := platform.NewProvider(cfg.Device)
	if err != nil {
		return nil, err
	}
	return session.NewManager(provider, session.OptionsFromConfig(cfg)), nil
}

// openSession opens the session for --device, or for the only online device.
func openSession(cmd *cobra.Command) (*session.Session, error) {
	m, err := newManager()
	if err != nil {
		return nil, err
	}
	return m.Get(cmd.Context(), cfg.Device.Serial)
}

// printResult writes v to the command's stdout in the selected format.
func printResult(cmd *cobra.Command, v interface{}) error {
	return output.Fprint(cmd.OutOrStdout(), v)
}

// printError writes the structured form of err and returns err so the
// command exits non-zero.
func printError(cmd *cobra.Command, err error) error {
	if perr := output.Fprint(cmd.OutOrStdout(), output.NewErrorResult(err)); perr != nil {
		return fmt.Errorf("%w (printing failed: %v)", err, perr)
	}
	return err
}

// printReport prints an action report, or the error when the action failed
// or could not be verified.
func printReport(cmd *cobra.Command, r session.Report, err error) error {
	if err != nil {
		return printError(cmd, err)
	}
	return printResult(cmd, r)
}

// addQueryFlags registers the locator flags shared by click, input and wait.
func addQueryFlags(c *cobra.Command) {
	c.Flags().String("id", "", "Target resource-id (full or bare, e.g. login_btn)")
	c.Flags().String("text", "", "Target visible text or content-desc")
	c.Flags().String("description", "", "Visual description for the vision fallback")
	c.Flags().String("hint", "", "Pick among duplicates: top, bottom, left, right, first, last, or an index")
	c.Flags().Float64("x-percent", -1, "Target X position in percent of screen width")
	c.Flags().Float64("y-percent", -1, "Target Y position in percent of screen height")
}

// queryFromFlags builds a locator query. ok is false when no target flag was
// given.
func queryFromFlags(c *cobra.Command) (q model.Query, ok bool, err error) {
	q.ID, _ = c.Flags().GetString("id")
	q.Text, _ = c.Flags().GetString("text")
	q.Description, _ = c.Flags().GetString("description")
	hint, _ := c.Flags().GetString("hint")
	if q.Hint, err = model.ParseHint(hint); err != nil {
		return q, false, err
	}
	xp, _ := c.Flags().GetFloat64("x-percent")
	yp, _ := c.Flags().GetFloat64("y-percent")
	if xp >= 0 || yp >= 0 {
		q.Percent = &model.PercentPoint{X: xp, Y: yp}
	}
	if q.ID == "" && q.Text == "" && q.Description == "" && q.Percent == nil {
		return q, false, nil
	}
	return q, true, q.Validate()
}

// addExpectFlags registers the post-action signal flags.
func addExpectFlags(c *cobra.Command) {
	c.Flags().String("expect-text", "", "Text or toast that must appear after the action")
	c.Flags().String("expect-id", "", "Resource-id that must appear after the action")
	c.Flags().String("expect-gone", "", "Text that must disappear after the action")
}

func signalsFromFlags(c *cobra.Command) []model.Signal {
	var out []model.Signal
	if v, _ := c.Flags().GetString("expect-text"); v != "" {
		out = append(out, model.Signal{Kind: model.SignalText, Value: v})
	}
	if v, _ := c.Flags().GetString("expect-id"); v != "" {
		out = append(out, model.Signal{Kind: model.SignalElement, Value: v})
	}
	if v, _ := c.Flags().GetString("expect-gone"); v != "" {
		out = append(out, model.Signal{Kind: model.SignalGone, Value: v})
	}
	return out
}

// pointFromFlags reads --x and --y. ok is false when neither was given.
func pointFromFlags(c *cobra.Command) (model.Point, bool) {
	if !c.Flags().Changed("x") && !c.Flags().Changed("y") {
		return model.Point{}, false
	}
	x, _ := c.Flags().GetInt("x")
	y, _ := c.Flags().GetInt("y")
	return model.Point{X: x, Y: y}, true
}

func durationFlag(c *cobra.Command, name string) time.Duration {
	d, _ := c.Flags().GetDuration(name)
	return d
}
