package cmd

import (
	"fmt"
	"io"

	"github.com/mj1618/mobile-mcp/internal/recorder"
	"github.com/mj1618/mobile-mcp/internal/sheet"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run spreadsheet test cases across devices",
	Long: `Read test cases from the configured sheet backend (a YAML file, a SQLite
database, or a Feishu Bitable table), run them on one or more devices in
parallel, and write pass/fail with the failure reason back to each row.

Cases naming a device run on it; the rest are spread over --devices in
order. Cases on one device run one after another.

Examples:
  mobile-mcp batch --backend yaml --path cases.yaml
  mobile-mcp batch --backend sqlite --path cases.db --import cases.yaml
  mobile-mcp batch --backend feishu --devices emulator-5554,emulator-5556 --emit pytest --script-dir scripts`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().String("backend", "", "Sheet backend: yaml, sqlite, feishu (default: sheet.backend)")
	batchCmd.Flags().String("path", "", "Case file or database path (default: sheet.path)")
	batchCmd.Flags().StringSlice("devices", nil, "Devices for cases that name none (default: the only connected device)")
	batchCmd.Flags().String("import", "", "Load cases from a YAML file into the SQLite backend before running")
	batchCmd.Flags().StringSlice("case", nil, "Only run these case ids")
	batchCmd.Flags().Bool("pending", false, "Only run cases without a recorded outcome")
	batchCmd.Flags().Bool("retry", false, "Rerun a case once when an element was not found")
	batchCmd.Flags().String("emit", "", "Write a script for each passed case: pytest, maestro, json")
	batchCmd.Flags().String("script-dir", ".", "Directory for emitted scripts")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Sheet.Backend = backend
	}
	if path, _ := cmd.Flags().GetString("path"); path != "" {
		cfg.Sheet.Path = path
	}

	src, err := sheet.Open(ctx, cfg.Sheet)
	if err != nil {
		return err
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	if file, _ := cmd.Flags().GetString("import"); file != "" {
		db, ok := src.(*sheet.SQLite)
		if !ok {
			return fmt.Errorf("--import needs the sqlite backend, got %s", cfg.Sheet.Backend)
		}
		imported, err := sheet.NewYAMLFile(file).ReadCases(ctx)
		if err != nil {
			return err
		}
		for _, c := range imported {
			if err := db.PutCase(ctx, c); err != nil {
				return err
			}
		}
	}

	cases, err := src.ReadCases(ctx)
	if err != nil {
		return err
	}
	ids, _ := cmd.Flags().GetStringSlice("case")
	pending, _ := cmd.Flags().GetBool("pending")
	cases = selectCases(cases, ids, pending)
	if len(cases) == 0 {
		return fmt.Errorf("no cases to run")
	}

	m, err := newManager()
	if err != nil {
		return err
	}
	runner := &sheet.Runner{Sessions: m, Source: src}
	runner.Devices, _ = cmd.Flags().GetStringSlice("devices")
	runner.Retry, _ = cmd.Flags().GetBool("retry")
	runner.ScriptDir, _ = cmd.Flags().GetString("script-dir")
	if emit, _ := cmd.Flags().GetString("emit"); emit != "" {
		if runner.Emit, err = recorder.ParseTemplate(emit); err != nil {
			return err
		}
	}

	summary, runErr := runner.Run(ctx, cases)
	if err := printResult(cmd, summary); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d cases failed", summary.Failed, summary.Total)
	}
	return nil
}

// selectCases keeps cases listed in ids (all when empty) and, with pending,
// only those without an outcome.
func selectCases(cases []sheet.Case, ids []string, pending bool) []sheet.Case {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []sheet.Case
	for _, c := range cases {
		if len(want) > 0 && !want[c.ID] {
			continue
		}
		if pending && c.Status != sheet.StatusPending {
			continue
		}
		out = append(out, c)
	}
	return out
}
