package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/txtingest/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long: "Run one pass: fetch, extract, decode, stage and persist. Exits 0 when every file " +
		"was handled, 2 when some files were skipped and 1 when the run aborted.",
	RunE: runOnce,
}

var runJSON bool

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the run report as JSON")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	p, err := a.pipeline()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep := p.Run(ctx, "cli")

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	} else {
		printReport(os.Stdout, rep)
	}

	if code := rep.ExitCode(); code != 0 {
		return &exitError{code: code, err: fmt.Errorf("run %s finished %s", rep.RunID, rep.Status)}
	}
	return nil
}

func printReport(w io.Writer, rep *pipeline.Report) {
	c := rep.Counts
	fmt.Fprintf(w, "run %s: %s (%s) in %s\n", rep.RunID, rep.Status, rep.Final, rep.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  listed %d, transferred %d, extracted %d, decoded %d, staged %d\n",
		c.Listed, c.Transferred, c.Extracted, c.Decoded, c.Staged)
	fmt.Fprintf(w, "  persisted %d files (%d duplicates), %d records\n", c.Persisted, c.Duplicates, c.Records)
	if rep.Error != "" {
		fmt.Fprintf(w, "  error [%s]: %s\n", rep.ErrorCode, rep.Error)
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(w, "  skipped %s at %s [%s]: %s\n", f.File, f.Stage, f.Code, f.Message)
	}
}
