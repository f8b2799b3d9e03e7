package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/txtingest/internal/core"
)

var classifyCmd = &cobra.Command{
	Use:   "classify FILE...",
	Short: "Show which layout each file name maps to",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(_ *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	unmatched := 0
	for _, name := range args {
		l, err := a.layouts.Classify(name)
		if err != nil {
			unmatched++
			fmt.Fprintf(tw, "%s\t-\t%s\n", name, core.FormatUserError(err))
			continue
		}
		note := ""
		if m := a.layouts.Matches(name); len(m) > 1 {
			note = fmt.Sprintf("also matches %v", m[1:])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, l.ID, note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if unmatched > 0 {
		return fmt.Errorf("%d of %d files match no layout", unmatched, len(args))
	}
	return nil
}
