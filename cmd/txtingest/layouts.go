package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/txtingest/internal/core"
	"github.com/JonMunkholm/txtingest/internal/core/layouts"
)

var layoutsCmd = &cobra.Command{
	Use:   "layouts",
	Short: "List registered layouts, or check a layouts file",
	RunE:  runLayouts,
}

var layoutsCheck string

func init() {
	layoutsCmd.Flags().StringVar(&layoutsCheck, "check", "", "Validate this layouts file against the built-in layouts and exit")
	rootCmd.AddCommand(layoutsCmd)
}

func runLayouts(_ *cobra.Command, _ []string) error {
	if layoutsCheck != "" {
		return checkLayoutsFile(layoutsCheck)
	}

	a, err := loadApp(false)
	if err != nil {
		return err
	}
	for _, l := range a.layouts.All() {
		fmt.Fprintln(os.Stdout, core.Describe(l))
	}
	return nil
}

// checkLayoutsFile reports every problem in path without needing the rest
// of the configuration.
func checkLayoutsFile(path string) error {
	lf, err := core.LoadLayoutFile(path)
	if err != nil {
		return err
	}
	reg := core.NewLayoutRegistry()
	conv := core.NewConversionRegistry()
	if err := layouts.Register(reg, conv); err != nil {
		return err
	}
	if err := lf.Apply(reg, conv); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(os.Stdout, "%s: %d layouts, %d conversion rules ok\n", path, len(lf.Layouts), len(lf.Conversions))
	return nil
}
