package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/txtingest/internal/core"
)

var decodeCmd = &cobra.Command{
	Use:   "decode FILE",
	Short: "Decode one file and print its staged artifact",
	Long: "Classify and decode a local text file exactly as a run would, printing the staged " +
		"artifact JSON. Nothing is written to the staging directory or the database.",
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

var (
	decodeLayout string
	decodeOut    string
)

func init() {
	decodeCmd.Flags().StringVarP(&decodeLayout, "layout", "l", "", "Layout id to use instead of classifying by name")
	decodeCmd.Flags().StringVarP(&decodeOut, "out", "o", "", "Write the artifact to this path instead of stdout")
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(_ *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	path := args[0]

	var l core.Layout
	if decodeLayout != "" {
		var ok bool
		if l, ok = a.layouts.Get(decodeLayout); !ok {
			return fmt.Errorf("unknown layout %q", decodeLayout)
		}
	} else if l, err = a.layouts.Classify(path); err != nil {
		return err
	}

	art, err := a.decoder().DecodeFile(l, path)
	if err != nil {
		return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
	}

	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	data = append(data, '\n')

	if decodeOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(decodeOut, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", decodeOut, err)
	}
	a.logger.Info("artifact written", "path", decodeOut, "layout", l.ID, "records", len(art.Records))
	return nil
}
