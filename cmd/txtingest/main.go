// Command txtingest fetches delimited and fixed-width text deliveries from
// an SFTP drop, decodes them by layout and loads the records into
// PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "txtingest",
	Short: "Text delivery ingestion pipeline",
	Long: "txtingest fetches archives and text files from a remote drop, expands them, " +
		"decodes each file by its layout and bulk-loads the records into PostgreSQL.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	_ = godotenv.Overload()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}
