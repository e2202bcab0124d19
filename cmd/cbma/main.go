// Command cbma runs coordinate-based meta-analyses on simulated datasets
// from the command line, mostly useful for validating estimator and
// correction settings before wiring the library into a pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neurometa/gocbma/logging"
)

var logLevel string

func main() {
	root := &cobra.Command{
		Use:   "cbma",
		Short: "Coordinate-based meta-analysis toolkit",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch logLevel {
			case "debug":
				logging.SetLevel(logging.DebugLevel)
			case "info":
				logging.SetLevel(logging.InfoLevel)
			case "warn":
				logging.SetLevel(logging.WarnLevel)
			case "error":
				logging.SetLevel(logging.ErrorLevel)
			default:
				return fmt.Errorf("unknown log level %q", logLevel)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(newRunCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
