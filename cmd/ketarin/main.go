package main

import (
	"fmt"
	"os"

	"github.com/JimH44/Ketarin4Linux/internal/common/logger"
	"github.com/JimH44/Ketarin4Linux/internal/common/output"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	quiet      bool
	noColor    bool
	logToFile  bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "ketarin",
	Short: "Track and install application releases",
	Long: `Ketarin watches download pages for new application releases, downloads
them and runs their setup instructions.

Each job names a download URL built from variables. Variables extract text
from web pages with start/end delimiters or regular expressions, and may
reference each other as {name}.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor || !output.IsTerminal() {
			output.NoColor()
		}
		if logToFile {
			if err := logger.Default().EnableFileLogging(); err != nil {
				return fmt.Errorf("enabling log file: %w", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Default().Close()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log", false, "Also write the log to the state directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.config/ketarin/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
