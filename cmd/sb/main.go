// Command sb manages construction projects and their tasks, and serves the
// live dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/config"
	"github.com/sitebook/sitebook/internal/logging"
	"github.com/sitebook/sitebook/internal/ui"
)

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool

	cfg        *config.Config
	logger     *zap.Logger
	closeLogFn func() error
)

var rootCmd = &cobra.Command{
	Use:   "sb",
	Short: "sitebook - construction projects and their tasks",
	Long: `sitebook tracks construction projects and the trade tasks that make them up.

Changes are applied locally first and written to the configured store in the
background. A failed write marks the project or task with a sync error that
can be retried. When the store is unreachable the last fetched data is served
from the offline cache.

Settings are read from .sitebook/config.yaml and SITEBOOK_* environment
variables. Run 'sb init' to write a config file with the defaults.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" {
			return nil
		}
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		l, closeFn, err := logging.New(logging.Options{
			Level:      level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return err
		}
		logger = l
		closeLogFn = closeFn
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogFn != nil {
			_ = closeLogFn()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .sitebook/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "work", Title: "Projects and tasks:"},
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "server", Title: "Server:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
