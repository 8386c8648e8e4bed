// Command capa grades CAPA problems from the command line or over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/config"
	"github.com/mind-engage/mindengage-capa/internal/logging"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "capa",
	Short: "Grade CAPA problems",
	Long: `capa builds problem XML into gradable responses and grades student
submissions against them, locally or as an HTTP service with persisted
student state and external grader callbacks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogJSON)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment overrides it)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(answersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
