package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/pdf-flattener/cmd/pdf-flattener/ui"
	"github.com/spherical/pdf-flattener/internal/config"
	"github.com/spherical/pdf-flattener/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pdf-flattener",
	Short: "Flatten PDFs into image-only documents",
	Long: `pdf-flattener renders every page of a PDF to an image and rebuilds the document
from those images. Text, vector content and annotations are discarded, so redacted
or signed content cannot be selected, copied or uncovered.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(noColor)

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      cfg.Observability.LogFormat,
			ServiceName: cfg.Observability.ServiceName,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// quietLogger keeps interactive commands from interleaving log lines with progress
// bars unless --verbose is set.
func quietLogger() *observability.Logger {
	if verbose {
		return logger
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       "error",
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
}
