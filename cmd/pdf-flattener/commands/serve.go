package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf-flattener/cmd/pdf-flattener/ui"
	"github.com/spherical/pdf-flattener/internal/api"
	"github.com/spherical/pdf-flattener/pkg/flattener"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP flattening API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := flattener.NewClientWithConfig(cfg, logger)
	if err != nil {
		return err
	}

	if err := client.Check(); err != nil {
		// Keep serving so /ready reports the problem.
		logger.Warn().Err(err).Msg("Toolchain check failed")
		ui.Warning("%s", flattener.Hint(err))
	}

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("toolchain", client.Toolchain()).
		Str("buffer", cfg.Buffer.Strategy).
		Int("max_concurrent_runs", cfg.Server.MaxConcurrentRuns).
		Msg("Starting PDF flattener API")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(cfg.Server, api.NewRouter(logger, client, cfg), logger)
	return server.Run(ctx)
}
