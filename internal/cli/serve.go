package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraharness/internal/auth"
	"github.com/pendergraft/contraharness/internal/observability/metrics"
	"github.com/pendergraft/contraharness/internal/server"
)

func createServeCmd() *cobra.Command {
	var port int
	var generateKey bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the deployment journal over HTTP",
		Long: `Start the journal HTTP server.

Deployments and their invocations are readable without authentication.
Recording a deployment (POST /api/v1/deployments) requires the key set in
SERVER_API_KEY; without one, writes are refused. Logs go to stdout.

EXAMPLES:
  SERVER_API_KEY=ch_key_... contraharness serve --port 8080
  contraharness serve --generate-key
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port, generateKey)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from PORT)")
	cmd.Flags().BoolVar(&generateKey, "generate-key", false, "generate a write API key for this process when SERVER_API_KEY is unset")

	return cmd
}

func runServe(cmd *cobra.Command, port int, generateKey bool) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	logger := setupLogger(cfg.Logging, os.Stdout)
	logger.Info("starting contraharness server", "version", cmd.Root().Version)

	if generateKey && cfg.Server.APIKey == "" {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("generating API key: %w", err)
		}
		cfg.Server.APIKey = key
		fmt.Fprintf(cmd.ErrOrStderr(), "Write API key for this process (not stored): %s\n", key)
	}
	if cfg.Server.APIKey == "" {
		logger.Warn("SERVER_API_KEY is not set, recording deployments over HTTP is disabled")
	}

	metrics.Init(cfg.Metrics.Enabled, "contraharness")

	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return server.New(cfg, store, logger).Run(cmd.Context())
}
