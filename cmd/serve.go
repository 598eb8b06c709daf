package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/wbr/pkg/api"
	"github.com/ethpandaops/wbr/pkg/harness"
	"github.com/ethpandaops/wbr/pkg/loader"
	"github.com/ethpandaops/wbr/pkg/observability"
	"github.com/ethpandaops/wbr/pkg/publish"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	serveAddr        string
	serveScenarioDir string
	serveMetricsAddr string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WBR API server",
	Long: `The API server builds decks from uploaded configs, publishes reports
to object storage and runs the scenario harness.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":5001", "listen address")
	serveCmd.Flags().StringVar(&serveScenarioDir, "scenario-dir", "unit_test_case", "scenario harness directory")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", ":9090", "Prometheus metrics address (empty to disable)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	ctx := cmd.Context()

	apiCfg := &api.Config{Addr: serveAddr, ScenarioDir: serveScenarioDir}
	if err := apiCfg.Validate(); err != nil {
		return err
	}

	publisher, err := publish.New(ctx, logger, publish.ConfigFromEnv())
	if err != nil {
		return err
	}

	if serveMetricsAddr != "" {
		observability.StartMetricsServer(serveMetricsAddr)
	}

	service := api.NewService(
		apiCfg,
		loader.New(logger),
		publisher,
		harness.New(logger, serveScenarioDir),
		logger,
	)

	if err := service.Start(ctx); err != nil {
		return err
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	return service.Stop()
}
