package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/wbr/pkg/annotations"
	"github.com/ethpandaops/wbr/pkg/config"
	"github.com/ethpandaops/wbr/pkg/deck"
	"github.com/ethpandaops/wbr/pkg/engine"
	"github.com/ethpandaops/wbr/pkg/loader"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	buildConfigFile string
	buildCSVFile    string
	buildOutput     string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a deck document from a config file",
	Long: `Build runs the full pipeline once: load the declared sources (or a
CSV file given with --csv), materialize the metrics and write the deck
document as JSON.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVar(&buildConfigFile, "config", "config.yaml", "report config file")
	buildCmd.Flags().StringVar(&buildCSVFile, "csv", "", "CSV file replacing the declared data sources")
	buildCmd.Flags().StringVar(&buildOutput, "output", "", "output file (default stdout)")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	configData, err := os.ReadFile(buildConfigFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configData)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	var override []byte

	if buildCSVFile != "" {
		if override, err = os.ReadFile(buildCSVFile); err != nil {
			return err
		}
	}

	result, err := loader.New(logger).Load(cmd.Context(), cfg, override)
	if err != nil {
		return err
	}

	eng, err := engine.New(logger, cfg, result.Master)
	if err != nil {
		return err
	}

	if err := eng.Materialize(); err != nil {
		return err
	}

	events := annotations.Resolve(logger, result.Events, eng.WeekEnding(), eng.Resolves)

	doc, err := deck.NewBuilder(logger, cfg, eng, events).Build()
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if buildOutput == "" {
		fmt.Println(string(out))

		return nil
	}

	return os.WriteFile(buildOutput, out, 0o644)
}
