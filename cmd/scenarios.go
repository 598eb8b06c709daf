package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/wbr/pkg/harness"
)

// ErrScenarioChecksFailed is returned when any golden check fails.
var ErrScenarioChecksFailed = errors.New("scenario checks failed")

//nolint:gochecknoglobals // Cobra flags are typically global
var scenariosDir string

//nolint:gochecknoglobals // Cobra commands are typically global
var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Run the scenario harness",
	Long: `Scenarios runs every scenario directory through the full pipeline
and diffs the built decks against their golden expectations.`,
	RunE: runScenarios,
}

func init() {
	rootCmd.AddCommand(scenariosCmd)
	scenariosCmd.Flags().StringVar(&scenariosDir, "dir", "unit_test_case", "scenario directory")
}

func runScenarios(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	result, err := harness.New(logger, scenariosDir).Run(cmd.Context())
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	for _, scenario := range result.Scenarios {
		for _, tc := range scenario.TestCases {
			for _, check := range tc.Checks() {
				if check.Result != harness.StatusSuccess {
					return ErrScenarioChecksFailed
				}
			}
		}
	}

	return nil
}
