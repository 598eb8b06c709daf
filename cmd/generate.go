package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/wbr/pkg/generator"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	generateCSVFile string
	generateOutput  string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a starter config from a CSV file",
	Long: `Generate inspects the columns of a CSV file and writes a starter
report config: one sum metric and one chart block per numeric column.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&generateCSVFile, "csv", "", "CSV file to inspect (required)")
	generateCmd.Flags().StringVar(&generateOutput, "output", "", "output file (default stdout)")

	_ = generateCmd.MarkFlagRequired("csv")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	csvData, err := os.ReadFile(generateCSVFile)
	if err != nil {
		return err
	}

	out, err := generator.Generate(csvData)
	if err != nil {
		return err
	}

	if generateOutput == "" {
		fmt.Print(string(out))

		return nil
	}

	return os.WriteFile(generateOutput, out, 0o644)
}
