package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oakfield-research/qex-cli/internal/compare"
)

var (
	compareLLMPath     string
	compareHumanPath   string
	compareMappingPath string
	compareOutDir      string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare extracted records against human-coded data",
	Long:  "Loads the machine-extracted dataset and the human-coded ground truth, matches studies through an optional identifier mapping, and writes per-field agreement reports.",
	RunE: func(cmd *cobra.Command, args []string) error {
		llm, err := compare.LoadRecords(compareLLMPath)
		if err != nil {
			return err
		}
		human, err := compare.LoadRecords(compareHumanPath)
		if err != nil {
			return err
		}

		var mapping map[string]string
		if compareMappingPath != "" {
			mapping, err = compare.LoadMapping(compareMappingPath)
			if err != nil {
				return err
			}
		}

		engine := compare.NewEngine(compare.DefaultFields(), cfg.Compare.NumericTolerance)
		result := engine.Compare(llm, human, mapping)

		if result.Metrics.TotalComparisons == 0 {
			return eris.New("no studies matched between the two datasets")
		}

		if err := compare.WriteReports(compareOutDir, result); err != nil {
			return err
		}

		zap.L().Info("comparison complete",
			zap.Int("comparisons", result.Metrics.TotalComparisons),
			zap.Float64("overall_agreement", result.Metrics.OverallAgreement),
			zap.Int("unmatched_keys", len(result.UnmatchedKeys)),
		)
		fmt.Fprint(os.Stdout, compare.ReportText(result))
		return nil
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareLLMPath, "llm", "", "machine-extracted dataset (csv or xlsx)")
	compareCmd.Flags().StringVar(&compareHumanPath, "human", "", "human-coded dataset (csv or xlsx)")
	compareCmd.Flags().StringVar(&compareMappingPath, "mapping", "", "identifier mapping csv (human id, document key)")
	compareCmd.Flags().StringVar(&compareOutDir, "out", "comparison", "directory for comparison reports")
	compareCmd.MarkFlagRequired("llm")
	compareCmd.MarkFlagRequired("human")
	rootCmd.AddCommand(compareCmd)
}
