package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oakfield-research/qex-cli/internal/pipeline"
	"github.com/oakfield-research/qex-cli/pkg/anthropic"
)

var (
	extractKeys     []string
	extractAll      bool
	extractStages   []string
	extractNoResume bool
	extractGuidance []string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the extraction pipeline over documents",
	Long:  "Runs discovery, classification, statistical extraction, the vision fallback, aggregation, and post-processing for the selected document keys. Completed stages resume from the store unless --no-resume is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		keys := extractKeys
		if extractAll {
			discovered, err := listDocumentKeys(cfg.Paths.TEIDir)
			if err != nil {
				return err
			}
			keys = discovered
		}
		if len(keys) == 0 {
			return eris.New("no documents selected; pass --keys or --all")
		}

		stages, err := pipeline.ValidateStages(extractStages)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		client := anthropic.NewClient(cfg.Anthropic.Key)
		p, err := pipeline.New(cfg, st, client)
		if err != nil {
			return err
		}

		zap.L().Info("starting extraction",
			zap.Int("documents", len(keys)),
			zap.Int("max_concurrent", cfg.Batch.MaxConcurrentDocuments),
		)

		return p.ProcessBatch(ctx, keys, pipeline.Options{
			Stages:   stages,
			NoResume: extractNoResume,
			Guidance: extractGuidance,
		})
	},
}

// listDocumentKeys derives document keys from the TEI files on disk.
func listDocumentKeys(teiDir string) ([]string, error) {
	entries, err := os.ReadDir(teiDir)
	if err != nil {
		return nil, eris.Wrapf(err, "read tei dir %s", teiDir)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".tei.xml") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(filepath.Base(name), ".tei.xml"))
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return nil, eris.Errorf("no .tei.xml files in %s", teiDir)
	}
	return keys, nil
}

func init() {
	extractCmd.Flags().StringSliceVar(&extractKeys, "keys", nil, "document keys to process")
	extractCmd.Flags().BoolVar(&extractAll, "all", false, "process every TEI file in the configured directory")
	extractCmd.Flags().StringSliceVar(&extractStages, "stages", nil, "restrict which stages may run (others must be resumable)")
	extractCmd.Flags().BoolVar(&extractNoResume, "no-resume", false, "recompute every stage, ignoring stored results")
	extractCmd.Flags().StringArrayVar(&extractGuidance, "guidance", nil, "extra instruction appended to the extraction prompts (repeatable)")
	rootCmd.AddCommand(extractCmd)
}
