package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/theimaginaryfoundation/casebook/extraction"
)

func newReportCmd(a *app) *cobra.Command {
	cfg := defaultReportConfig()
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render cases.json into sharded markdown",
		Long: `Packs the records of cases.json, in order, into cases_NNNN.md shards of at
most --max-bytes each and writes report_index.jsonl mapping every case to its
shard and anchor.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.normalize()
			if err := cfg.Validate(); err != nil {
				return usageError{err: err}
			}
			return runReport(a, cfg)
		},
	}
	bindReportFlags(cmd.Flags(), &cfg)
	return cmd
}

func runReport(a *app, cfg ReportConfig) error {
	log := a.log.With("stage", "report")

	records, err := extraction.ReadCases(cfg.InPath)
	if err != nil {
		return err
	}

	index, err := extraction.WriteCaseBook(records, extraction.CaseBookOptions{
		OutDir:        cfg.OutDir,
		Title:         cfg.Title,
		MaxBytes:      cfg.MaxBytes,
		Overwrite:     cfg.Overwrite,
		OnlyComplete:  cfg.OnlyComplete,
		IncludePrompt: cfg.IncludePrompt,
		Features:      a.cfg.Features,
	})
	if err != nil {
		return err
	}

	indexPath := filepath.Join(cfg.OutDir, "report_index.jsonl")
	if err := extraction.WriteJSONL(indexPath, index, cfg.Overwrite); err != nil {
		return err
	}

	shards := make(map[string]struct{})
	for _, r := range index {
		shards[r.ShardFile] = struct{}{}
	}
	log.Info("case book written", "out", cfg.OutDir, "cases", len(index), "shards", len(shards))
	return nil
}
