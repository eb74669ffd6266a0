package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/theimaginaryfoundation/casebook/extraction"
	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
)

func newExtractCmd(a *app) *cobra.Command {
	cfg := defaultExtractConfig()
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Assemble case records from an export",
		Long: `Reads every row of the export, assembles one case record per row and writes:
  <out>/cases.json          all records, input order
  <out>/case_index.jsonl    one index line per record
  <out>/cases/<id>.json     with --split
  <out>/casebook.yaml       copy of --config, when given`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.normalize()
			if err := cfg.Validate(); err != nil {
				return usageError{err: err}
			}
			_, err := runExtract(cmd.Context(), a, cfg)
			return err
		},
	}
	bindExtractFlags(cmd.Flags(), &cfg)
	return cmd
}

type extractSummary struct {
	Rows               int
	Complete           int
	ParseFailures      int
	ClassificationMiss int
	Unresolved         int
}

func runExtract(ctx context.Context, a *app, cfg ExtractConfig) (extractSummary, error) {
	log := a.log.With("stage", "extract")

	rows, err := extraction.LoadRows(ctx, cfg.InputPath, cfg.rowOptions())
	if err != nil {
		return extractSummary{}, err
	}
	log.Info("rows loaded", "path", cfg.InputPath, "rows", len(rows))

	results, err := extraction.ProcessRows(ctx, rows, a.assembler(), cfg.Concurrency)
	if err != nil {
		return extractSummary{}, err
	}

	var sum extractSummary
	sum.Rows = len(results)
	for _, res := range results {
		if res.Record.Complete() {
			sum.Complete++
		}
		if len(res.Diagnostics.ParseErrors) > 0 {
			sum.ParseFailures++
		}
		if res.Diagnostics.ClassificationMiss {
			sum.ClassificationMiss++
		}
		sum.Unresolved += len(res.Diagnostics.Unresolved)
	}
	records := extraction.Records(results)

	casesPath := filepath.Join(cfg.OutDir, "cases.json")
	if err := extraction.WriteCases(casesPath, records, cfg.Pretty, cfg.Overwrite); err != nil {
		return sum, err
	}

	files := make([]string, len(records))
	if cfg.Split {
		names, err := extraction.WriteCaseFiles(filepath.Join(cfg.OutDir, "cases"), records, cfg.Pretty, cfg.Overwrite)
		if err != nil {
			return sum, err
		}
		for i, name := range names {
			files[i] = filepath.ToSlash(filepath.Join("cases", name))
		}
	}

	index := make([]extraction.CaseIndexRecord, 0, len(records))
	for i, rec := range records {
		index = append(index, extraction.BuildIndexRecord(rec, files[i], a.cfg.Features))
	}
	if err := extraction.WriteJSONL(filepath.Join(cfg.OutDir, "case_index.jsonl"), index, cfg.Overwrite); err != nil {
		return sum, err
	}

	if a.global.ConfigPath != "" {
		dst := filepath.Join(cfg.OutDir, "casebook.yaml")
		copied, err := fileutils.CopyFileIfExists(a.global.ConfigPath, dst, cfg.Overwrite)
		if err != nil {
			return sum, fmt.Errorf("copy config: %w", err)
		}
		if copied {
			log.Debug("copied config", "path", dst)
		}
	}

	if cfg.Print {
		if err := extraction.WriteConsoleReport(a.stdout, records); err != nil {
			return sum, fmt.Errorf("console report: %w", err)
		}
	}

	log.Info("cases written",
		"path", casesPath,
		"rows", sum.Rows,
		"complete", sum.Complete,
		"parse_failures", sum.ParseFailures,
		"classification_misses", sum.ClassificationMiss,
		"unresolved_refs", sum.Unresolved,
	)
	return sum, nil
}
