package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theimaginaryfoundation/casebook/extraction"
	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
)

func newRunCmd(a *app) *cobra.Command {
	cfg := defaultRunConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run extract then report into one base directory",
		Long: `Runs the stages in order:
  extract  <in>                -> <base-dir>/cases.json, case_index.jsonl
  report   <base-dir>/cases.json -> <base-dir>/report/

Finished stages are skipped unless --overwrite is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.normalize()
			if err := cfg.Validate(); err != nil {
				return usageError{err: err}
			}

			stages := pipelineStages
			if cfg.OnlyStage != "" {
				stages = []string{strings.ToLower(strings.TrimSpace(cfg.OnlyStage))}
			} else if cfg.FromStage != "" {
				stages = stagesFrom(stages, cfg.FromStage)
			}

			casesPath := filepath.Join(cfg.BaseDir, "cases.json")
			reportDir := filepath.Join(cfg.BaseDir, "report")

			for _, stage := range stages {
				switch stage {
				case "extract":
					if !cfg.Overwrite && fileutils.FileExists(casesPath) {
						fmt.Fprintln(a.stdout, "skip extract: cases.json already exists")
						continue
					}
					sum, err := runExtract(cmd.Context(), a, ExtractConfig{
						InputConfig: cfg.InputConfig,
						OutDir:      cfg.BaseDir,
						Pretty:      cfg.Pretty,
						Concurrency: cfg.Concurrency,
						Overwrite:   cfg.Overwrite,
					})
					if err != nil {
						return fmt.Errorf("extract: %w", err)
					}
					fmt.Fprintf(a.stdout, "ok: extract (%d rows, %d complete)\n", sum.Rows, sum.Complete)
				case "report":
					if !cfg.Overwrite && dirHasMarkdown(reportDir) {
						fmt.Fprintln(a.stdout, "skip report: shards already exist")
						continue
					}
					rc := defaultReportConfig()
					rc.InPath = casesPath
					rc.OutDir = reportDir
					rc.MaxBytes = cfg.MaxBytes
					rc.Overwrite = cfg.Overwrite
					if err := runReport(a, rc); err != nil {
						return fmt.Errorf("report: %w", err)
					}
					fmt.Fprintln(a.stdout, "ok: report")
				default:
					return usagef("unknown stage: %s", stage)
				}
			}

			if recs, err := extraction.ReadCases(casesPath); err == nil {
				st := extraction.ComputeStats(recs)
				fmt.Fprintf(a.stdout, "cases: %d total, %d complete\n", st.Total, st.Complete)
			}
			return nil
		},
	}
	bindRunFlags(cmd.Flags(), &cfg)
	return cmd
}

func stagesFrom(stages []string, from string) []string {
	from = strings.ToLower(strings.TrimSpace(from))
	for i, s := range stages {
		if s == from {
			return stages[i:]
		}
	}
	return stages
}

func dirHasMarkdown(dir string) bool {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".md") {
			return true
		}
	}
	return false
}
