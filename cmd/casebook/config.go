package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/theimaginaryfoundation/casebook/extraction"
)

type GlobalConfig struct {
	ConfigPath string
	LogMode    string
}

func defaultGlobalConfig() GlobalConfig {
	return GlobalConfig{LogMode: "dev"}
}

func (c GlobalConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LogMode)) {
	case "dev", "development", "prod", "production":
		return nil
	default:
		return fmt.Errorf("log-mode must be dev or prod, got %q", c.LogMode)
	}
}

func bindGlobalFlags(fs *pflag.FlagSet, cfg *GlobalConfig) {
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "YAML file overriding classifier junk, thresholds and feature rules")
	fs.StringVar(&cfg.LogMode, "log-mode", cfg.LogMode, "Log encoder: dev (console, debug) or prod (JSON, info)")
}

// InputConfig is shared by every command that reads an export.
type InputConfig struct {
	InputPath  string
	IDColumn   string
	Content    string
	Params     string
	ArrayField string
}

func (c InputConfig) rowOptions() extraction.RowOptions {
	return extraction.RowOptions{
		Columns: extraction.Columns{
			ID:      c.IDColumn,
			Content: c.Content,
			Params:  c.Params,
		},
		ArrayField: c.ArrayField,
	}
}

func defaultInputConfig() InputConfig {
	cols := extraction.DefaultColumns()
	return InputConfig{
		InputPath: filepath.FromSlash("data/cases.csv"),
		IDColumn:  cols.ID,
		Content:   cols.Content,
		Params:    cols.Params,
	}
}

func bindInputFlags(fs *pflag.FlagSet, cfg *InputConfig) {
	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Export to read (.csv, .json or .jsonl)")
	fs.StringVar(&cfg.IDColumn, "id-column", cfg.IDColumn, "Column/field holding the case id")
	fs.StringVar(&cfg.Content, "content-column", cfg.Content, "Column/field holding the content document")
	fs.StringVar(&cfg.Params, "params-column", cfg.Params, "Column/field holding the in_param document")
	fs.StringVar(&cfg.ArrayField, "array-field", cfg.ArrayField, "JSON exports: field holding the rows array when the top level is an object")
}

type ExtractConfig struct {
	InputConfig

	OutDir      string
	Split       bool
	Pretty      bool
	Concurrency int
	Print       bool
	Overwrite   bool
}

func defaultExtractConfig() ExtractConfig {
	return ExtractConfig{
		InputConfig: defaultInputConfig(),
		OutDir:      filepath.FromSlash("out"),
		Concurrency: 0,
	}
}

func (c ExtractConfig) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing --in")
	}
	if c.OutDir == "" {
		return errors.New("missing --out")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	return nil
}

func bindExtractFlags(fs *pflag.FlagSet, cfg *ExtractConfig) {
	bindInputFlags(fs, &cfg.InputConfig)
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for cases.json and case_index.jsonl")
	fs.BoolVar(&cfg.Split, "split", cfg.Split, "Also write one JSON file per case under <out>/cases")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print JSON outputs")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Rows assembled in parallel (0 = GOMAXPROCS)")
	fs.BoolVar(&cfg.Print, "print", cfg.Print, "Print the console report to stdout")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite existing outputs")
}

func (c *ExtractConfig) normalize() {
	c.InputPath = cleanPath(c.InputPath)
	c.OutDir = cleanPath(c.OutDir)
}

type ReportConfig struct {
	InPath        string
	OutDir        string
	Title         string
	MaxBytes      int
	OnlyComplete  bool
	IncludePrompt bool
	Overwrite     bool
}

func defaultReportConfig() ReportConfig {
	return ReportConfig{
		InPath:        filepath.FromSlash("out/cases.json"),
		OutDir:        filepath.FromSlash("out/report"),
		Title:         "好人坏人挑战案例",
		MaxBytes:      100 * 1024,
		IncludePrompt: true,
	}
}

func (c ReportConfig) Validate() error {
	if c.InPath == "" {
		return errors.New("missing --in")
	}
	if c.OutDir == "" {
		return errors.New("missing --out")
	}
	if c.MaxBytes <= 0 {
		return errors.New("max-bytes must be > 0")
	}
	return nil
}

func bindReportFlags(fs *pflag.FlagSet, cfg *ReportConfig) {
	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "cases.json written by extract")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for markdown shards and report_index.jsonl")
	fs.StringVar(&cfg.Title, "title", cfg.Title, "Title written at the top of every shard")
	fs.IntVar(&cfg.MaxBytes, "max-bytes", cfg.MaxBytes, "Max UTF-8 bytes per markdown shard file")
	fs.BoolVar(&cfg.OnlyComplete, "only-complete", cfg.OnlyComplete, "Skip incomplete cases")
	fs.BoolVar(&cfg.IncludePrompt, "include-prompt", cfg.IncludePrompt, "Include the system prompt template of each case")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite existing shards")
}

func (c *ReportConfig) normalize() {
	c.InPath = cleanPath(c.InPath)
	c.OutDir = cleanPath(c.OutDir)
}

var pipelineStages = []string{"extract", "report"}

type RunConfig struct {
	InputConfig

	BaseDir     string
	FromStage   string
	OnlyStage   string
	Concurrency int
	MaxBytes    int
	Pretty      bool
	Overwrite   bool
}

func defaultRunConfig() RunConfig {
	return RunConfig{
		InputConfig: defaultInputConfig(),
		BaseDir:     filepath.FromSlash("out"),
		MaxBytes:    100 * 1024,
	}
}

func (c RunConfig) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing --in")
	}
	if c.BaseDir == "" {
		return errors.New("missing --base-dir")
	}
	if c.OnlyStage != "" && c.FromStage != "" {
		return errors.New("use only one of --only-stage or --from-stage")
	}
	for _, s := range []string{c.OnlyStage, c.FromStage} {
		if s != "" && !isStage(s) {
			return fmt.Errorf("unknown stage %q (want %s)", s, strings.Join(pipelineStages, "|"))
		}
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.MaxBytes <= 0 {
		return errors.New("max-bytes must be > 0")
	}
	return nil
}

func bindRunFlags(fs *pflag.FlagSet, cfg *RunConfig) {
	bindInputFlags(fs, &cfg.InputConfig)
	fs.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "Base output directory")
	fs.StringVar(&cfg.FromStage, "from-stage", "", "Start at stage: extract|report")
	fs.StringVar(&cfg.OnlyStage, "only-stage", "", "Run only one stage: extract|report")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Rows assembled in parallel (0 = GOMAXPROCS)")
	fs.IntVar(&cfg.MaxBytes, "max-bytes", cfg.MaxBytes, "Max UTF-8 bytes per markdown shard file")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print JSON outputs")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite existing outputs (disables skipping finished stages)")
}

func (c *RunConfig) normalize() {
	c.InputPath = cleanPath(c.InputPath)
	c.BaseDir = cleanPath(c.BaseDir)
}

type InspectConfig struct {
	InputConfig

	CaseID string
	Row    int
}

func defaultInspectConfig() InspectConfig {
	return InspectConfig{InputConfig: defaultInputConfig()}
}

func (c InspectConfig) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing --in")
	}
	if (c.CaseID == "") == (c.Row == 0) {
		return errors.New("use exactly one of --case or --row")
	}
	if c.Row < 0 {
		return errors.New("row must be >= 1")
	}
	return nil
}

func bindInspectFlags(fs *pflag.FlagSet, cfg *InspectConfig) {
	bindInputFlags(fs, &cfg.InputConfig)
	fs.StringVar(&cfg.CaseID, "case", cfg.CaseID, "Case id to inspect")
	fs.IntVar(&cfg.Row, "row", cfg.Row, "1-based row number to inspect")
}

func (c *InspectConfig) normalize() {
	c.InputPath = cleanPath(c.InputPath)
	c.CaseID = strings.TrimSpace(c.CaseID)
}

type SchemaConfig struct {
	OutPath   string
	Overwrite bool
}

func bindSchemaFlags(fs *pflag.FlagSet, cfg *SchemaConfig) {
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Write the schema to this file instead of stdout")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite an existing schema file")
}

func isStage(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range pipelineStages {
		if s == st {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	return filepath.Clean(p)
}
