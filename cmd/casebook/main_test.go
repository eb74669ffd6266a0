package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/theimaginaryfoundation/casebook/extraction"
	"github.com/theimaginaryfoundation/casebook/internal/logger"
)

const (
	catCaseID     = "000004536054035316768768"
	catBackground = "深夜，你在回家路上，路灯突然熄灭，一只黑猫出现在你面前，它居然说话了。"
	catModel      = "ep-20250321110708-775b5"
)

// writeExport writes a two-row JSON export: one complete case and one whose params cell is broken.
func writeExport(t *testing.T, dir string) string {
	t.Helper()

	rows := []map[string]any{
		{
			"pipe_id": catCaseID,
			"content": `[{"id": "n1", "type": "text", "content": [{"val": "背景介绍", "inName": "none"}, {"val": "` + catBackground + `", "inName": "none"}]}]`,
			"in_param": []map[string]any{
				{"inName": "system_1", "outName": "o_name", "val": "黑猫"},
				{"inName": "model", "val": catModel},
				{"inName": "system", "val": "你是{{system_1}}，请等待玩家判断。"},
			},
		},
		{
			"pipe_id":  "",
			"content":  "[]",
			"in_param": "[{",
		},
	}
	b, err := json.Marshal(rows)
	require.NoError(t, err)
	path := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

// parse*Flags bind a command's flags to a fresh config, parse args and normalize, the same
// path the cobra commands take.
func parseExtractFlags(fs *pflag.FlagSet, args []string) (ExtractConfig, error) {
	cfg := defaultExtractConfig()
	bindExtractFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return ExtractConfig{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func parseReportFlags(fs *pflag.FlagSet, args []string) (ReportConfig, error) {
	cfg := defaultReportConfig()
	bindReportFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return ReportConfig{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func parseRunFlags(fs *pflag.FlagSet, args []string) (RunConfig, error) {
	cfg := defaultRunConfig()
	bindRunFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return RunConfig{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func parseInspectFlags(fs *pflag.FlagSet, args []string) (InspectConfig, error) {
	cfg := defaultInspectConfig()
	bindInspectFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return InspectConfig{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func TestParseExtractFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	cfg, err := parseExtractFlags(fs, []string{
		"--in", "data/export.csv",
		"--out", "out/cases/",
		"--id-column", "id",
		"--concurrency", "3",
		"--split",
		"--print",
	})
	if err != nil {
		t.Fatalf("parseExtractFlags: %v", err)
	}
	if cfg.OutDir != filepath.Clean("out/cases") {
		t.Fatalf("OutDir=%q", cfg.OutDir)
	}
	if cfg.IDColumn != "id" || cfg.Content != "content" || cfg.Params != "in_param" {
		t.Fatalf("columns=%q/%q/%q", cfg.IDColumn, cfg.Content, cfg.Params)
	}
	if cfg.Concurrency != 3 || !cfg.Split || !cfg.Print || cfg.Pretty {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.Concurrency = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative concurrency to fail")
	}
}

func TestParseReportFlags_Defaults(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("report", pflag.ContinueOnError)
	cfg, err := parseReportFlags(fs, []string{"--max-bytes", "2048", "--include-prompt=false"})
	if err != nil {
		t.Fatalf("parseReportFlags: %v", err)
	}
	if cfg.MaxBytes != 2048 || cfg.IncludePrompt {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.InPath != filepath.Join("out", "cases.json") {
		t.Fatalf("InPath=%q", cfg.InPath)
	}

	cfg.MaxBytes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero max-bytes to fail")
	}
}

func TestParseRunFlags_Stages(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	cfg, err := parseRunFlags(fs, []string{"--in", "x.csv", "--base-dir", "out", "--from-stage", "report"})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, []string{"report"}, stagesFrom(pipelineStages, cfg.FromStage))
	require.Equal(t, pipelineStages, stagesFrom(pipelineStages, "pack"))

	cfg.OnlyStage = "extract"
	require.Error(t, cfg.Validate())

	cfg.FromStage = ""
	cfg.OnlyStage = "pack"
	require.ErrorContains(t, cfg.Validate(), "unknown stage")
}

func TestInspectConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := defaultInspectConfig()
	require.Error(t, cfg.Validate())

	cfg.Row = 2
	require.NoError(t, cfg.Validate())

	cfg.CaseID = "a"
	require.Error(t, cfg.Validate())

	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	parsed, err := parseInspectFlags(fs, []string{"--case", "  abc  "})
	require.NoError(t, err)
	require.Equal(t, "abc", parsed.CaseID)
}

func TestRun_PipelineEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeExport(t, dir)
	base := filepath.Join(dir, "out")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--log-mode", "prod", "run", "--in", in, "--base-dir", base, "--max-bytes", "4096"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	require.Contains(t, stdout.String(), "ok: extract (2 rows, 1 complete)")
	require.Contains(t, stdout.String(), "ok: report")
	require.Contains(t, stdout.String(), "cases: 2 total, 1 complete")

	recs, err := extraction.ReadCases(filepath.Join(base, "cases.json"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, catCaseID, recs[0].CaseID)
	require.Equal(t, catBackground, recs[0].Background)
	require.Equal(t, "黑猫", recs[0].RoleName.Value)
	require.Equal(t, catModel, recs[0].ModelID)
	require.Equal(t, "row-2", recs[1].CaseID)
	require.False(t, recs[1].Complete())

	f, err := os.Open(filepath.Join(base, "case_index.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	var index []extraction.CaseIndexRecord
	for sc.Scan() {
		var rec extraction.CaseIndexRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		index = append(index, rec)
	}
	require.NoError(t, sc.Err())
	require.Len(t, index, 2)
	require.True(t, index[0].Complete)

	shard, err := os.ReadFile(filepath.Join(base, "report", "cases_0001.md"))
	require.NoError(t, err)
	require.Contains(t, string(shard), `<a id="case-`+catCaseID+`"></a>`)
	require.FileExists(t, filepath.Join(base, "report", "report_index.jsonl"))

	stdout.Reset()
	code = run([]string{"--log-mode", "prod", "run", "--in", in, "--base-dir", base}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	require.Contains(t, stdout.String(), "skip extract")
	require.Contains(t, stdout.String(), "skip report")

	stdout.Reset()
	code = run([]string{"--log-mode", "prod", "run", "--in", in, "--base-dir", base, "--only-stage", "report", "--overwrite"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	require.NotContains(t, stdout.String(), "extract")
	require.Contains(t, stdout.String(), "ok: report")
}

func TestRun_ExtractSplitPrintAndConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeExport(t, dir)
	out := filepath.Join(dir, "out")
	cfgPath := filepath.Join(dir, "casebook.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("extra_junk:\n  - 请等待\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfgPath, "--log-mode", "prod", "extract", "--in", in, "--out", out, "--split", "--print", "--pretty"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	require.Contains(t, stdout.String(), catCaseID)
	require.Contains(t, stdout.String(), "total: 2")

	require.FileExists(t, filepath.Join(out, "cases", catCaseID+".json"))
	require.FileExists(t, filepath.Join(out, "cases", "row-2.json"))
	copied, err := os.ReadFile(filepath.Join(out, "casebook.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(copied), "请等待")

	// Existing outputs are kept unless --overwrite is given.
	code = run([]string{"--log-mode", "prod", "extract", "--in", in, "--out", out}, &stdout, &stderr)
	require.Equal(t, 1, code)
	code = run([]string{"--log-mode", "prod", "extract", "--in", in, "--out", out, "--overwrite"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
}

func TestRun_Inspect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeExport(t, dir)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--log-mode", "prod", "inspect", "--in", in, "--case", "  " + catCaseID + " "}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	out := stdout.String()
	require.Contains(t, out, "case "+catCaseID+" (row 1)")
	require.Contains(t, out, "[0].content[1].val")
	require.Contains(t, out, "system_1 -> system_1 [literal] out=o_name val=黑猫")
	require.Contains(t, out, `"model_id": "`+catModel+`"`)

	stdout.Reset()
	code = run([]string{"--log-mode", "prod", "inspect", "--in", in, "--row", "2"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	require.Contains(t, stdout.String(), "case row-2 (row 2)")
	require.Contains(t, stdout.String(), "diagnostics:")

	code = run([]string{"--log-mode", "prod", "inspect", "--in", in, "--row", "9"}, &stdout, &stderr)
	require.Equal(t, 1, code)
}

func TestRun_Schema(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := run([]string{"--log-mode", "prod", "schema"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	var s map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &s))
	props, ok := s["properties"].(map[string]any)
	require.True(t, ok, "schema=%s", stdout.String())
	require.Contains(t, props, "case_id")
	require.Contains(t, props, "background")

	path := filepath.Join(t.TempDir(), "case.schema.json")
	code = run([]string{"--log-mode", "prod", "schema", "--out", path}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	require.FileExists(t, path)
	code = run([]string{"--log-mode", "prod", "schema", "--out", path}, &stdout, &stderr)
	require.Equal(t, 1, code)
}

func TestRun_ExitCodes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	badCfg := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badCfg, []byte("features:\n  - label: x\n"), 0o644))

	cases := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"extract", "--bogus"}, 2},
		{"unknown command", []string{"summarize"}, 2},
		{"bad log mode", []string{"--log-mode", "loud", "schema"}, 2},
		{"bad config", []string{"--config", badCfg, "schema"}, 2},
		{"bad stage", []string{"--log-mode", "prod", "run", "--only-stage", "pack"}, 2},
		{"inspect needs a target", []string{"--log-mode", "prod", "inspect"}, 2},
		{"missing input", []string{"--log-mode", "prod", "extract", "--in", filepath.Join(dir, "missing.csv"), "--out", dir}, 1},
	}
	for _, tc := range cases {
		var stdout, stderr bytes.Buffer
		if got := run(tc.args, &stdout, &stderr); got != tc.want {
			t.Fatalf("%s: exit=%d want %d (stderr=%q)", tc.name, got, tc.want, stderr.String())
		}
		if !strings.HasPrefix(stderr.String(), "error: ") {
			t.Fatalf("%s: stderr=%q", tc.name, stderr.String())
		}
	}
}

func TestExecute_LogsRuntimeFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	a.newLogger = func(string) (*logger.Logger, error) {
		return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, nil
	}

	missing := filepath.Join(t.TempDir(), "missing.csv")
	require.Equal(t, 1, execute(a, []string{"extract", "--in", missing, "--out", t.TempDir()}))

	failed := logs.FilterMessage("command failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	require.Equal(t, "extract", failed[0].ContextMap()["command"])

	// Usage errors are reported on stderr only.
	a = newApp(&stdout, &stderr)
	core, logs = observer.New(zapcore.DebugLevel)
	a.newLogger = func(string) (*logger.Logger, error) {
		return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, nil
	}
	require.Equal(t, 2, execute(a, []string{"run", "--only-stage", "pack"}))
	require.Zero(t, logs.FilterMessage("command failed").Len())
}
