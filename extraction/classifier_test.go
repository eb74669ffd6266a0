package extraction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestClassifier_IsSemanticText(t *testing.T) {
	t.Parallel()

	c := DefaultClassifier()
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"无", false},
		{"背景介绍", false},
		{"先虐后虐", false},
		{"hello world", false},
		{"你好世界啊", true},
		{"  你好世界啊  ", true},
		{kidBackground, true},
		{"三哥喜欢我", true},
	}
	for _, tt := range tests {
		if got := c.IsSemanticText(tt.in); got != tt.want {
			t.Fatalf("IsSemanticText(%q)=%v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClassifier_JunkIsExactMatch(t *testing.T) {
	t.Parallel()

	c := NewClassifier(2, []string{"测试内容"})
	if c.IsSemanticText("测试内容") {
		t.Fatalf("junk entry accepted")
	}
	if !c.IsSemanticText("测试内容二") {
		t.Fatalf("superstring of junk rejected")
	}
	if !c.IsSemanticText("测试") {
		t.Fatalf("two-rune text rejected with minRunes=2")
	}
}

func TestClassifier_ForRow(t *testing.T) {
	t.Parallel()

	c := DefaultClassifier()
	row := c.ForRow("000004459945768786608133")
	if row.IsSemanticText("三哥喜欢我") {
		t.Fatalf("row junk accepted for its row")
	}
	if !row.IsSemanticText(kidBackground) {
		t.Fatalf("row view rejected ordinary text")
	}
	if !c.ForRow(kidCaseID).IsSemanticText("三哥喜欢我") {
		t.Fatalf("row junk leaked into another row")
	}
	if !c.ForRow("000004487036651050680320").IsSemanticText("三哥喜欢我") {
		t.Fatalf("row junk leaked into another row")
	}
	if c.ForRow("000004487036651050680320").IsSemanticText("我喜欢爸爸。") {
		t.Fatalf("row junk accepted for its row")
	}
}

func TestLoadConfig_DefaultsWhenMissing(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", filepath.Join(t.TempDir(), "nope.yaml")} {
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
			t.Fatalf("LoadConfig(%q) mismatch (-want +got):\n%s", path, diff)
		}
	}

	cfg := DefaultConfig()
	require.Equal(t, 5, cfg.MinRunes)
	require.Len(t, cfg.Junk, 4)
	require.Len(t, cfg.Features, 11)
	require.Len(t, cfg.RowJunk, 3)
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "casebook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_runes: 3\nextra_junk:\n  - 自定义垃圾文本\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MinRunes)
	require.Equal(t, DefaultConfig().Junk, cfg.Junk)
	require.Len(t, cfg.Features, 11)

	c := cfg.Classifier()
	require.False(t, c.IsSemanticText("自定义垃圾文本"))
	require.False(t, c.IsSemanticText("背景介绍"))
	require.True(t, c.IsSemanticText("你好啊"))
}

func TestLoadConfig_RejectsBadFeature(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("features:\n  - label: 空规则\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "needs any or all")

	require.NoError(t, os.WriteFile(path, []byte("min_runes: -1\n"), 0o644))
	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "casebook.yaml")
	want := DefaultConfig()
	require.NoError(t, want.Save(path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
