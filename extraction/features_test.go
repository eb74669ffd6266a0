package extraction

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFeatureRule_Match(t *testing.T) {
	t.Parallel()

	anyRule := FeatureRule{Label: "a", Any: []string{"月圆之夜", "深夜"}}
	allRule := FeatureRule{Label: "b", All: []string{"黑猫", "说话"}}

	if !anyRule.Match(kidBackground) {
		t.Fatalf("any rule missed 月圆之夜")
	}
	if !anyRule.Match(catBackground) {
		t.Fatalf("any rule missed 深夜")
	}
	if anyRule.Match(feiqiBackground) {
		t.Fatalf("any rule matched unrelated text")
	}
	if !allRule.Match(catBackground) {
		t.Fatalf("all rule missed")
	}
	if allRule.Match("一只黑猫坐在窗台上") {
		t.Fatalf("all rule matched with one term missing")
	}
	if allRule.Match("") || (FeatureRule{Label: "empty"}).Match("随便什么文本") {
		t.Fatalf("empty input or empty rule matched")
	}
}

func TestFeatureLabels_DefaultRules(t *testing.T) {
	t.Parallel()

	rules := DefaultConfig().Features
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"feiqi", feiqiBackground, []string{"明确判断要求", "标准二选一", "敌对关系", "矛盾线索", "行为反常"}},
		{"kid", kidBackground, []string{"神秘角色", "氛围营造", "特殊设计"}},
		{"cat", catBackground, []string{"超自然元素", "氛围营造", "心理驱动"}},
		{"none", "", nil},
	}
	for _, tt := range tests {
		got := FeatureLabels(tt.text, rules)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("%s: labels mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestDetectFeatures_CarriesNotes(t *testing.T) {
	t.Parallel()

	fs := DetectFeatures(kidBackground, []FeatureRule{{Label: "神秘角色", Note: "怪盗身份", Any: []string{"怪盗"}}})
	if len(fs) != 1 || fs[0].Note != "怪盗身份" {
		t.Fatalf("features=%v", fs)
	}
}
