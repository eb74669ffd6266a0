package extraction

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractCJKTexts(t *testing.T) {
	t.Parallel()

	got := ExtractCJKTexts(`[
		{"id": "n1", "content": [
			{"val": "背景介绍", "inName": "none", "sub": [{"val": "english only"}, {"val": "月圆之夜"}]},
			{"val": "{{x}}", "inName": "system_1"}
		]},
		{"meta": {"标题": "怪盗基德"}}
	]`)
	want := []PathText{
		{Path: "[0].content[0].val", Text: "背景介绍"},
		{Path: "[0].content[0].sub[1].val", Text: "月圆之夜"},
		{Path: "[1].meta.标题", Text: "怪盗基德"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}

	if got := ExtractCJKTexts("not json"); got != nil {
		t.Fatalf("invalid JSON returned %v", got)
	}
}

func TestSlotBindings(t *testing.T) {
	t.Parallel()

	g, err := ParseParams(kidParams)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	got := SlotBindings(g)
	if len(got) != 5 {
		t.Fatalf("bindings=%d, want 5: %v", len(got), got)
	}
	first := got[0]
	if first.InName != "system_1" || first.Kind != "reference" || first.Slot != "system_1" || first.Val != kidRoleRef {
		t.Fatalf("first binding=%+v", first)
	}
	if got[4].Slot != "system" || got[4].Val != `你是{{system_1}}，性别{{system_2}}。{{system_4}}\n请等待玩家做出判断。` {
		t.Fatalf("template binding=%+v", got[4])
	}
	if SlotBindings(nil) != nil {
		t.Fatalf("nil graph returned bindings")
	}
}
