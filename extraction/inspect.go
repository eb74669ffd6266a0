package extraction

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
)

// PathText is a string found in a JSON document and where it was found.
type PathText struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// ExtractCJKTexts returns every string value holding CJK text, in document order, with
// paths like [0].content[1].val. Invalid JSON yields nil.
func ExtractCJKTexts(doc string) []PathText {
	s := fileutils.CleanJSONCell(doc)
	if s == "" || !gjson.Valid(s) {
		return nil
	}
	var out []PathText
	collectCJK(gjson.Parse(s), "", &out)
	return out
}

func collectCJK(r gjson.Result, path string, out *[]PathText) {
	switch {
	case r.Type == gjson.String:
		if containsCJK(r.Str) {
			*out = append(*out, PathText{Path: path, Text: r.Str})
		}
	case r.IsArray():
		i := 0
		r.ForEach(func(_, v gjson.Result) bool {
			collectCJK(v, path+"["+strconv.Itoa(i)+"]", out)
			i++
			return true
		})
	case r.IsObject():
		r.ForEach(func(k, v gjson.Result) bool {
			p := k.String()
			if path != "" {
				p = path + "." + p
			}
			collectCJK(v, p, out)
			return true
		})
	}
}

// SlotBinding is a parameter node carrying an inName label.
type SlotBinding struct {
	InName  string `json:"in_name"`
	OutName string `json:"out_name,omitempty"`
	Kind    string `json:"kind"`
	Val     string `json:"val,omitempty"`

	// Slot is set when the label binds a recognized case field.
	Slot string `json:"slot,omitempty"`
}

// SlotBindings lists every labeled node in document order.
func SlotBindings(g *ParamGraph) []SlotBinding {
	if g == nil {
		return nil
	}
	var out []SlotBinding
	for _, n := range g.Nodes {
		if !n.HasSlot() {
			continue
		}
		b := SlotBinding{
			InName:  n.InName,
			OutName: n.OutName,
			Kind:    n.Kind.String(),
		}
		switch n.Kind {
		case ParamLiteral, ParamReference:
			b.Val = fileutils.Truncate(fileutils.SanitizeNewlines(n.Text), 80)
		case ParamStructured:
			b.Val = fileutils.Truncate(string(n.Raw), 80)
		case ParamGroup:
			b.Val = fmt.Sprintf("(%d set, %d get)", len(n.Set), len(n.Get))
		}
		if s, ok := matchSlot(n.InName); ok {
			b.Slot = string(s)
		}
		out = append(out, b)
	}
	return out
}
