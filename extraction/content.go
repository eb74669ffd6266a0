package extraction

import (
	"encoding/json"
	"strings"

	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
)

// LeafKind separates narrative prose from template slot references.
type LeafKind int

const (
	LeafNarrative LeafKind = iota
	LeafSlot
)

func (k LeafKind) String() string {
	if k == LeafSlot {
		return "slot"
	}
	return "narrative"
}

// ContentLeaf is one authored block of a content node.
type ContentLeaf struct {
	Kind    LeafKind
	Text    string
	InName  string
	OutName string
	Sub     []ContentLeaf
}

// ContentNode is one top-level entry of a content document.
type ContentNode struct {
	ID     string
	Type   string
	Leaves []ContentLeaf
}

// ContentTree is a parsed content document.
type ContentTree struct {
	Nodes []ContentNode
}

type rawContentNode struct {
	ID      json.RawMessage   `json:"id"`
	Type    json.RawMessage   `json:"type"`
	Content []json.RawMessage `json:"content"`
}

type rawLeaf struct {
	Val     json.RawMessage   `json:"val"`
	InName  *string           `json:"inName"`
	OutName *string           `json:"outName"`
	Sub     []json.RawMessage `json:"sub"`
}

// ParseContent decodes a content document. The top level must be a JSON array; elements
// and leaves of the wrong shape are skipped.
func ParseContent(doc string) (*ContentTree, error) {
	var elems []json.RawMessage
	if err := fileutils.DecodeJSONCell(doc, &elems); err != nil {
		return nil, &ParseError{Document: DocContent, Err: err}
	}

	tree := &ContentTree{}
	for _, raw := range elems {
		if !isJSONObject(raw) {
			continue
		}
		var rn rawContentNode
		if err := json.Unmarshal(raw, &rn); err != nil {
			continue
		}
		tree.Nodes = append(tree.Nodes, ContentNode{
			ID:     scalarString(rn.ID),
			Type:   scalarString(rn.Type),
			Leaves: decodeLeaves(rn.Content),
		})
	}
	return tree, nil
}

func decodeLeaves(raws []json.RawMessage) []ContentLeaf {
	var out []ContentLeaf
	for _, raw := range raws {
		if !isJSONObject(raw) {
			continue
		}
		var rl rawLeaf
		if err := json.Unmarshal(raw, &rl); err != nil {
			continue
		}
		leaf := ContentLeaf{
			Text: scalarString(rl.Val),
			Sub:  decodeLeaves(rl.Sub),
		}
		if rl.InName != nil {
			leaf.InName = strings.TrimSpace(*rl.InName)
		}
		if rl.OutName != nil {
			leaf.OutName = strings.TrimSpace(*rl.OutName)
		}
		if leaf.InName != "" && leaf.InName != noneMarker {
			leaf.Kind = LeafSlot
		}
		out = append(out, leaf)
	}
	return out
}

// scalarString returns a JSON string as-is and any other scalar as its literal text.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || isJSONNull(raw) {
		return ""
	}
	if isJSONString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	}
	if isJSONObject(raw) || strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// Walk visits every leaf in document order, each leaf before its sub leaves, until fn
// returns false.
func (t *ContentTree) Walk(fn func(leaf *ContentLeaf) bool) {
	if t == nil {
		return
	}
	for i := range t.Nodes {
		if !walkLeaves(t.Nodes[i].Leaves, fn) {
			return
		}
	}
}

func walkLeaves(leaves []ContentLeaf, fn func(*ContentLeaf) bool) bool {
	for i := range leaves {
		if !fn(&leaves[i]) {
			return false
		}
		if !walkLeaves(leaves[i].Sub, fn) {
			return false
		}
	}
	return true
}

// FindBackground returns the first narrative leaf accepted by the classifier, or "".
// Slot leaves are skipped but their sub leaves are still visited.
func FindBackground(tree *ContentTree, c TextClassifier) string {
	var bg string
	tree.Walk(func(leaf *ContentLeaf) bool {
		if leaf.Kind != LeafNarrative || !c.IsSemanticText(leaf.Text) {
			return true
		}
		bg = leaf.Text
		return false
	})
	return bg
}

// Endings holds the two outcome texts of a good/bad-person case.
type Endings struct {
	Good string
	Bad  string
}

const (
	goodMarker   = "好人"
	badMarker    = "坏人"
	endingMarker = "结局"
)

func endingKind(text string) (good, bad bool) {
	if !strings.Contains(text, endingMarker) {
		return false, false
	}
	return strings.Contains(text, goodMarker), strings.Contains(text, badMarker)
}

// FindEndings locates the good and bad endings. A narrative leaf mentioning an ending that
// has sub leaves is a heading: its first accepted sub leaf is the ending. Otherwise an
// accepted leaf mentioning the ending is the ending itself. The background text is never
// reported as an ending.
func FindEndings(tree *ContentTree, c TextClassifier, background string) Endings {
	var e Endings
	take := func(dst *string, text string) {
		if *dst == "" && text != "" && text != background {
			*dst = text
		}
	}

	tree.Walk(func(leaf *ContentLeaf) bool {
		if leaf.Kind != LeafNarrative {
			return true
		}
		good, bad := endingKind(leaf.Text)
		if !good && !bad {
			return true
		}

		text := ""
		if len(leaf.Sub) > 0 {
			text = firstAccepted(leaf.Sub, c, background)
		} else if c.IsSemanticText(leaf.Text) {
			text = leaf.Text
		}
		// A leaf naming both is ambiguous; only fill the kind that is still empty first.
		if good && bad {
			if e.Good == "" {
				take(&e.Good, text)
			} else {
				take(&e.Bad, text)
			}
		} else if good {
			take(&e.Good, text)
		} else {
			take(&e.Bad, text)
		}
		return e.Good == "" || e.Bad == ""
	})
	return e
}

func firstAccepted(leaves []ContentLeaf, c TextClassifier, exclude string) string {
	var out string
	walkLeaves(leaves, func(leaf *ContentLeaf) bool {
		if leaf.Kind != LeafNarrative || leaf.Text == exclude || !c.IsSemanticText(leaf.Text) {
			return true
		}
		out = leaf.Text
		return false
	})
	return out
}
