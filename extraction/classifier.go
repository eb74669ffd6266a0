package extraction

import (
	"strings"
	"unicode/utf8"
)

// TextClassifier decides whether a string is narrative content rather than a label,
// placeholder, or filler.
type TextClassifier interface {
	IsSemanticText(s string) bool
}

// Classifier is a blocklist plus length heuristic. It is read-only after construction and
// safe for concurrent use.
type Classifier struct {
	minRunes int
	junk     map[string]struct{}
	rowJunk  map[string]map[string]struct{}
}

// NewClassifier returns a classifier rejecting strings shorter than minRunes runes and
// strings equal to any junk entry (both compared after trimming).
func NewClassifier(minRunes int, junk []string) *Classifier {
	c := &Classifier{
		minRunes: minRunes,
		junk:     toSet(junk),
		rowJunk:  make(map[string]map[string]struct{}),
	}
	return c
}

// DefaultClassifier is the classifier described by the embedded default config.
func DefaultClassifier() *Classifier {
	return DefaultConfig().Classifier()
}

func (c *Classifier) addRowJunk(caseID string, fragments []string) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" || len(fragments) == 0 {
		return
	}
	set, ok := c.rowJunk[caseID]
	if !ok {
		set = make(map[string]struct{}, len(fragments))
		c.rowJunk[caseID] = set
	}
	for k := range toSet(fragments) {
		set[k] = struct{}{}
	}
}

func (c *Classifier) IsSemanticText(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if utf8.RuneCountInString(s) < c.minRunes {
		return false
	}
	if _, ok := c.junk[s]; ok {
		return false
	}
	return containsCJK(s)
}

// ForRow returns a view that also rejects the filler registered for caseID.
func (c *Classifier) ForRow(caseID string) TextClassifier {
	extra, ok := c.rowJunk[strings.TrimSpace(caseID)]
	if !ok {
		return c
	}
	return rowClassifier{base: c, extra: extra}
}

type rowClassifier struct {
	base  *Classifier
	extra map[string]struct{}
}

func (r rowClassifier) IsSemanticText(s string) bool {
	if _, ok := r.extra[strings.TrimSpace(s)]; ok {
		return false
	}
	return r.base.IsSemanticText(s)
}

// containsCJK reports whether s has a rune in the CJK Unified Ideographs block.
func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}
	return out
}
