package extraction

import "strings"

// FeatureRule flags a design feature of a case by substring checks over its background.
// The rule matches when any Any entry occurs, or when every All entry occurs.
type FeatureRule struct {
	Label string   `yaml:"label" json:"label"`
	Note  string   `yaml:"note,omitempty" json:"note,omitempty"`
	Any   []string `yaml:"any,omitempty" json:"any,omitempty"`
	All   []string `yaml:"all,omitempty" json:"all,omitempty"`
}

func (r FeatureRule) Match(text string) bool {
	if text == "" {
		return false
	}
	for _, s := range r.Any {
		if s != "" && strings.Contains(text, s) {
			return true
		}
	}
	if len(r.All) == 0 {
		return false
	}
	for _, s := range r.All {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}

// Feature is a matched rule.
type Feature struct {
	Label string `json:"label"`
	Note  string `json:"note,omitempty"`
}

// DetectFeatures returns the rules matching text, in rule order.
func DetectFeatures(text string, rules []FeatureRule) []Feature {
	var out []Feature
	for _, r := range rules {
		if r.Match(text) {
			out = append(out, Feature{Label: r.Label, Note: r.Note})
		}
	}
	return out
}

// FeatureLabels is DetectFeatures reduced to labels.
func FeatureLabels(text string, rules []FeatureRule) []string {
	fs := DetectFeatures(text, rules)
	if len(fs) == 0 {
		return nil
	}
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Label)
	}
	return out
}
