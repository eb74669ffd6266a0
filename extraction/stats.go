package extraction

import (
	"sort"
	"strings"
)

// Tally is a counted key.
type Tally struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Stats summarizes a batch of records.
type Stats struct {
	Total             int      `json:"total"`
	Complete          int      `json:"complete"`
	MissingBackground int      `json:"missing_background"`
	MissingTemplate   int      `json:"missing_template"`
	UnresolvedFields  int      `json:"unresolved_fields"`
	Models            []Tally  `json:"models,omitempty"`
	RoleNames         []string `json:"role_names,omitempty"`
}

// ComputeStats counts completeness and tallies model usage.
func ComputeStats(records []CaseRecord) Stats {
	var (
		s      Stats
		models []string
		roles  []string
	)
	for _, r := range records {
		s.Total++
		if r.Complete() {
			s.Complete++
		}
		if strings.TrimSpace(r.Background) == "" {
			s.MissingBackground++
		}
		if strings.TrimSpace(r.SystemPromptTemplate) == "" {
			s.MissingTemplate++
		}
		for _, f := range []Field{r.RoleName, r.RoleGender, r.RoleProfile, r.InnerPersonality, r.OpeningLine} {
			if f.Ref != nil {
				s.UnresolvedFields++
			}
		}
		if r.ModelID != "" {
			models = append(models, r.ModelID)
		}
		if r.RoleName.Resolved() {
			roles = append(roles, r.RoleName.Value)
		}
	}
	s.Models = MergeTally(nil, models)
	s.RoleNames = dedupeStrings(roles)
	return s
}

// MergeTally adds one occurrence per key and returns the tally ordered by count descending,
// then key.
func MergeTally(t []Tally, keys []string) []Tally {
	out := append([]Tally(nil), t...)
	index := make(map[string]int, len(out))
	for i := range out {
		if k := normalizeTallyKey(out[i].Key); k != "" {
			index[k] = i
		}
	}

	for _, key := range keys {
		k := normalizeTallyKey(key)
		if k == "" {
			continue
		}
		if i, ok := index[k]; ok {
			out[i].Count++
			continue
		}
		out = append(out, Tally{Key: strings.TrimSpace(key), Count: 1})
		index[k] = len(out) - 1
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.ToLower(out[i].Key) < strings.ToLower(out[j].Key)
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeTallyKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
