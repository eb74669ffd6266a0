package extraction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
)

// CaseIndexRecord is one line of case_index.jsonl.
type CaseIndexRecord struct {
	CaseID     string   `json:"case_id"`
	RoleName   string   `json:"role_name,omitempty"`
	ModelID    string   `json:"model_id,omitempty"`
	Complete   bool     `json:"complete"`
	File       string   `json:"file,omitempty"`
	Background string   `json:"background"`
	Features   []string `json:"features,omitempty"`
	Unresolved []string `json:"unresolved,omitempty"`
}

const indexBackgroundRunes = 120

// BuildIndexRecord creates a stable index row for a case and, optionally, the file it was
// written to.
func BuildIndexRecord(rec CaseRecord, file string, rules []FeatureRule) CaseIndexRecord {
	var unresolved []string
	for _, f := range []Field{rec.RoleName, rec.RoleGender, rec.RoleProfile, rec.InnerPersonality, rec.OpeningLine} {
		if f.Ref != nil {
			unresolved = append(unresolved, f.Ref.Slot)
		}
	}
	return CaseIndexRecord{
		CaseID:     rec.CaseID,
		RoleName:   rec.RoleName.String(),
		ModelID:    rec.ModelID,
		Complete:   rec.Complete(),
		File:       file,
		Background: fileutils.Truncate(fileutils.SanitizeNewlines(rec.Background), indexBackgroundRunes),
		Features:   dedupeStrings(FeatureLabels(rec.Background, rules)),
		Unresolved: dedupeStrings(unresolved),
	}
}

// WriteJSONL writes one JSON document per line, atomically.
func WriteJSONL[T any](path string, records []T, overwrite bool) error {
	if path == "" {
		return errors.New("WriteJSONL: path is empty")
	}
	if err := fileutils.CheckWritable(path, overwrite); err != nil {
		return fmt.Errorf("WriteJSONL: %w", err)
	}

	var b strings.Builder
	for _, r := range records {
		line, err := fileutils.MarshalJSON(r, false)
		if err != nil {
			return fmt.Errorf("WriteJSONL: marshal: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	if err := fileutils.WriteFileAtomic(path, []byte(b.String()), 0o644, false); err != nil {
		return fmt.Errorf("WriteJSONL: write: %w", err)
	}
	return nil
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
