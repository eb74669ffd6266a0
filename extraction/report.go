package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
)

// WriteCases writes records as one JSON array.
func WriteCases(path string, records []CaseRecord, pretty, overwrite bool) error {
	if path == "" {
		return errors.New("WriteCases: path is empty")
	}
	if err := fileutils.CheckWritable(path, overwrite); err != nil {
		return fmt.Errorf("WriteCases: %w", err)
	}
	if records == nil {
		records = []CaseRecord{}
	}
	if err := fileutils.WriteJSONFileAtomic(path, records, pretty); err != nil {
		return fmt.Errorf("WriteCases: %w", err)
	}
	return nil
}

// ReadCases reads a JSON array written by WriteCases.
func ReadCases(path string) ([]CaseRecord, error) {
	if path == "" {
		return nil, errors.New("ReadCases: path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ReadCases: read file: %w", err)
	}
	var records []CaseRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("ReadCases: unmarshal: %w", err)
	}
	return records, nil
}

// WriteCaseFiles writes one <case id>.json per record into dir and returns the file names in
// record order. Repeated ids get -2, -3, ... suffixes.
func WriteCaseFiles(dir string, records []CaseRecord, pretty, overwrite bool) ([]string, error) {
	if dir == "" {
		return nil, errors.New("WriteCaseFiles: dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("WriteCaseFiles: mkdir: %w", err)
	}

	issued := make(map[string]struct{})
	names := make([]string, 0, len(records))
	for _, rec := range records {
		base := sanitizeFilenameComponent(rec.CaseID)
		if base == "" {
			base = "case"
		}
		filename := uniqueName(issued, base) + ".json"

		outPath := filepath.Join(dir, filename)
		if err := fileutils.CheckWritable(outPath, overwrite); err != nil {
			return nil, fmt.Errorf("WriteCaseFiles: %w", err)
		}
		if err := fileutils.WriteJSONFileAtomic(outPath, rec, pretty); err != nil {
			return nil, fmt.Errorf("WriteCaseFiles: write (id=%q): %w", rec.CaseID, err)
		}
		names = append(names, filename)
	}
	return names, nil
}

// WriteConsoleReport prints one block per case followed by batch statistics.
func WriteConsoleReport(w io.Writer, records []CaseRecord) error {
	rule := strings.Repeat("=", 80)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nCases\n%s\n", rule, rule)
	for i, r := range records {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, r.CaseID)
		fmt.Fprintf(&b, "  role_name:  %s\n", displayField(r.RoleName))
		fmt.Fprintf(&b, "  model_id:   %s\n", orDash(r.ModelID))
		fmt.Fprintf(&b, "  complete:   %t\n", r.Complete())
		fmt.Fprintf(&b, "  background: %s\n", orDash(fileutils.Truncate(fileutils.SanitizeNewlines(r.Background), 60)))
		b.WriteString("  " + strings.Repeat("-", 76) + "\n")
	}

	s := ComputeStats(records)
	fmt.Fprintf(&b, "\n%s\nStatistics\n%s\n", rule, rule)
	fmt.Fprintf(&b, "total: %d\ncomplete: %d\nmissing background: %d\nmissing template: %d\nunresolved fields: %d\n",
		s.Total, s.Complete, s.MissingBackground, s.MissingTemplate, s.UnresolvedFields)
	if len(s.Models) > 0 {
		b.WriteString("models:\n")
		for _, m := range s.Models {
			fmt.Fprintf(&b, "  %s: %d\n", m.Key, m.Count)
		}
	}
	if len(s.RoleNames) > 0 {
		fmt.Fprintf(&b, "roles: %s\n", strings.Join(s.RoleNames, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// CaseBookOptions controls WriteCaseBook.
type CaseBookOptions struct {
	OutDir    string
	Title     string
	MaxBytes  int // default ~100KB
	Overwrite bool

	// OnlyComplete drops incomplete records.
	OnlyComplete bool

	// IncludePrompt adds the system prompt template in a fenced block.
	IncludePrompt bool

	Features []FeatureRule
}

// CaseShardIndexRecord maps one case to a markdown shard file and anchor.
type CaseShardIndexRecord struct {
	CaseID    string   `json:"case_id"`
	RoleName  string   `json:"role_name,omitempty"`
	ShardFile string   `json:"shard_file"`
	Anchor    string   `json:"anchor"`
	Complete  bool     `json:"complete"`
	Features  []string `json:"features,omitempty"`
}

// WriteCaseBook packs records, in input order, into markdown shards of roughly MaxBytes
// (UTF-8 bytes) and returns an index of where each case landed.
func WriteCaseBook(records []CaseRecord, opts CaseBookOptions) ([]CaseShardIndexRecord, error) {
	if opts.OutDir == "" {
		return nil, errors.New("WriteCaseBook: OutDir is empty")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 100 * 1024
	}
	if strings.TrimSpace(opts.Title) == "" {
		opts.Title = "Case Book"
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("WriteCaseBook: mkdir OutDir: %w", err)
	}

	var (
		shardNum     = 1
		curr         strings.Builder
		currBytes    = 0
		currFilename = ""
		index        []CaseShardIndexRecord
		anchors      = make(map[string]struct{})
	)

	flush := func() error {
		if currBytes == 0 {
			return nil
		}
		outPath := filepath.Join(opts.OutDir, currFilename)
		if err := fileutils.CheckWritable(outPath, opts.Overwrite); err != nil {
			return fmt.Errorf("WriteCaseBook: %w", err)
		}
		if err := fileutils.WriteFileAtomic(outPath, []byte(curr.String()), 0o644, false); err != nil {
			return fmt.Errorf("WriteCaseBook: write shard: %w", err)
		}
		shardNum++
		curr.Reset()
		currBytes = 0
		currFilename = ""
		return nil
	}

	n := 0
	for _, rec := range records {
		if opts.OnlyComplete && !rec.Complete() {
			continue
		}
		n++

		anchor := uniqueName(anchors, "case-"+sanitizeAnchor(rec.CaseID))

		features := DetectFeatures(rec.Background, opts.Features)
		section := renderCaseMarkdown(n, rec, anchor, features, opts.IncludePrompt)
		sectionBytes := len(section)

		if currBytes > 0 && currBytes+sectionBytes > opts.MaxBytes {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		if currBytes == 0 {
			currFilename = caseShardName(shardNum)
			header := fmt.Sprintf("# %s (%04d)\n\n", escapeMarkdownInline(opts.Title), shardNum)
			curr.WriteString(header)
			currBytes += len(header)
		}
		curr.WriteString(section)
		currBytes += sectionBytes

		labels := make([]string, 0, len(features))
		for _, f := range features {
			labels = append(labels, f.Label)
		}
		index = append(index, CaseShardIndexRecord{
			CaseID:    rec.CaseID,
			RoleName:  rec.RoleName.String(),
			ShardFile: currFilename,
			Anchor:    anchor,
			Complete:  rec.Complete(),
			Features:  dedupeStrings(labels),
		})
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return index, nil
}

// uniqueName returns base, or base-2, base-3, ... when already issued, and records the result.
func uniqueName(issued map[string]struct{}, base string) string {
	name := base
	for k := 2; ; k++ {
		if _, taken := issued[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s-%d", base, k)
	}
	issued[name] = struct{}{}
	return name
}

func caseShardName(n int) string {
	return fmt.Sprintf("cases_%04d.md", n)
}

func renderCaseMarkdown(n int, rec CaseRecord, anchor string, features []Feature, includePrompt bool) string {
	title := rec.RoleName.Value
	if strings.TrimSpace(title) == "" {
		title = rec.CaseID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<a id=\"%s\"></a>\n", anchor)
	fmt.Fprintf(&b, "## %d. %s\n\n", n, escapeMarkdownInline(title))
	fmt.Fprintf(&b, "- case_id: `%s`\n", rec.CaseID)
	writeFieldLine(&b, "role_name", rec.RoleName)
	writeFieldLine(&b, "role_gender", rec.RoleGender)
	writeFieldLine(&b, "role_profile", rec.RoleProfile)
	writeFieldLine(&b, "inner_personality", rec.InnerPersonality)
	writeFieldLine(&b, "opening_line", rec.OpeningLine)
	if rec.ModelID != "" {
		fmt.Fprintf(&b, "- model_id: `%s`\n", rec.ModelID)
	}
	fmt.Fprintf(&b, "- complete: %t\n\n", rec.Complete())

	b.WriteString("### Background\n\n")
	if bg := renderNewlines(rec.Background); bg != "" {
		b.WriteString(bg)
	} else {
		b.WriteString("_(none)_")
	}
	b.WriteString("\n\n")

	if rec.GoodEnding != "" || rec.BadEnding != "" {
		b.WriteString("### Endings\n\n")
		if rec.GoodEnding != "" {
			fmt.Fprintf(&b, "- good: %s\n", escapeMarkdownInline(renderNewlines(rec.GoodEnding)))
		}
		if rec.BadEnding != "" {
			fmt.Fprintf(&b, "- bad: %s\n", escapeMarkdownInline(renderNewlines(rec.BadEnding)))
		}
		b.WriteString("\n")
	}

	if len(features) > 0 {
		b.WriteString("### Design features\n\n")
		for _, f := range features {
			if f.Note != "" {
				fmt.Fprintf(&b, "- **%s**: %s\n", f.Label, f.Note)
			} else {
				fmt.Fprintf(&b, "- **%s**\n", f.Label)
			}
		}
		b.WriteString("\n")
	}

	if includePrompt && rec.SystemPromptTemplate != "" {
		b.WriteString("### System prompt template\n\n")
		if len(rec.TemplateSlots) > 0 {
			fmt.Fprintf(&b, "slots: `%s`\n\n", strings.Join(rec.TemplateSlots, "`, `"))
		}
		fence := codeFence(rec.SystemPromptTemplate)
		fmt.Fprintf(&b, "%s\n%s\n%s\n\n", fence, strings.TrimRight(rec.SystemPromptTemplate, "\n"), fence)
	}

	b.WriteString("---\n\n")
	return b.String()
}

func writeFieldLine(b *strings.Builder, name string, f Field) {
	if f.IsZero() {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", name, displayField(f))
}

// displayField renders a value inline and a ref as its id plus what it asks for.
func displayField(f Field) string {
	switch {
	case f.Ref != nil && f.Ref.Selector != "":
		return fmt.Sprintf("`%s` (unresolved, selects %s)", f.Ref.ID, f.Ref.Selector)
	case f.Ref != nil:
		return fmt.Sprintf("`%s` (unresolved)", f.Ref.ID)
	case f.Value != "":
		return escapeMarkdownInline(f.Value)
	default:
		return "-"
	}
}

// renderNewlines turns literal "\n" escapes left in exported text into real line breaks.
func renderNewlines(s string) string {
	s = strings.ReplaceAll(s, `\r\n`, "\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	return strings.TrimSpace(s)
}

// codeFence returns a backtick fence longer than any backtick run inside s.
func codeFence(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func sanitizeAnchor(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "case"
	}
	var out strings.Builder
	out.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		} else {
			out.WriteByte('-')
		}
	}
	if a := strings.Trim(out.String(), "-"); a != "" {
		return a
	}
	return "case"
}

func escapeMarkdownInline(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

func sanitizeFilenameComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "._-")
	return strings.TrimSpace(out)
}
