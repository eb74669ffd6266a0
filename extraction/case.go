package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
	"github.com/theimaginaryfoundation/casebook/internal/logger"
)

// Ref points at a node whose payload is not present in the row. Selector names the field the
// pointed node asks for (for example "nickname") when the document says so.
type Ref struct {
	Slot     string `json:"slot"`
	ID       string `json:"id"`
	Selector string `json:"selector,omitempty"`
}

// Field is either a resolved Value or an unresolved Ref, never both.
type Field struct {
	Value string
	Ref   *Ref
}

func (f Field) IsZero() bool { return f.Value == "" && f.Ref == nil }

// Resolved reports whether the field carries a literal value.
func (f Field) Resolved() bool { return f.Value != "" }

func (f Field) String() string {
	if f.Ref != nil {
		if f.Ref.Selector != "" {
			return fmt.Sprintf("ref:%s(%s)", f.Ref.ID, f.Ref.Selector)
		}
		return "ref:" + f.Ref.ID
	}
	return f.Value
}

// MarshalJSON encodes a value as a JSON string and a ref as an object.
func (f Field) MarshalJSON() ([]byte, error) {
	if f.Ref != nil {
		return fileutils.MarshalJSON(*f.Ref, false)
	}
	return fileutils.MarshalJSON(f.Value, false)
}

func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = Field{}
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '{':
		var r Ref
		if err := json.Unmarshal(b, &r); err != nil {
			return fmt.Errorf("field ref: %w", err)
		}
		f.Ref = &r
		return nil
	default:
		return json.Unmarshal(b, &f.Value)
	}
}

func (Field) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("slot", &jsonschema.Schema{Type: "string"})
	props.Set("id", &jsonschema.Schema{Type: "string"})
	props.Set("selector", &jsonschema.Schema{Type: "string"})
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{
				Type:                 "object",
				Properties:           props,
				Required:             []string{"slot", "id"},
				AdditionalProperties: jsonschema.FalseSchema,
			},
		},
	}
}

// CaseRecord is the normalized output for one row.
type CaseRecord struct {
	CaseID           string `json:"case_id"`
	RoleName         Field  `json:"role_name"`
	RoleGender       Field  `json:"role_gender"`
	RoleProfile      Field  `json:"role_profile"`
	InnerPersonality Field  `json:"inner_personality"`
	OpeningLine      Field  `json:"opening_line"`

	Background           string   `json:"background"`
	ModelID              string   `json:"model_id"`
	SystemPromptTemplate string   `json:"system_prompt_template"`
	TemplateSlots        []string `json:"template_slots,omitempty"`

	GoodEnding string `json:"good_ending,omitempty"`
	BadEnding  string `json:"bad_ending,omitempty"`
}

// Complete reports whether the record has a background, a role name (value or ref), and a
// system prompt template.
func (r CaseRecord) Complete() bool {
	return strings.TrimSpace(r.Background) != "" &&
		!r.RoleName.IsZero() &&
		strings.TrimSpace(r.SystemPromptTemplate) != ""
}

type caseRecordJSON CaseRecord

// MarshalJSON adds the derived "complete" flag. Decoding ignores it.
func (r CaseRecord) MarshalJSON() ([]byte, error) {
	return fileutils.MarshalJSON(struct {
		caseRecordJSON
		Complete bool `json:"complete"`
	}{caseRecordJSON(r), r.Complete()}, false)
}

func (CaseRecord) JSONSchemaExtend(s *jsonschema.Schema) {
	if s.Properties == nil {
		return
	}
	s.Properties.Set("complete", &jsonschema.Schema{
		Type:        "boolean",
		Description: "derived: background, role name and system prompt template are all present",
	})
}

// Diagnostics explains why a record is partial.
type Diagnostics struct {
	ParseErrors        []*ParseError
	ClassificationMiss bool
	Unresolved         []Ref
}

// Err joins the parse errors and ErrClassificationMiss; nil when the row was clean.
func (d Diagnostics) Err() error {
	var errs []error
	for _, pe := range d.ParseErrors {
		errs = append(errs, pe)
	}
	if d.ClassificationMiss {
		errs = append(errs, ErrClassificationMiss)
	}
	return errors.Join(errs...)
}

// Assembler builds case records. It holds no per-row state and may be shared between
// goroutines.
type Assembler struct {
	classifier TextClassifier
	log        *logger.Logger
}

// NewAssembler returns an assembler using c. A nil classifier means DefaultClassifier and a
// nil logger discards diagnostics.
func NewAssembler(c TextClassifier, log *logger.Logger) *Assembler {
	if c == nil {
		c = DefaultClassifier()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Assembler{classifier: c, log: log}
}

type rowScoped interface {
	ForRow(caseID string) TextClassifier
}

func (a *Assembler) classifierFor(caseID string) TextClassifier {
	if rs, ok := a.classifier.(rowScoped); ok {
		return rs.ForRow(caseID)
	}
	return a.classifier
}

// Assemble builds the record for one row. It never fails: undecodable documents leave a
// record holding only the case id, and Diagnostics says why.
func (a *Assembler) Assemble(caseID, contentDoc, paramDoc string) (CaseRecord, Diagnostics) {
	rec := CaseRecord{CaseID: caseID}
	var diag Diagnostics

	tree, err := ParseContent(contentDoc)
	if err != nil {
		diag.ParseErrors = append(diag.ParseErrors, asParseError(DocContent, err))
	}
	graph, err := ParseParams(paramDoc)
	if err != nil {
		diag.ParseErrors = append(diag.ParseErrors, asParseError(DocParams, err))
	}
	if len(diag.ParseErrors) > 0 {
		for _, pe := range diag.ParseErrors {
			a.log.Warn("row not parsed", "case_id", caseID, "document", pe.Document, "err", pe.Err)
		}
		return rec, diag
	}

	c := a.classifierFor(caseID)
	resolved := ResolveGraph(graph)
	rec.RoleName = resolved.RoleName
	rec.RoleGender = resolved.RoleGender
	rec.RoleProfile = resolved.RoleProfile
	rec.InnerPersonality = resolved.InnerPersonality
	rec.OpeningLine = resolved.OpeningLine
	rec.ModelID = resolved.ModelID
	rec.SystemPromptTemplate = resolved.SystemPromptTemplate
	rec.TemplateSlots = resolved.TemplateSlots

	rec.Background = FindBackground(tree, c)
	endings := FindEndings(tree, c, rec.Background)
	rec.GoodEnding = endings.Good
	rec.BadEnding = endings.Bad

	diag.ClassificationMiss = rec.Background == ""
	diag.Unresolved = resolved.Unresolved()

	if !rec.Complete() {
		a.log.Debug("incomplete case",
			"case_id", caseID,
			"classification_miss", diag.ClassificationMiss,
			"has_role", !rec.RoleName.IsZero(),
			"has_template", rec.SystemPromptTemplate != "",
		)
	}
	return rec, diag
}

func asParseError(doc string, err error) *ParseError {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe
	}
	return &ParseError{Document: doc, Err: err}
}

var defaultAssembler = sync.OnceValue(func() *Assembler {
	return NewAssembler(DefaultClassifier(), nil)
})

// AssembleCase builds a record with the default classifier and no logging.
func AssembleCase(caseID, contentDoc, paramDoc string) CaseRecord {
	rec, _ := defaultAssembler().Assemble(caseID, contentDoc, paramDoc)
	return rec
}
