package extraction

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Slot is a recognized inName label.
type Slot string

const (
	SlotRoleName         Slot = "system_1"
	SlotRoleGender       Slot = "system_2"
	SlotRoleProfile      Slot = "system_3"
	SlotInnerPersonality Slot = "system_4"
	SlotOpeningLine      Slot = "initChat_2"
	SlotModel            Slot = "model"
	SlotSystemPrompt     Slot = "system"
)

// prefixSlots may carry a non-digit suffix (system_1_alt). Bare "system" and "model" never do.
var prefixSlots = []Slot{
	SlotRoleName,
	SlotRoleGender,
	SlotRoleProfile,
	SlotInnerPersonality,
	SlotOpeningLine,
}

var (
	modelIDPattern     = regexp.MustCompile(`ep-\d+-[A-Za-z0-9]+`)
	placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)
)

// templateMarker identifies a system prompt template when no system slot resolves.
const templateMarker = "{{system_1}}"

// ResolvedFields is what the parameter document contributes to a case record.
type ResolvedFields struct {
	RoleName         Field
	RoleGender       Field
	RoleProfile      Field
	InnerPersonality Field
	OpeningLine      Field

	ModelID              string
	SystemPromptTemplate string

	// TemplateSlots lists placeholder names in the template, in order of first appearance.
	TemplateSlots []string
}

// Unresolved returns the refs among the resolved fields, in field order.
func (r ResolvedFields) Unresolved() []Ref {
	var out []Ref
	for _, f := range []Field{r.RoleName, r.RoleGender, r.RoleProfile, r.InnerPersonality, r.OpeningLine} {
		if f.Ref != nil {
			out = append(out, *f.Ref)
		}
	}
	return out
}

// matchSlot maps an inName to the slot it binds, if any.
func matchSlot(inName string) (Slot, bool) {
	inName = strings.TrimSpace(inName)
	switch inName {
	case string(SlotSystemPrompt), string(SlotModel):
		return Slot(inName), true
	}
	for _, s := range prefixSlots {
		if inName == string(s) {
			return s, true
		}
	}
	for _, s := range prefixSlots {
		rest, ok := strings.CutPrefix(inName, string(s))
		if !ok || rest == "" {
			continue
		}
		if c := rest[0]; c < '0' || c > '9' {
			return s, true
		}
	}
	return "", false
}

// ResolveParams parses an in_param document and resolves its slots. A document that is not
// a JSON array yields zero fields and a *ParseError.
func ResolveParams(doc string) (ResolvedFields, error) {
	g, err := ParseParams(doc)
	if err != nil {
		return ResolvedFields{}, err
	}
	return ResolveGraph(g), nil
}

// ResolveGraph resolves the recognized slots of a parsed parameter document.
func ResolveGraph(g *ParamGraph) ResolvedFields {
	if g == nil {
		return ResolvedFields{}
	}

	// Last binding in document order wins.
	bound := make(map[Slot]*ParamNode)
	for _, n := range g.Nodes {
		if !n.HasSlot() {
			continue
		}
		if s, ok := matchSlot(n.InName); ok {
			bound[s] = n
		}
	}

	field := func(s Slot) Field {
		n, ok := bound[s]
		if !ok {
			return Field{}
		}
		return g.resolveSlot(s, n)
	}

	var out ResolvedFields
	out.RoleName = field(SlotRoleName)
	out.RoleGender = field(SlotRoleGender)
	out.RoleProfile = field(SlotRoleProfile)
	out.InnerPersonality = field(SlotInnerPersonality)
	out.OpeningLine = field(SlotOpeningLine)

	out.ModelID = field(SlotModel).Value
	if out.ModelID == "" {
		out.ModelID = g.scanModelID()
	}

	out.SystemPromptTemplate = field(SlotSystemPrompt).Value
	if out.SystemPromptTemplate == "" {
		out.SystemPromptTemplate = g.findTemplate()
	}
	out.TemplateSlots = TemplateSlots(out.SystemPromptTemplate)
	return out
}

// resolveSlot turns the node bound to a slot into a field value or a ref.
func (g *ParamGraph) resolveSlot(s Slot, n *ParamNode) Field {
	switch n.Kind {
	case ParamLiteral:
		return Field{Value: n.Text}
	case ParamStructured:
		return Field{Value: firstPayloadString(n.Raw)}
	case ParamReference:
		payload, selector := g.follow(n.Text, make(map[*ParamNode]bool))
		if payload != "" {
			return Field{Value: payload}
		}
		return Field{Ref: &Ref{Slot: string(s), ID: n.Text, Selector: selector}}
	case ParamGroup:
		seen := map[*ParamNode]bool{n: true}
		payload, selector := g.payloadOf(n, seen)
		if payload != "" {
			return Field{Value: payload}
		}
		if n.OutName != "" {
			return Field{Ref: &Ref{Slot: string(s), ID: n.OutName, Selector: selector}}
		}
	}
	return Field{}
}

// follow walks the reference chain starting at id. It returns the first literal payload
// reachable from the pointed node, or the first selector seen when no payload exists.
func (g *ParamGraph) follow(id string, seen map[*ParamNode]bool) (payload, selector string) {
	n, ok := g.Lookup(id)
	if !ok || seen[n] {
		return "", ""
	}
	seen[n] = true

	switch n.Kind {
	case ParamReference:
		p, sel := g.follow(n.Text, seen)
		if p != "" {
			return p, ""
		}
		selector = sel
	case ParamLiteral:
		if n.Text != "" {
			return n.Text, ""
		}
	case ParamStructured:
		if p := firstPayloadString(n.Raw); p != "" {
			return p, ""
		}
	}

	p, sel := g.payloadOf(n, seen)
	if p != "" {
		return p, ""
	}
	if selector == "" {
		selector = sel
	}
	return "", selector
}

// payloadOf searches set then get children of n. A literal under get names the field to
// select on the pointed node; everywhere else a literal is payload.
func (g *ParamGraph) payloadOf(n *ParamNode, seen map[*ParamNode]bool) (payload, selector string) {
	visit := func(c *ParamNode, underGet bool) (p, sel string) {
		if seen[c] {
			return "", ""
		}
		seen[c] = true
		switch c.Kind {
		case ParamLiteral:
			if underGet {
				return "", strings.TrimSpace(c.Text)
			}
			return c.Text, ""
		case ParamReference:
			return g.follow(c.Text, seen)
		case ParamStructured:
			return firstPayloadString(c.Raw), ""
		case ParamGroup:
			return g.payloadOf(c, seen)
		}
		return "", ""
	}

	for _, group := range []struct {
		nodes    []*ParamNode
		underGet bool
	}{{n.Set, false}, {n.Get, true}} {
		for _, c := range group.nodes {
			p, sel := visit(c, group.underGet)
			if p != "" {
				return p, ""
			}
			if selector == "" {
				selector = sel
			}
		}
	}
	return "", selector
}

// scanModelID returns the first hosted-model id found in any string value.
func (g *ParamGraph) scanModelID() string {
	var found string
	for _, n := range g.Nodes {
		switch n.Kind {
		case ParamLiteral, ParamReference:
			found = modelIDPattern.FindString(n.Text)
		case ParamStructured:
			walkStrings(n.Raw, func(s string) bool {
				found = modelIDPattern.FindString(s)
				return found == ""
			})
		}
		if found != "" {
			return found
		}
	}
	return ""
}

func (g *ParamGraph) findTemplate() string {
	for _, n := range g.Nodes {
		if n.Kind == ParamLiteral && strings.Contains(n.Text, templateMarker) {
			return n.Text
		}
	}
	return ""
}

// TemplateSlots returns the distinct {{name}} placeholders of tmpl in order of first appearance.
func TemplateSlots(tmpl string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(tmpl, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return dedupeStrings(names)
}

// firstPayloadString returns the first non-blank string inside a structured value.
func firstPayloadString(raw []byte) string {
	var out string
	walkStrings(raw, func(s string) bool {
		if strings.TrimSpace(s) == "" {
			return true
		}
		out = s
		return false
	})
	return out
}

// walkStrings calls fn for every string in raw in document order until fn returns false.
func walkStrings(raw []byte, fn func(string) bool) {
	var walk func(r gjson.Result) bool
	walk = func(r gjson.Result) bool {
		switch {
		case r.Type == gjson.String:
			return fn(r.Str)
		case r.IsObject(), r.IsArray():
			cont := true
			r.ForEach(func(_, v gjson.Result) bool {
				cont = walk(v)
				return cont
			})
			return cont
		}
		return true
	}
	walk(gjson.ParseBytes(raw))
}
