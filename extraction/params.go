package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
)

// ParamKind tags the shape of a parameter node's payload.
type ParamKind int

const (
	// ParamEmpty has no val and no children.
	ParamEmpty ParamKind = iota
	// ParamLiteral carries a string val that names no other node.
	ParamLiteral
	// ParamReference carries a string val equal to another node's outName.
	ParamReference
	// ParamStructured carries a non-string val (object, array, number, bool).
	ParamStructured
	// ParamGroup has set/get children and no string val.
	ParamGroup
)

func (k ParamKind) String() string {
	switch k {
	case ParamEmpty:
		return "empty"
	case ParamLiteral:
		return "literal"
	case ParamReference:
		return "reference"
	case ParamStructured:
		return "structured"
	case ParamGroup:
		return "group"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// ParamNode is one entry of an in_param document.
type ParamNode struct {
	Kind    ParamKind
	InName  string
	OutName string

	// Text is the string val for literal and reference nodes.
	Text string

	// Raw is the undecoded val for structured nodes.
	Raw json.RawMessage

	// ChainID and Type are passed through untouched.
	ChainID json.RawMessage
	Type    json.RawMessage

	Set []*ParamNode
	Get []*ParamNode
}

// HasSlot reports whether the node carries a slot label. "none" marks an unlabeled node.
func (n *ParamNode) HasSlot() bool {
	in := strings.TrimSpace(n.InName)
	return in != "" && in != noneMarker
}

// Children returns set children followed by get children.
func (n *ParamNode) Children() []*ParamNode {
	if len(n.Get) == 0 {
		return n.Set
	}
	if len(n.Set) == 0 {
		return n.Get
	}
	out := make([]*ParamNode, 0, len(n.Set)+len(n.Get))
	out = append(out, n.Set...)
	return append(out, n.Get...)
}

// ParamGraph is a parsed in_param document with its outName index.
type ParamGraph struct {
	// Roots holds the top-level nodes in document order.
	Roots []*ParamNode

	// Nodes is every node in document pre-order: a node, its set children, then its get children.
	Nodes []*ParamNode

	byOutName map[string]*ParamNode
}

// Lookup returns the node whose outName is id.
func (g *ParamGraph) Lookup(id string) (*ParamNode, bool) {
	n, ok := g.byOutName[id]
	return n, ok
}

type rawParam struct {
	InName  *string           `json:"inName"`
	OutName *string           `json:"outName"`
	Val     json.RawMessage   `json:"val"`
	ChainID json.RawMessage   `json:"chainId"`
	Type    json.RawMessage   `json:"type"`
	Set     []json.RawMessage `json:"set"`
	Get     []json.RawMessage `json:"get"`
}

// ParseParams decodes an in_param document. The top level must be a JSON array; elements
// that are not objects are skipped.
func ParseParams(doc string) (*ParamGraph, error) {
	var elems []json.RawMessage
	if err := fileutils.DecodeJSONCell(doc, &elems); err != nil {
		return nil, &ParseError{Document: DocParams, Err: err}
	}

	g := &ParamGraph{byOutName: make(map[string]*ParamNode)}
	for _, raw := range elems {
		if n, ok := decodeParam(raw); ok {
			g.Roots = append(g.Roots, n)
		}
	}
	for _, n := range g.Roots {
		g.index(n)
	}
	for _, n := range g.Nodes {
		if n.Kind == ParamLiteral {
			if _, ok := g.byOutName[n.Text]; ok {
				n.Kind = ParamReference
			}
		}
	}
	return g, nil
}

func (g *ParamGraph) index(n *ParamNode) {
	g.Nodes = append(g.Nodes, n)
	if id := n.OutName; id != "" {
		if _, dup := g.byOutName[id]; !dup {
			g.byOutName[id] = n
		}
	}
	for _, c := range n.Children() {
		g.index(c)
	}
}

func decodeParam(raw json.RawMessage) (*ParamNode, bool) {
	if !isJSONObject(raw) {
		return nil, false
	}
	var rp rawParam
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, false
	}

	n := &ParamNode{
		ChainID: rp.ChainID,
		Type:    rp.Type,
	}
	if rp.InName != nil {
		n.InName = strings.TrimSpace(*rp.InName)
	}
	if rp.OutName != nil {
		n.OutName = strings.TrimSpace(*rp.OutName)
	}
	for _, c := range rp.Set {
		if cn, ok := decodeParam(c); ok {
			n.Set = append(n.Set, cn)
		}
	}
	for _, c := range rp.Get {
		if cn, ok := decodeParam(c); ok {
			n.Get = append(n.Get, cn)
		}
	}

	switch {
	case isJSONString(rp.Val):
		// rp.Val came out of a successful Unmarshal, so it is a well-formed string.
		_ = json.Unmarshal(rp.Val, &n.Text)
		n.Kind = ParamLiteral
	case len(rp.Val) > 0 && !isJSONNull(rp.Val):
		n.Raw = rp.Val
		n.Kind = ParamStructured
	}
	if n.Kind == ParamEmpty && (len(n.Set) > 0 || len(n.Get) > 0) {
		n.Kind = ParamGroup
	}
	return n, true
}

// Document names used in ParseError.
const (
	DocContent = "content"
	DocParams  = "in_param"
)

// ParseError reports that one of a row's JSON documents could not be decoded into the
// expected shape.
type ParseError struct {
	Document string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Document, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrClassificationMiss means no content leaf passed the text classifier.
var ErrClassificationMiss = errors.New("no content leaf passed the text classifier")

const noneMarker = "none"

func isJSONObject(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '{'
}

func isJSONString(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '"'
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
