// CLAUDE:SUMMARY In-memory WordprocessingML package: top-level body elements kept as raw XML, plus relationships and parts.
// Package docx reads, builds and writes .docx packages at the granularity the
// combiner needs: the ordered list of top-level body elements (paragraphs,
// tables, structured document tags, ...) kept as their original XML bytes,
// the root namespace declarations, the main part's relationships, and every
// other part of the package copied verbatim.
//
// Usage:
//
//	doc, err := docx.Parse(data)
//	out := docx.New()
//	out.Append(docx.Paragraph("hello"))
//	if err := out.AppendBody(doc); err != nil { ... }
//	b, err := out.Bytes()
//
// Pure Go, archive/zip + encoding/xml only.
package docx

import (
	"errors"
	"strings"
)

// XML namespaces used by the writer.
const (
	NSWordML        = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	NSRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsPkgRels       = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsContentTypes  = "http://schemas.openxmlformats.org/package/2006/content-types"

	relTypeOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	ctMainDocument        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	ctRelationships       = "application/vnd.openxmlformats-package.relationships+xml"
)

var (
	// ErrNotPackage is returned when the bytes are not a zip container.
	ErrNotPackage = errors.New("docx: not a zip package")
	// ErrNoMainPart is returned when the package has no main document part.
	ErrNoMainPart = errors.New("docx: main document part not found")
	// ErrNoBody is returned when the main part has no w:body element.
	ErrNoBody = errors.New("docx: document has no body")
	// ErrMissingPart is returned when a relationship points at a part that
	// is not in the package.
	ErrMissingPart = errors.New("docx: relationship target missing")
)

// Element is one top-level child of w:body, kept as raw XML.
type Element struct {
	Name string // local name: p, tbl, sdt, ...
	Raw  []byte
}

// attr is a root element attribute with its source prefix preserved.
type attr struct {
	Prefix string
	Local  string
	Value  string
}

func (a attr) qname() string {
	if a.Prefix == "" {
		return a.Local
	}
	return a.Prefix + ":" + a.Local
}

// Relationship is one entry of a .rels part.
type Relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

// External reports whether the relationship points outside the package.
func (r Relationship) External() bool {
	return strings.EqualFold(r.TargetMode, "External")
}

// Document is a parsed or freshly built .docx package.
type Document struct {
	mainPart  string // e.g. "word/document.xml"
	rootName  string // qualified root tag, e.g. "w:document"
	bodyName  string // qualified body tag, e.g. "w:body"
	rootAttrs []attr
	body      []Element
	sectPr    []byte

	rels  []Relationship
	parts map[string][]byte // every other zip entry, keyed by part name
	types contentTypes

	imports int // number of AppendBody calls, used to prefix copied part names
}

// New returns an empty document with an A4 section and the standard
// namespace declarations.
func New() *Document {
	d := &Document{
		mainPart: "word/document.xml",
		rootName: "w:document",
		bodyName: "w:body",
		rootAttrs: []attr{
			{Prefix: "xmlns", Local: "w", Value: NSWordML},
			{Prefix: "xmlns", Local: "r", Value: NSRelationships},
			{Prefix: "xmlns", Local: "wp", Value: "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"},
			{Prefix: "xmlns", Local: "a", Value: "http://schemas.openxmlformats.org/drawingml/2006/main"},
			{Prefix: "xmlns", Local: "pic", Value: "http://schemas.openxmlformats.org/drawingml/2006/picture"},
			{Prefix: "xmlns", Local: "mc", Value: "http://schemas.openxmlformats.org/markup-compatibility/2006"},
		},
		sectPr: []byte(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/>` +
			`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`),
		parts: make(map[string][]byte),
		types: contentTypes{
			Defaults: []ctDefault{
				{Extension: "rels", ContentType: ctRelationships},
				{Extension: "xml", ContentType: "application/xml"},
			},
		},
	}
	d.parts["_rels/.rels"] = marshalRels([]Relationship{{
		ID:     "rId1",
		Type:   relTypeOfficeDocument,
		Target: d.mainPart,
	}})
	return d
}

// Body returns the top-level body elements in document order. The final
// section properties are not part of the body list.
func (d *Document) Body() []Element {
	out := make([]Element, len(d.body))
	copy(out, d.body)
	return out
}

// Len returns the number of top-level body elements.
func (d *Document) Len() int { return len(d.body) }

// Append adds elements at the end of the body. Elements are copied.
func (d *Document) Append(elems ...Element) {
	for _, e := range elems {
		raw := make([]byte, len(e.Raw))
		copy(raw, e.Raw)
		d.body = append(d.body, Element{Name: e.Name, Raw: raw})
	}
}

// Relationships returns the main part's relationships.
func (d *Document) Relationships() []Relationship {
	out := make([]Relationship, len(d.rels))
	copy(out, d.rels)
	return out
}

// Part returns the bytes of a package part other than the main document,
// its relationships and the content types.
func (d *Document) Part(name string) ([]byte, bool) {
	b, ok := d.parts[name]
	return b, ok
}

// namespace returns the URI bound to prefix on the root element.
func (d *Document) namespace(prefix string) (string, bool) {
	for _, a := range d.rootAttrs {
		if a.Prefix == "xmlns" && a.Local == prefix {
			return a.Value, true
		}
	}
	return "", false
}

// prefixesFor returns every root prefix bound to uri.
func (d *Document) prefixesFor(uri string) []string {
	var out []string
	for _, a := range d.rootAttrs {
		if a.Prefix == "xmlns" && a.Value == uri {
			out = append(out, a.Local)
		}
	}
	return out
}

// mainDir is the directory relationship targets of the main part resolve against.
func (d *Document) mainDir() string {
	if i := strings.LastIndexByte(d.mainPart, '/'); i >= 0 {
		return d.mainPart[:i]
	}
	return ""
}

// relsPartName returns the .rels part name for a given part.
func relsPartName(part string) string {
	dir, base := "", part
	if i := strings.LastIndexByte(part, '/'); i >= 0 {
		dir, base = part[:i+1], part[i+1:]
	}
	return dir + "_rels/" + base + ".rels"
}
