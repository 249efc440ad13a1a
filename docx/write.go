package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

type contentTypes struct {
	XMLName   xml.Name     `xml:"http://schemas.openxmlformats.org/package/2006/content-types Types"`
	Defaults  []ctDefault  `xml:"Default"`
	Overrides []ctOverride `xml:"Override"`
}

type ctDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type ctOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// defaultFor returns the Default content type registered for ext.
func (c *contentTypes) defaultFor(ext string) (string, bool) {
	for _, d := range c.Defaults {
		if strings.EqualFold(d.Extension, ext) {
			return d.ContentType, true
		}
	}
	return "", false
}

// overrideFor returns the Override content type for a part name (without
// the leading slash).
func (c *contentTypes) overrideFor(part string) (string, bool) {
	for _, o := range c.Overrides {
		if strings.TrimPrefix(o.PartName, "/") == part {
			return o.ContentType, true
		}
	}
	return "", false
}

func (c *contentTypes) setDefault(ext, ct string) {
	if _, ok := c.defaultFor(ext); ok {
		return
	}
	c.Defaults = append(c.Defaults, ctDefault{Extension: ext, ContentType: ct})
}

func (c *contentTypes) setOverride(part, ct string) {
	for i, o := range c.Overrides {
		if strings.TrimPrefix(o.PartName, "/") == part {
			c.Overrides[i].ContentType = ct
			return
		}
	}
	c.Overrides = append(c.Overrides, ctOverride{PartName: "/" + part, ContentType: ct})
}

type relationships struct {
	XMLName xml.Name       `xml:"http://schemas.openxmlformats.org/package/2006/relationships Relationships"`
	Rels    []Relationship `xml:"Relationship"`
}

func unmarshalRels(data []byte) ([]Relationship, error) {
	var r relationships
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r.Rels, nil
}

func marshalRels(rels []Relationship) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	// Marshal of plain string attributes cannot fail.
	b, _ := xml.Marshal(relationships{Rels: rels})
	buf.Write(b)
	return buf.Bytes()
}

// Bytes serializes the document as a .docx package. Parts are written in a
// fixed order so equal documents produce equal bytes.
func (d *Document) Bytes() ([]byte, error) {
	types := d.types
	types.Overrides = append([]ctOverride(nil), d.types.Overrides...)
	types.Defaults = append([]ctDefault(nil), d.types.Defaults...)
	types.setDefault("rels", ctRelationships)
	types.setDefault("xml", "application/xml")
	types.setOverride(d.mainPart, ctMainDocument)

	ctXML, err := xml.Marshal(types)
	if err != nil {
		return nil, fmt.Errorf("docx: content types: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("docx: create %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("docx: write %s: %w", name, err)
		}
		return nil
	}

	if err := write("[Content_Types].xml", append([]byte(xml.Header), ctXML...)); err != nil {
		return nil, err
	}
	if err := write(d.mainPart, d.mainXML()); err != nil {
		return nil, err
	}
	if err := write(relsPartName(d.mainPart), marshalRels(d.rels)); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(d.parts))
	for name := range d.parts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := write(name, d.parts[name]); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("docx: close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// mainXML renders the main document part.
func (d *Document) mainXML() []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	buf.WriteByte('<')
	buf.WriteString(d.rootName)
	for _, a := range d.rootAttrs {
		buf.WriteByte(' ')
		buf.WriteString(a.qname())
		buf.WriteString(`="`)
		xml.EscapeText(&buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	buf.WriteString("><")
	buf.WriteString(d.bodyName)
	buf.WriteByte('>')
	for _, e := range d.body {
		buf.Write(e.Raw)
	}
	buf.Write(d.sectPr)
	buf.WriteString("</")
	buf.WriteString(d.bodyName)
	buf.WriteString("></")
	buf.WriteString(d.rootName)
	buf.WriteByte('>')
	return buf.Bytes()
}
