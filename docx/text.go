package docx

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// Block is one rendered paragraph. PageBreakAfter is set when the paragraph
// contains a hard page break.
type Block struct {
	Text           string
	PageBreakAfter bool
}

// Blocks renders every paragraph of the body in document order, including
// paragraphs nested in tables and content controls. Text comes from w:t
// runs; w:tab becomes a tab and w:br/w:cr a newline (page breaks excepted).
func (d *Document) Blocks() []Block {
	var out []Block
	for _, e := range d.body {
		out = append(out, elementBlocks(e.Raw)...)
	}
	return out
}

// Paragraphs returns the text of every paragraph, in the order of Blocks.
func (d *Document) Paragraphs() []string {
	blocks := d.Blocks()
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Text
	}
	return out
}

// PlainText renders one line per paragraph, each terminated by '\n'.
func (d *Document) PlainText() string {
	var sb strings.Builder
	for _, p := range d.Paragraphs() {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	return sb.String()
}

type paraState struct {
	text      strings.Builder
	pageBreak bool
}

// elementBlocks walks one body element. Paragraphs can nest (text boxes
// inside a run), so open paragraphs are kept on a stack and each is emitted
// when it closes.
func elementBlocks(raw []byte) []Block {
	// Raw elements carry prefixes bound on the document root; RawToken
	// matches on local names only, so no namespace context is needed.
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var stack []*paraState
	var out []Block
	inText := false

	for {
		tok, err := dec.RawToken()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				stack = append(stack, &paraState{})
			case "t":
				inText = len(stack) > 0
			case "tab":
				if len(stack) > 0 && !inPPr(t) {
					stack[len(stack)-1].text.WriteByte('\t')
				}
			case "br", "cr":
				if len(stack) == 0 {
					continue
				}
				top := stack[len(stack)-1]
				if isPageBreak(t) {
					top.pageBreak = true
				} else {
					top.text.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if len(stack) == 0 {
					continue
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				out = append(out, Block{Text: top.text.String(), PageBreakAfter: top.pageBreak})
			}
		}
	}
	return out
}

// inPPr reports whether a w:tab start element is a tab stop definition
// (it then carries w:val/w:pos) rather than a tab character in a run.
func inPPr(t xml.StartElement) bool {
	for _, a := range t.Attr {
		if a.Name.Local == "pos" || a.Name.Local == "val" {
			return true
		}
	}
	return false
}

func isPageBreak(t xml.StartElement) bool {
	for _, a := range t.Attr {
		if a.Name.Local == "type" && a.Value == "page" {
			return true
		}
	}
	return false
}
