package docx

import (
	"bytes"
	"encoding/xml"
)

// Paragraph returns a single-run paragraph holding text. Tabs and line
// breaks in text become w:tab and w:br.
func Paragraph(text string) Element {
	return paragraph(text, false)
}

// BoldParagraph is Paragraph with a bold run.
func BoldParagraph(text string) Element {
	return paragraph(text, true)
}

// EmptyParagraph returns a paragraph with no runs.
func EmptyParagraph() Element {
	return Element{Name: "p", Raw: []byte(`<w:p/>`)}
}

// PageBreak returns a paragraph holding a single page break.
func PageBreak() Element {
	return Element{Name: "p", Raw: []byte(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)}
}

func paragraph(text string, bold bool) Element {
	var buf bytes.Buffer
	buf.WriteString("<w:p><w:r>")
	if bold {
		buf.WriteString("<w:rPr><w:b/></w:rPr>")
	}
	var seg []byte
	flush := func() {
		if len(seg) == 0 {
			return
		}
		buf.WriteString(`<w:t xml:space="preserve">`)
		xml.EscapeText(&buf, seg)
		buf.WriteString("</w:t>")
		seg = seg[:0]
	}
	for _, c := range []byte(text) {
		switch c {
		case '\t':
			flush()
			buf.WriteString("<w:tab/>")
		case '\n':
			flush()
			buf.WriteString("<w:br/>")
		case '\r':
		default:
			seg = append(seg, c)
		}
	}
	flush()
	buf.WriteString("</w:r></w:p>")
	return Element{Name: "p", Raw: buf.Bytes()}
}
