package export

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"

	"github.com/hazyhaar/docmerge/docx"
)

// Page layout of the PDF rendering: A4, Helvetica 11pt.
const (
	pageWidth    = 595
	pageHeight   = 842
	marginLeft   = 50
	marginTop    = 56
	fontSize     = 11
	leading      = 12.5
	linesPerPage = 60
	wrapColumns  = 90
	tabWidth     = 4
)

// renderPDF lays the document's text out as pages and lets pdfcpu validate
// and rewrite the result. Paragraph breaks become line breaks, page breaks
// start a new page and long lines are word-wrapped.
func renderPDF(doc *docx.Document) ([]byte, error) {
	pages := layout(doc.Blocks())

	raw := writePDF(pages)
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(raw), &out, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("export: pdf: %w", err)
	}
	return out.Bytes(), nil
}

// layout distributes blocks over pages. A page break opens a new page only
// once more text follows, so a trailing break adds no blank page.
func layout(blocks []docx.Block) [][]string {
	var pages [][]string
	var cur []string
	pending := false

	emit := func(line string) {
		if pending || len(cur) == linesPerPage {
			pages = append(pages, cur)
			cur = nil
			pending = false
		}
		cur = append(cur, line)
	}

	for _, b := range blocks {
		for _, line := range strings.Split(b.Text, "\n") {
			line = strings.ReplaceAll(line, "\t", strings.Repeat(" ", tabWidth))
			for _, w := range wrap(line, wrapColumns) {
				emit(w)
			}
		}
		if b.PageBreakAfter {
			pending = true
		}
	}
	return append(pages, cur)
}

// wrap splits line into chunks of at most width runes, breaking at spaces
// when possible. An empty line yields one empty chunk.
func wrap(line string, width int) []string {
	line = strings.TrimRight(line, " ")
	var out []string
	for utf8.RuneCountInString(line) > width {
		r := []rune(line)
		cut := width
		for i := width; i > width/2; i-- {
			if r[i] == ' ' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimRight(string(r[:cut]), " "))
		line = strings.TrimLeft(string(r[cut:]), " ")
	}
	return append(out, line)
}

// writePDF writes a minimal PDF 1.4 file: catalog, page tree, one shared
// Helvetica font and a page plus content stream per page.
func writePDF(pages [][]string) []byte {
	n := len(pages)
	size := 4 + 2*n
	offsets := make([]int, size)
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>\nendobj\n")

	for i, lines := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i
		stream := contentStream(lines)
		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n",
			pageObj, pageWidth, pageHeight, contentObj)
		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n", contentObj, len(stream))
		b.Write(stream)
		b.WriteString("\nendstream\nendobj\n")
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", size)
	for i := 1; i < size; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return b.Bytes()
}

// contentStream shows one line per text row, top down.
func contentStream(lines []string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "BT\n/F1 %d Tf\n%g TL\n%d %d Td\n", fontSize, leading, marginLeft, pageHeight-marginTop)
	for i, line := range lines {
		if i > 0 {
			b.WriteString("T*\n")
		}
		if line == "" {
			continue
		}
		b.WriteByte('(')
		b.Write(pdfString(line))
		b.WriteString(") Tj\n")
	}
	b.WriteString("ET")
	return b.Bytes()
}

// pdfString encodes s in WinAnsiEncoding for a literal string. Runes the
// encoding lacks become '?'.
func pdfString(s string) []byte {
	var out []byte
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		switch c {
		case '(', ')', '\\':
			out = append(out, '\\', c)
		default:
			if c < 0x20 {
				out = append(out, ' ')
				continue
			}
			out = append(out, c)
		}
	}
	return out
}
