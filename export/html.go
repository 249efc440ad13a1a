package export

import (
	"bytes"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/docmerge/docx"
	"github.com/hazyhaar/docmerge/submission"
)

// fragmentPolicy is the allowlist every HTML fragment passes through before
// it is served or converted. Only the elements bodyNodes emits survive.
var fragmentPolicy = bluemonday.NewPolicy().AllowElements("h2", "p", "br", "hr")

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// bodyNodes maps blocks to HTML: banner paragraphs become h2 headings, page
// breaks become hr rules and in-paragraph line breaks become br.
func bodyNodes(blocks []docx.Block) []*html.Node {
	var out []*html.Node
	for _, b := range blocks {
		if b.Text != "" {
			tag := atom.P
			if strings.HasPrefix(b.Text, submission.BannerLabel) {
				tag = atom.H2
			}
			n := &html.Node{Type: html.ElementNode, DataAtom: tag, Data: tag.String()}
			for i, line := range strings.Split(b.Text, "\n") {
				if i > 0 {
					n.AppendChild(&html.Node{Type: html.ElementNode, DataAtom: atom.Br, Data: "br"})
				}
				n.AppendChild(&html.Node{Type: html.TextNode, Data: line})
			}
			out = append(out, n)
		}
		if b.PageBreakAfter {
			out = append(out, &html.Node{Type: html.ElementNode, DataAtom: atom.Hr, Data: "hr"})
		}
	}
	return out
}

// htmlFragment renders the document body as sanitized HTML.
func htmlFragment(doc *docx.Document) ([]byte, error) {
	var buf bytes.Buffer
	for _, n := range bodyNodes(doc.Blocks()) {
		if err := html.Render(&buf, n); err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
	}
	return fragmentPolicy.SanitizeBytes(buf.Bytes()), nil
}

func renderHTML(doc *docx.Document) ([]byte, error) {
	body, err := htmlFragment(doc)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Combined submissions</title>\n</head>\n<body>\n")
	out.Write(body)
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

func renderMarkdown(doc *docx.Document) ([]byte, error) {
	body, err := htmlFragment(doc)
	if err != nil {
		return nil, err
	}
	md, err := mdConverter.ConvertString(string(body))
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimSpace(md) + "\n"), nil
}
