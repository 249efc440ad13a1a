// Package export renders a combined document in a download format.
//
// Usage:
//
//	f, err := export.ParseFormat(r.URL.Query().Get("format"))
//	data, err := export.Render(doc, f)
//	w.Header().Set("Content-Type", export.ContentType(f))
package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/docmerge/docx"
	"github.com/hazyhaar/docmerge/submission"
)

// Format is an export target.
type Format string

const (
	DOCX Format = "docx"
	TXT  Format = "txt"
	PDF  Format = "pdf"
	HTML Format = "html"
	MD   Format = "md"
)

// ErrUnknownFormat is returned for a format name Render does not support.
var ErrUnknownFormat = errors.New("export: unknown format")

// Formats lists the supported formats, default first.
func Formats() []Format { return []Format{DOCX, TXT, PDF, HTML, MD} }

// ParseFormat resolves a user-supplied format name. Empty means DOCX.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	switch f {
	case "":
		return DOCX, nil
	case DOCX, TXT, PDF, HTML, MD:
		return f, nil
	case "htm":
		return HTML, nil
	case "markdown":
		return MD, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Render serializes doc as f.
func Render(doc *docx.Document, f Format) ([]byte, error) {
	switch f {
	case DOCX, "":
		return doc.Bytes()
	case TXT:
		return []byte(doc.PlainText()), nil
	case PDF:
		return renderPDF(doc)
	case HTML:
		return renderHTML(doc)
	case MD:
		return renderMarkdown(doc)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// ContentType returns the MIME type served for f.
func ContentType(f Format) string {
	switch f {
	case TXT:
		return "text/plain; charset=utf-8"
	case PDF:
		return submission.ContentTypePDF
	case HTML:
		return "text/html; charset=utf-8"
	case MD:
		return "text/markdown; charset=utf-8"
	}
	return submission.ContentTypeDocx
}

// FileName returns the download file name for base rendered as f.
func FileName(base string, f Format) string {
	if base == "" {
		base = "combined"
	}
	if f == "" {
		f = DOCX
	}
	return base + "." + string(f)
}
