// CLAUDE:SUMMARY PDF to DOCX converter: pdfcpu page extraction, line-aware text scanning, one paragraph per line.
// CLAUDE:DEPENDS convert/stream.go, convert/quality.go, docx
// Package convert turns PDF submissions into .docx documents.
//
// The conversion is text-structural: every page's content stream is scanned
// in stream order, text lines become paragraphs and pages are separated by
// page breaks. Fonts, images and exact layout are not carried over.
//
// Usage:
//
//	conv := convert.New(convert.Config{})
//	docxBytes, err := conv.Convert(ctx, pdfBytes)
package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/docmerge/docx"
	"github.com/hazyhaar/docmerge/submission"
)

// Config configures a Converter.
type Config struct {
	// MaxInputBytes is the largest PDF accepted (default: 100 MB).
	MaxInputBytes int64 `json:"max_input_bytes" yaml:"max_input_bytes"`

	// NoPageBreaks joins pages without a page break paragraph.
	NoPageBreaks bool `json:"no_page_breaks" yaml:"no_page_breaks"`

	// Logger for debug/warn messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxInputBytes <= 0 {
		c.MaxInputBytes = 100 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Error is a conversion failure. It matches submission.ErrConversion.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("convert pdf: %s: %v", e.Reason, e.Err)
	}
	return "convert pdf: " + e.Reason
}

// Unwrap exposes both the conversion sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{submission.ErrConversion}
	}
	return []error{submission.ErrConversion, e.Err}
}

// Converter converts PDF bytes to .docx bytes. It holds no per-call state
// and is safe for concurrent use.
type Converter struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Converter.
func New(cfg Config) *Converter {
	cfg.defaults()
	return &Converter{cfg: cfg, logger: cfg.Logger}
}

// Convert parses pdf and returns a new .docx package holding its text.
// It fails with *Error when pdf is not a readable PDF or when no page yields
// any text (scanned documents without OCR).
func (c *Converter) Convert(ctx context.Context, pdf []byte) ([]byte, error) {
	if int64(len(pdf)) > c.cfg.MaxInputBytes {
		return nil, &Error{Reason: fmt.Sprintf("input too large: %d bytes (max %d)", len(pdf), c.cfg.MaxInputBytes)}
	}

	pages, quality, err := c.extract(ctx, pdf)
	if err != nil {
		return nil, err
	}

	if quality.NeedsOCR() {
		c.logger.Warn("pdf text extraction looks poor",
			"pages", quality.PageCount,
			"chars_per_page", quality.CharsPerPage,
			"printable_ratio", quality.PrintableRatio,
			"has_images", quality.HasImageStreams)
	}

	doc := docx.New()
	for i, lines := range pages {
		if i > 0 && !c.cfg.NoPageBreaks {
			doc.Append(docx.PageBreak())
		}
		for _, line := range lines {
			doc.Append(docx.Paragraph(line))
		}
	}

	out, err := doc.Bytes()
	if err != nil {
		return nil, &Error{Reason: "write docx", Err: err}
	}
	return out, nil
}

// extract reads the PDF with pdfcpu and returns the text lines of every page
// that has text, in page order.
func (c *Converter) extract(ctx context.Context, pdf []byte) ([][]string, *ExtractionQuality, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, nil, &Error{Reason: "not a readable pdf", Err: err}
	}

	var pages [][]string
	var all strings.Builder
	totalChars := 0

	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, &Error{Reason: "cancelled", Err: err}
		}
		lines := pageLines(pctx, pageNr)
		if len(lines) == 0 {
			c.logger.Debug("pdf page without text", "page", pageNr)
			continue
		}
		for _, l := range lines {
			totalChars += len([]rune(l))
			all.WriteString(l)
			all.WriteByte('\n')
		}
		pages = append(pages, lines)
	}

	if len(pages) == 0 {
		return nil, nil, &Error{Reason: "no extractable text"}
	}

	text := all.String()
	quality := &ExtractionQuality{
		PageCount:       pctx.PageCount,
		PrintableRatio:  computePrintableRatio(text),
		WordlikeRatio:   computeWordlikeRatio(text),
		HasImageStreams: detectImageStreams(pctx),
	}
	if pctx.PageCount > 0 {
		quality.CharsPerPage = float64(totalChars) / float64(pctx.PageCount)
	}
	return pages, quality, nil
}

// pageLines extracts the text lines of a single page.
func pageLines(ctx *model.Context, pageNr int) []string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return nil
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return nil
	}
	return scanLines(data)
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}
