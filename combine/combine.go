// CLAUDE:SUMMARY Document Combiner: banner + spacer + body elements + page break per submission, appended into one fresh .docx.
// Package combine concatenates normalized submissions into one document.
//
// For every submission, in order, the combined body receives:
//
//	<banner>      bold "Submitted by: <identity>"
//	<spacer>      empty paragraph
//	<content>     every top-level body element of the submission
//	<page break>  also after the last submission
//
// The submission's own section properties, headers, footers and styles are
// not carried over; the combined document keeps its own.
package combine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/docmerge/docx"
	"github.com/hazyhaar/docmerge/submission"
)

// MalformedDocumentError reports a submission whose bytes are not a usable
// .docx package. It matches submission.ErrMalformedDocument.
type MalformedDocumentError struct {
	Index    int // position in the input sequence
	Identity string
	Path     string
	Err      error
}

func (e *MalformedDocumentError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("malformed document from %s (%s): %v", e.Identity, e.Path, e.Err)
	}
	return fmt.Sprintf("malformed document from %s: %v", e.Identity, e.Err)
}

// Unwrap exposes both the sentinel and the parse error.
func (e *MalformedDocumentError) Unwrap() []error {
	return []error{submission.ErrMalformedDocument, e.Err}
}

// ItemError converts e for a batch error list.
func (e *MalformedDocumentError) ItemError() submission.ItemError {
	return submission.ItemError{
		Identity: e.Identity,
		Path:     e.Path,
		Kind:     submission.KindMalformedDocument,
		Message:  e.Err.Error(),
	}
}

// Options tunes Combine.
type Options struct {
	// SkipMalformed drops unusable documents instead of failing the whole
	// combination. Dropped documents are returned in Result.Skipped.
	SkipMalformed bool

	Logger *slog.Logger
}

// Result is the outcome of CombineWith.
type Result struct {
	Document *docx.Document
	Included int
	Skipped  []*MalformedDocumentError
}

// Combine builds a new document from subs. It fails with
// submission.ErrEmptyBatch when subs is empty and with
// *MalformedDocumentError when a document cannot be parsed or its parts
// cannot be carried over; no document is returned on failure.
func Combine(subs []submission.Normalized) (*docx.Document, error) {
	res, err := CombineWith(subs, Options{})
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

// CombineWith is Combine with options. With SkipMalformed it still fails
// with submission.ErrEmptyBatch when every document was dropped.
func CombineWith(subs []submission.Normalized, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(subs) == 0 {
		return nil, submission.ErrEmptyBatch
	}

	out := docx.New()
	res := &Result{Document: out}
	for i, s := range subs {
		src, err := docx.Parse(s.Document)
		if err == nil && opts.SkipMalformed {
			// Dry run so a failing transplant never leaves half a
			// submission in out.
			err = docx.New().AppendBody(src)
		}
		if err != nil {
			merr := &MalformedDocumentError{Index: i, Identity: s.Identity, Path: s.Path, Err: err}
			if !opts.SkipMalformed {
				return nil, merr
			}
			logger.Warn("malformed document skipped", "identity", s.Identity, "path", s.Path, "error", err)
			res.Skipped = append(res.Skipped, merr)
			continue
		}

		out.Append(docx.BoldParagraph(submission.BannerLabel+s.Identity), docx.EmptyParagraph())
		if err := out.AppendBody(src); err != nil {
			return nil, &MalformedDocumentError{Index: i, Identity: s.Identity, Path: s.Path, Err: err}
		}
		out.Append(docx.PageBreak())
		res.Included++
	}

	if res.Included == 0 {
		return nil, fmt.Errorf("%w: all %d documents were malformed", submission.ErrEmptyBatch, len(subs))
	}
	logger.Debug("documents combined", "included", res.Included, "skipped", len(res.Skipped), "elements", out.Len())
	return res, nil
}

// IsMalformed reports whether err carries a *MalformedDocumentError.
func IsMalformed(err error) (*MalformedDocumentError, bool) {
	var merr *MalformedDocumentError
	ok := errors.As(err, &merr)
	return merr, ok
}
