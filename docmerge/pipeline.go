// CLAUDE:SUMMARY Orchestrates walk/adapt → normalize → combine, records each batch in the SQLite history, serves HTTP (chi) and MCP.
// CLAUDE:DEPENDS archive, convert, normalize, combine, export, idgen, dbopen, kit, shield
// Package docmerge combines a batch of student submissions into one document.
//
// A batch comes either as a ZIP archive with one folder per submitter or as
// a flat list of uploaded files. Every submission is normalized to .docx
// (PDFs are converted), prefixed with a "Submitted by" banner and appended to
// one combined document, which the caller renders with package export.
//
// Usage:
//
//	p := docmerge.New(docmerge.DefaultConfig(), docmerge.WithStore(store))
//	res, err := p.CombineArchive(ctx, zipBytes)
//	data, err := export.Render(res.Document, export.PDF)
package docmerge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/docmerge/archive"
	"github.com/hazyhaar/docmerge/combine"
	"github.com/hazyhaar/docmerge/convert"
	"github.com/hazyhaar/docmerge/docx"
	"github.com/hazyhaar/docmerge/idgen"
	"github.com/hazyhaar/docmerge/kit"
	"github.com/hazyhaar/docmerge/normalize"
	"github.com/hazyhaar/docmerge/shield"
	"github.com/hazyhaar/docmerge/submission"
)

// Batch sources.
const (
	SourceArchive = "archive"
	SourceUpload  = "upload"
)

// Result is a successfully combined batch.
type Result struct {
	ID          string                 `json:"batch_id"`
	Document    *docx.Document         `json:"-"`
	Submissions int                    `json:"submissions"`
	Items       []Item                 `json:"items"`
	Errors      []submission.ItemError `json:"errors"`
}

// BatchError is a batch that produced no document. Errors holds the item
// errors collected before the failure, which usually explain it (every PDF
// failed to convert, say). It unwraps to the fatal cause.
type BatchError struct {
	ID     string
	Errors []submission.ItemError
	Err    error
}

func (e *BatchError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("batch %s: %v (%d item errors)", e.ID, e.Err, len(e.Errors))
	}
	return fmt.Sprintf("batch %s: %v", e.ID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore records every batch in s.
func WithStore(s *Store) Option { return func(p *Pipeline) { p.store = s } }

// WithIDGenerator sets the batch id generator (default: idgen.Batch).
func WithIDGenerator(g idgen.Generator) Option { return func(p *Pipeline) { p.newID = g } }

// WithConverter replaces the PDF converter.
func WithConverter(c normalize.Converter) Option { return func(p *Pipeline) { p.conv = c } }

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// Pipeline runs batches. It keeps no per-batch state and is safe for
// concurrent use.
type Pipeline struct {
	cfg        *Config
	walker     *archive.Walker
	normalizer *normalize.Normalizer
	conv       normalize.Converter
	limiter    *shield.RateLimiter
	auth       *shield.KeyAuth
	store      *Store
	newID      idgen.Generator
	logger     *slog.Logger
}

// New creates a Pipeline. A nil cfg means DefaultConfig().
func New(cfg *Config, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Pipeline{cfg: cfg, newID: idgen.Batch, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	if p.conv == nil {
		p.conv = convert.New(convert.Config{
			MaxInputBytes: int64(cfg.Convert.MaxInputMB) << 20,
			NoPageBreaks:  cfg.Convert.NoPageBreaks,
			Logger:        p.logger,
		})
	}
	p.walker = archive.New(archive.Config{
		MaxFilesPerSubmitter: cfg.MaxFilesPerSubmitter,
		MaxEntryBytes:        cfg.MaxEntryBytes(),
		TempDir:              cfg.TempDir,
		Logger:               p.logger,
	})
	p.normalizer = normalize.New(p.conv, normalize.Config{Workers: cfg.Workers, Logger: p.logger})
	p.limiter = shield.NewRateLimiter(cfg.RateLimit)
	p.auth = shield.NewKeyAuth(cfg.APIKeys, "/v1/health")
	return p
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() *Config { return p.cfg }

// Store returns the batch history, or nil when none is configured.
func (p *Pipeline) Store() *Store { return p.store }

// Limiter returns the rate limiter guarding POST /v1/combine.
func (p *Pipeline) Limiter() *shield.RateLimiter { return p.limiter }

// CombineArchive combines the submissions found in a ZIP archive. A corrupt
// archive fails with a *BatchError wrapping submission.ErrArchiveCorrupt.
func (p *Pipeline) CombineArchive(ctx context.Context, data []byte) (*Result, error) {
	id := p.newID()
	raws, errs := p.walker.Walk(ctx, data)
	for _, e := range errs {
		if e.Kind == submission.KindArchiveCorrupt {
			return nil, p.fail(ctx, id, SourceArchive, errs, e)
		}
	}
	return p.run(ctx, id, SourceArchive, raws, errs)
}

// CombineUploads combines directly uploaded files. All of them carry the
// placeholder identity.
func (p *Pipeline) CombineUploads(ctx context.Context, items []submission.Upload) (*Result, error) {
	return p.run(ctx, p.newID(), SourceUpload, submission.Adapt(items), nil)
}

func (p *Pipeline) run(ctx context.Context, id, source string, raws []submission.Raw, errs []submission.ItemError) (*Result, error) {
	logger := p.logger.With(append([]any{"batch_id", id, "source", source}, kit.LogAttrs(ctx)...)...)

	batch := p.normalizer.Normalize(ctx, raws)
	errs = append(errs, batch.Errors...)

	combined, err := combine.CombineWith(batch.Submissions, combine.Options{
		SkipMalformed: p.cfg.SkipMalformed,
		Logger:        logger,
	})
	if err != nil {
		if merr, ok := combine.IsMalformed(err); ok {
			errs = append(errs, merr.ItemError())
		}
		return nil, p.fail(ctx, id, source, errs, err)
	}

	skipped := make(map[int]bool, len(combined.Skipped))
	for _, s := range combined.Skipped {
		errs = append(errs, s.ItemError())
		skipped[s.Index] = true
	}
	items := make([]Item, 0, combined.Included)
	for i, sub := range batch.Submissions {
		if !skipped[i] {
			items = append(items, Item{Identity: sub.Identity, Path: sub.Path})
		}
	}

	res := &Result{
		ID:          id,
		Document:    combined.Document,
		Submissions: combined.Included,
		Items:       items,
		Errors:      errs,
	}
	status := StatusOK
	if len(errs) > 0 {
		status = StatusPartial
	}
	p.record(ctx, &Batch{
		ID:          id,
		Source:      source,
		Status:      status,
		Submissions: res.Submissions,
		Items:       items,
		Errors:      errs,
	})
	logger.Info("batch combined", "submissions", res.Submissions, "errors", len(errs), "elements", combined.Document.Len())
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, id, source string, errs []submission.ItemError, cause error) error {
	p.logger.Warn("batch failed", "batch_id", id, "source", source, "error", cause, "item_errors", len(errs))
	p.record(ctx, &Batch{
		ID:      id,
		Source:  source,
		Status:  StatusFailed,
		Errors:  errs,
		Failure: cause.Error(),
	})
	return &BatchError{ID: id, Errors: errs, Err: cause}
}

// record stores b. History is best effort: a store failure is logged and
// does not fail the batch.
func (p *Pipeline) record(ctx context.Context, b *Batch) {
	if p.store == nil {
		return
	}
	if err := p.store.Record(context.WithoutCancel(ctx), b); err != nil {
		p.logger.Error("record batch", "batch_id", b.ID, "error", err)
	}
}

// IsFatal reports whether err is one of the batch-level failures (corrupt
// archive, empty batch, malformed document) rather than an internal error.
func IsFatal(err error) bool {
	return errors.Is(err, submission.ErrArchiveCorrupt) ||
		errors.Is(err, submission.ErrEmptyBatch) ||
		errors.Is(err, submission.ErrMalformedDocument)
}
