// Package normalize brings raw submissions to the canonical format.
//
// Canonical (.docx) bytes pass through untouched, secondary (.pdf) bytes go
// through a Converter. A failed item is recorded and dropped; the batch goes
// on. Surviving submissions keep their input order, also when conversions
// run in parallel.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/docmerge/submission"
)

// Converter turns secondary-format bytes into canonical-format bytes.
// *convert.Converter implements it.
type Converter interface {
	Convert(ctx context.Context, data []byte) ([]byte, error)
}

// Config configures a Normalizer.
type Config struct {
	// Workers is the number of conversions run at once (default: 1).
	Workers int `json:"workers" yaml:"workers"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Normalizer applies the converter where needed.
type Normalizer struct {
	conv   Converter
	cfg    Config
	logger *slog.Logger
}

// New creates a Normalizer around conv.
func New(conv Converter, cfg Config) *Normalizer {
	cfg.defaults()
	return &Normalizer{conv: conv, cfg: cfg, logger: cfg.Logger}
}

type outcome struct {
	sub submission.Normalized
	err *submission.ItemError
}

// Normalize processes raws and returns the surviving submissions in input
// order plus one error per dropped item, also in input order.
func (n *Normalizer) Normalize(ctx context.Context, raws []submission.Raw) submission.BatchResult {
	results := make([]outcome, len(raws))

	if n.cfg.Workers == 1 || len(raws) < 2 {
		for i, raw := range raws {
			results[i] = n.one(ctx, raw)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, n.cfg.Workers)
		for i, raw := range raws {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, raw submission.Raw) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = n.one(ctx, raw)
			}(i, raw)
		}
		wg.Wait()
	}

	var out submission.BatchResult
	for _, r := range results {
		if r.err != nil {
			out.Errors = append(out.Errors, *r.err)
			continue
		}
		out.Submissions = append(out.Submissions, r.sub)
	}

	n.logger.Info("submissions normalized",
		"input", len(raws),
		"kept", len(out.Submissions),
		"dropped", len(out.Errors),
		"workers", n.cfg.Workers)
	return out
}

func (n *Normalizer) one(ctx context.Context, raw submission.Raw) outcome {
	switch raw.Format {
	case submission.Canonical:
		return outcome{sub: submission.Normalized{Identity: raw.Identity, Path: raw.Path, Document: raw.Data}}

	case submission.Secondary:
		if err := ctx.Err(); err != nil {
			return failed(raw, fmt.Errorf("%w: %w", submission.ErrConversion, err))
		}
		doc, err := n.conv.Convert(ctx, raw.Data)
		if err != nil {
			n.logger.Warn("conversion failed", "identity", raw.Identity, "path", raw.Path, "error", err)
			return failed(raw, err)
		}
		n.logger.Debug("converted", "identity", raw.Identity, "path", raw.Path, "in", len(raw.Data), "out", len(doc))
		return outcome{sub: submission.Normalized{Identity: raw.Identity, Path: raw.Path, Document: doc}}

	default:
		return failed(raw, fmt.Errorf("%w: unrecognized format", submission.ErrConversion))
	}
}

// failed records err as a conversion failure whatever it wraps.
func failed(raw submission.Raw, err error) outcome {
	return outcome{err: &submission.ItemError{
		Identity: raw.Identity,
		Path:     raw.Path,
		Kind:     submission.KindConversion,
		Message:  err.Error(),
	}}
}
