// CLAUDE:SUMMARY Archive Walker: unpacks a submission ZIP into a scratch dir, walks it in lexical order, tags each file with its folder identity.
// Package archive turns a submission archive into raw submissions.
//
// Expected layout is one folder per submitter, at any depth:
//
//	alice_99231/essay.docx
//	bob_10422/essay.pdf
//	notes.docx               (archive root: placeholder identity)
//
// Walk extracts recognized files into a scratch directory that is removed
// before Walk returns, then visits it with filepath.WalkDir. Submissions are
// therefore yielded in lexical order of their archive path, which is the
// order the combiner will use.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/docmerge/horosafe"
	"github.com/hazyhaar/docmerge/submission"
)

// Config configures a Walker.
type Config struct {
	// MaxFilesPerSubmitter caps the recognized files taken from one folder.
	// 0 means unlimited.
	MaxFilesPerSubmitter int `json:"max_files_per_submitter" yaml:"max_files_per_submitter"`

	// MaxEntryBytes bounds the uncompressed size of one entry (default: 256 MB).
	MaxEntryBytes int64 `json:"max_entry_bytes" yaml:"max_entry_bytes"`

	// TempDir is where scratch directories are created (default: os.TempDir()).
	TempDir string `json:"temp_dir" yaml:"temp_dir"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxEntryBytes <= 0 {
		c.MaxEntryBytes = 256 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Walker walks submission archives. It is safe for concurrent use; every
// Walk owns its own scratch directory.
type Walker struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Walker.
func New(cfg Config) *Walker {
	cfg.defaults()
	return &Walker{cfg: cfg, logger: cfg.Logger}
}

// Walk returns the recognized files of the archive in data, in lexical path
// order, together with the per-file problems met on the way. A per-file
// failure never stops the walk. When data is not a readable ZIP, Walk
// returns no submissions and a single KindArchiveCorrupt error.
func (w *Walker) Walk(ctx context.Context, data []byte) ([]submission.Raw, []submission.ItemError) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
		// Non-local names are rejected per entry by SafePath.
		err = nil
	}
	if err != nil {
		w.logger.Warn("archive unreadable", "error", err, "size", len(data))
		return nil, []submission.ItemError{{
			Kind:    submission.KindArchiveCorrupt,
			Message: fmt.Sprintf("%v: %v", submission.ErrArchiveCorrupt, err),
		}}
	}

	scratch, err := os.MkdirTemp(w.cfg.TempDir, "docmerge-walk-*")
	if err != nil {
		return nil, []submission.ItemError{fileError("", "", fmt.Errorf("scratch dir: %w", err))}
	}
	defer os.RemoveAll(scratch)

	errs := w.extract(ctx, zr, scratch)
	subs, walkErrs := w.walk(ctx, scratch)
	errs = append(errs, walkErrs...)

	w.logger.Info("archive walked",
		"entries", len(zr.File),
		"submissions", len(subs),
		"errors", len(errs))
	return subs, errs
}

// extract writes every recognized, non-junk entry under scratch.
func (w *Walker) extract(ctx context.Context, zr *zip.Reader, scratch string) []submission.ItemError {
	var errs []submission.ItemError
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return append(errs, fileError("", "", err))
		}
		name := f.Name
		if f.FileInfo().IsDir() || !f.Mode().IsRegular() || isJunk(name) {
			continue
		}
		if submission.FormatFromName(name) == submission.Unrecognized {
			continue
		}

		identity := identityFor(path.Dir(strings.ReplaceAll(name, `\`, "/")))
		dest, err := horosafe.SafePath(scratch, name)
		if err != nil {
			w.logger.Warn("archive entry rejected", "entry", name, "error", err)
			errs = append(errs, fileError(identity, name, err))
			continue
		}
		if err := w.extractFile(f, dest); err != nil {
			errs = append(errs, fileError(identity, name, err))
		}
	}
	return errs
}

func (w *Walker) extractFile(f *zip.File, dest string) error {
	if f.UncompressedSize64 > uint64(w.cfg.MaxEntryBytes) {
		return fmt.Errorf("%w: declared size %d bytes", horosafe.ErrTooLarge, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := horosafe.LimitedReadAll(rc, w.cfg.MaxEntryBytes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o600)
}

// walk visits scratch in lexical order and reads back every file.
func (w *Walker) walk(ctx context.Context, scratch string) ([]submission.Raw, []submission.ItemError) {
	var (
		subs    []submission.Raw
		errs    []submission.ItemError
		counts  = make(map[string]int)
		folders []string
	)

	walkErr := filepath.WalkDir(scratch, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(scratch, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if err != nil {
			errs = append(errs, fileError("", rel, err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		format := submission.FormatFromName(rel)
		if format == submission.Unrecognized {
			return nil
		}
		folder := path.Dir(rel)
		identity := identityFor(folder)

		if _, seen := counts[folder]; !seen {
			folders = append(folders, folder)
		}
		counts[folder]++
		if limit := w.cfg.MaxFilesPerSubmitter; limit > 0 && counts[folder] > limit {
			w.logger.Debug("file over per-submitter cap skipped", "path", rel, "identity", identity)
			return nil
		}

		data, readErr := os.ReadFile(p)
		if readErr != nil {
			errs = append(errs, fileError(identity, rel, readErr))
			return nil
		}
		subs = append(subs, submission.Raw{
			Identity: identity,
			Path:     rel,
			Data:     data,
			Format:   format,
		})
		return nil
	})
	if walkErr != nil {
		errs = append(errs, fileError("", "", walkErr))
	}

	if limit := w.cfg.MaxFilesPerSubmitter; limit > 0 {
		for _, folder := range folders {
			if n := counts[folder]; n > limit {
				errs = append(errs, submission.ItemError{
					Identity: identityFor(folder),
					Path:     folder,
					Kind:     submission.KindExcessFiles,
					Message:  fmt.Sprintf("folder has %d files, only the first %d are included", n, limit),
				})
			}
		}
	}
	return subs, errs
}

// identityFor derives the identity from a slash-separated folder path.
// Files at the archive root get the placeholder.
func identityFor(folder string) string {
	if folder == "." || folder == "/" || folder == "" {
		return submission.Placeholder
	}
	return submission.ExtractIdentity(path.Base(folder))
}

// isJunk reports platform litter: macOS resource forks and metadata
// folders, hidden files, and Office lock files.
func isJunk(name string) bool {
	for _, seg := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		if seg == "__MACOSX" || (strings.HasPrefix(seg, ".") && seg != "." && seg != "..") {
			return true
		}
	}
	return strings.HasPrefix(path.Base(name), "~$")
}

func fileError(identity, rel string, err error) submission.ItemError {
	return submission.ItemError{
		Identity: identity,
		Path:     rel,
		Kind:     submission.KindFileRead,
		Message:  err.Error(),
	}
}
