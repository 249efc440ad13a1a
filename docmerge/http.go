package docmerge

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/docmerge/export"
	"github.com/hazyhaar/docmerge/horosafe"
	"github.com/hazyhaar/docmerge/idgen"
	"github.com/hazyhaar/docmerge/kit"
	"github.com/hazyhaar/docmerge/shield"
	"github.com/hazyhaar/docmerge/submission"
)

// Handler returns the HTTP API. Every route but /v1/health requires an API
// key when Config.APIKeys is set.
//
//	POST /v1/combine?format=docx|txt|pdf|html|md   multipart "archive" (one zip) or "files" (many)
//	GET  /v1/batches                               recent batches
//	GET  /v1/batches/{id}                          one batch with items and errors
//	GET  /v1/formats
//	GET  /v1/health
func (p *Pipeline) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(contextMiddleware(idgen.Request))
	for _, mw := range shield.APIStack() {
		r.Use(mw)
	}
	r.Use(p.auth.Middleware)

	r.Get("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/v1/formats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"formats": export.Formats(),
			"default": p.cfg.DefaultFormat(),
		})
	})
	r.With(p.limiter.Middleware).Post("/v1/combine", p.handleCombine)
	r.Get("/v1/batches", p.handleListBatches)
	r.Get("/v1/batches/{id}", p.handleGetBatch)
	return r
}

// contextMiddleware enriches the request context with kit values so logs
// of one request correlate.
func contextMiddleware(reqIDGen idgen.Generator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if horosafe.ValidateIdentifier(reqID) != nil {
				reqID = reqIDGen()
			}
			ctx := kit.WithRequestID(r.Context(), reqID)
			ctx = kit.WithTransport(ctx, "http")
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)

			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (p *Pipeline) handleCombine(w http.ResponseWriter, r *http.Request) {
	format := p.cfg.DefaultFormat()
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := export.ParseFormat(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		format = f
	}

	limit := p.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var (
		res *Result
		err error
	)
	switch {
	case len(r.MultipartForm.File["archive"]) > 0:
		if len(r.MultipartForm.File["archive"]) > 1 {
			writeError(w, http.StatusBadRequest, errors.New("one archive per request"))
			return
		}
		data, rerr := readPart(r.MultipartForm.File["archive"][0], limit)
		if rerr != nil {
			writeError(w, http.StatusBadRequest, rerr)
			return
		}
		res, err = p.CombineArchive(r.Context(), data)

	case len(r.MultipartForm.File["files"]) > 0:
		var items []submission.Upload
		for _, fh := range r.MultipartForm.File["files"] {
			data, rerr := readPart(fh, limit)
			if rerr != nil {
				writeError(w, http.StatusBadRequest, rerr)
				return
			}
			items = append(items, submission.Upload{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
		res, err = p.CombineUploads(r.Context(), items)

	default:
		writeError(w, http.StatusBadRequest, errors.New(`expected multipart field "archive" or "files"`))
		return
	}

	if err != nil {
		var berr *BatchError
		if errors.As(err, &berr) && IsFatal(err) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":    berr.Err.Error(),
				"batch_id": berr.ID,
				"errors":   nonNil(berr.Errors),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	data, err := export.Render(res.Document, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(res.ID, format)))
	w.Header().Set("X-Batch-ID", res.ID)
	w.Header().Set("X-Batch-Submissions", strconv.Itoa(res.Submissions))
	w.Header().Set("X-Batch-Errors", strconv.Itoa(len(res.Errors)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (p *Pipeline) handleListBatches(w http.ResponseWriter, r *http.Request) {
	if p.store == nil {
		writeError(w, http.StatusNotFound, errors.New("batch history disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	batches, err := p.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (p *Pipeline) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if p.store == nil {
		writeError(w, http.StatusNotFound, errors.New("batch history disabled"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := horosafe.ValidateIdentifier(id); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := p.store.Get(r.Context(), id)
	if errors.Is(err, ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := horosafe.LimitedReadAll(f, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return data, nil
}

func nonNil(errs []submission.ItemError) []submission.ItemError {
	if errs == nil {
		return []submission.ItemError{}
	}
	return errs
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
