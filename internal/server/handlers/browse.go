package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/s3handler/internal/server/middleware"
	"github.com/3leaps/s3handler/pkg/output"
	"github.com/3leaps/s3handler/pkg/provider"
)

// Browser is the read-only slice of the client the browsing API needs.
type Browser interface {
	Provider() provider.ProviderType
	ListBuckets(ctx context.Context) ([]string, error)
	IterateKeys(ctx context.Context, bucket, prefix string) iter.Seq2[string, error]
	IterateObjects(ctx context.Context, bucket, prefix string) iter.Seq2[provider.ObjectSummary, error]
	KeysAfter(ctx context.Context, bucket, prefix, startAfter string) iter.Seq2[string, error]
	IterateDirs(ctx context.Context, bucket, prefix string) iter.Seq2[string, error]
	WalkDirs(ctx context.Context, bucket, prefix string, maxDepth int) iter.Seq2[string, error]
	StatFile(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error)
	OpenFile(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
}

const ndjsonContentType = "application/x-ndjson"

// BrowseHandler serves listings and object content.
type BrowseHandler struct {
	b      Browser
	logger *zap.Logger
}

// NewBrowseHandler wraps b. A nil logger discards output.
func NewBrowseHandler(b Browser, logger *zap.Logger) *BrowseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowseHandler{b: b, logger: logger}
}

// Routes mounts the browsing endpoints on r.
func (h *BrowseHandler) Routes(r chi.Router) {
	r.Get("/buckets", h.Buckets)
	r.Route("/buckets/{bucket}", func(r chi.Router) {
		r.Get("/keys", h.Keys)
		r.Get("/dirs", h.Dirs)
		r.Get("/stat/*", h.Stat)
		r.Get("/objects/*", h.Object)
		r.Head("/objects/*", h.Object)
	})
}

// Buckets streams one bucket record per bucket.
func (h *BrowseHandler) Buckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.b.ListBuckets(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	jw := h.streamStart(w, r)
	defer func() { _ = jw.Close() }()
	for _, name := range buckets {
		if err := jw.WriteBucket(r.Context(), &output.BucketRecord{Name: name}); err != nil {
			return
		}
	}
}

// Keys streams the keys under ?prefix=. ?long=true adds size and
// timestamps; ?start_after= resumes a listing.
func (h *BrowseHandler) Keys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucket := chi.URLParam(r, "bucket")
	if err := provider.CheckBucketName(bucket); err != nil {
		respondWithError(w, r, err)
		return
	}
	q := r.URL.Query()
	prefix := q.Get("prefix")

	long, _ := strconv.ParseBool(q.Get("long"))
	var seq iter.Seq2[provider.ObjectSummary, error]
	switch {
	case q.Get("start_after") != "":
		seq = keySummaries(h.b.KeysAfter(ctx, bucket, prefix, q.Get("start_after")))
	case long:
		seq = h.b.IterateObjects(ctx, bucket, prefix)
	default:
		seq = keySummaries(h.b.IterateKeys(ctx, bucket, prefix))
	}

	stream(h, w, r, seq, func(jw *output.JSONLWriter, obj provider.ObjectSummary) error {
		return jw.WriteObject(ctx, output.NewObjectRecord(bucket, obj))
	}, bucket, prefix)
}

// Dirs streams the directories below ?prefix=. ?depth=N recurses; 0 walks
// the whole tree.
func (h *BrowseHandler) Dirs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucket := chi.URLParam(r, "bucket")
	if err := provider.CheckBucketName(bucket); err != nil {
		respondWithError(w, r, err)
		return
	}
	q := r.URL.Query()
	prefix := q.Get("prefix")

	depth := 1
	if s := q.Get("depth"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondWithError(w, r, fmt.Errorf("%w: depth must be a non-negative integer", provider.ErrInvalidArgument))
			return
		}
		depth = n
	}

	seq := h.b.IterateDirs(ctx, bucket, prefix)
	if depth != 1 {
		seq = h.b.WalkDirs(ctx, bucket, prefix, depth)
	}
	stream(h, w, r, seq, func(jw *output.JSONLWriter, dir string) error {
		return jw.WritePrefix(ctx, &output.PrefixRecord{Bucket: bucket, Prefix: dir})
	}, bucket, prefix)
}

// Stat returns one object record as JSON.
func (h *BrowseHandler) Stat(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "*")
	meta, err := h.b.StatFile(r.Context(), bucket, key)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(output.NewObjectRecordFromMeta(bucket, meta))
}

// Object serves object content. HEAD returns the headers only.
func (h *BrowseHandler) Object(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "*")

	meta, err := h.b.StatFile(ctx, bucket, key)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	hdr := w.Header()
	if meta.ContentType != "" {
		hdr.Set("Content-Type", meta.ContentType)
	} else {
		hdr.Set("Content-Type", "application/octet-stream")
	}
	if meta.ETag != "" {
		hdr.Set("ETag", `"`+meta.ETag+`"`)
	}
	if !meta.LastModified.IsZero() {
		hdr.Set("Last-Modified", meta.LastModified.UTC().Format(http.TimeFormat))
	}
	hdr.Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, _, err := h.b.OpenFile(ctx, bucket, key)
	if err != nil {
		hdr.Del("Content-Length")
		respondWithError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.WriteHeader(http.StatusOK)
	if n, err := io.Copy(w, body); err != nil {
		h.logger.Warn("Object stream interrupted",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Int64("bytes", n),
			zap.Error(err))
	}
}

func (h *BrowseHandler) streamStart(w http.ResponseWriter, r *http.Request) *output.JSONLWriter {
	w.Header().Set("Content-Type", ndjsonContentType)
	w.WriteHeader(http.StatusOK)
	return output.NewJSONLWriter(w, middleware.GetRequestID(r.Context()), string(h.b.Provider()))
}

// stream pulls the first entry before committing to a 200 so a listing that
// fails immediately gets a proper error status. Later errors become a final
// error record.
func stream[T any](h *BrowseHandler, w http.ResponseWriter, r *http.Request, seq iter.Seq2[T, error],
	write func(*output.JSONLWriter, T) error, bucket, prefix string) {
	ctx := r.Context()
	start := time.Now()

	next, stop := iter.Pull2(seq)
	defer stop()

	first, err, ok := next()
	if ok && err != nil {
		respondWithError(w, r, err)
		return
	}

	jw := h.streamStart(w, r)
	defer func() { _ = jw.Close() }()

	var count int64
	for ; ok; first, err, ok = next() {
		if err != nil {
			rec := output.NewErrorRecord(err)
			rec.Bucket = bucket
			rec.Prefix = prefix
			_ = jw.WriteError(ctx, rec)
			h.logger.Warn("Listing failed mid-stream",
				zap.String("bucket", bucket),
				zap.String("prefix", prefix),
				zap.Int64("entries", count),
				zap.Error(err))
			return
		}
		if werr := write(jw, first); werr != nil {
			// Client went away.
			return
		}
		count++
	}
	h.logger.Debug("Listing streamed",
		zap.String("bucket", bucket),
		zap.String("prefix", prefix),
		zap.Int64("entries", count),
		zap.Duration("duration", time.Since(start)))
}

func keySummaries(keys iter.Seq2[string, error]) iter.Seq2[provider.ObjectSummary, error] {
	return func(yield func(provider.ObjectSummary, error) bool) {
		for key, err := range keys {
			if !yield(provider.ObjectSummary{Key: key}, err) {
				return
			}
		}
	}
}
