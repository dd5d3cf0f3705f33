package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/s3handler/pkg/client"
	"github.com/3leaps/s3handler/pkg/output"
	"github.com/3leaps/s3handler/pkg/provider"
	"github.com/3leaps/s3handler/pkg/provider/file"
)

func newTestClient(t *testing.T, keys ...string) *client.Client {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "bucket"), 0o755))

	c, err := client.New(context.Background(), client.Config{
		Provider: provider.ProviderFile,
		File:     file.Config{BaseDir: root},
		PageSize: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	for _, k := range keys {
		require.NoError(t, c.WriteFile(context.Background(), "bucket", k, []byte("content of "+k)))
	}
	return c
}

func newRouter(b Browser) http.Handler {
	r := chi.NewRouter()
	NewBrowseHandler(b, nil).Routes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

// records decodes a JSONL body into envelopes.
func records(t *testing.T, body string) []output.Record {
	t.Helper()
	var out []output.Record
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestBrowse_Buckets(t *testing.T) {
	h := newRouter(newTestClient(t))

	rec := get(t, h, "/buckets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ndjsonContentType, rec.Header().Get("Content-Type"))

	recs := records(t, rec.Body.String())
	require.Len(t, recs, 1)
	assert.Equal(t, output.TypeBucket, recs[0].Type)
	assert.Equal(t, "file", recs[0].Provider)

	var b output.BucketRecord
	require.NoError(t, json.Unmarshal(recs[0].Data, &b))
	assert.Equal(t, "bucket", b.Name)
}

func TestBrowse_Keys(t *testing.T) {
	h := newRouter(newTestClient(t, "a.txt", "dir/b.txt", "dir/sub/c.txt", "z.txt"))

	keysOf := func(body string) []string {
		var keys []string
		for _, r := range records(t, body) {
			require.Equal(t, output.TypeObject, r.Type)
			var obj output.ObjectRecord
			require.NoError(t, json.Unmarshal(r.Data, &obj))
			keys = append(keys, obj.Key)
		}
		return keys
	}

	rec := get(t, h, "/buckets/bucket/keys")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a.txt", "dir/b.txt", "dir/sub/c.txt", "z.txt"}, keysOf(rec.Body.String()))

	rec = get(t, h, "/buckets/bucket/keys?prefix=dir/")
	assert.Equal(t, []string{"dir/b.txt", "dir/sub/c.txt"}, keysOf(rec.Body.String()))

	rec = get(t, h, "/buckets/bucket/keys?start_after=dir/b.txt")
	assert.Equal(t, []string{"dir/sub/c.txt", "z.txt"}, keysOf(rec.Body.String()))

	rec = get(t, h, "/buckets/bucket/keys?prefix=dir/sub/&long=true")
	recs := records(t, rec.Body.String())
	require.Len(t, recs, 1)
	var obj output.ObjectRecord
	require.NoError(t, json.Unmarshal(recs[0].Data, &obj))
	assert.Equal(t, int64(len("content of dir/sub/c.txt")), obj.Size)
	assert.False(t, obj.LastModified.IsZero())
}

func TestBrowse_KeysErrors(t *testing.T) {
	h := newRouter(newTestClient(t))

	rec := get(t, h, "/buckets/missing/keys")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"NOT_FOUND"`)

	rec = get(t, h, "/buckets/Bad_Bucket/keys")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"INVALID_ARGUMENT"`)

	rec = get(t, h, "/buckets/bucket/keys?prefix=nothing/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

// failingBrowser yields the real keys, then fails.
type failingBrowser struct {
	*client.Client
}

func (f failingBrowser) IterateKeys(ctx context.Context, bucket, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for k, err := range f.Client.IterateKeys(ctx, bucket, prefix) {
			if !yield(k, err) {
				return
			}
		}
		yield("", fmt.Errorf("page 2: %w", provider.ErrThrottled))
	}
}

func TestBrowse_MidStreamError(t *testing.T) {
	h := newRouter(failingBrowser{newTestClient(t, "a", "b")})

	rec := get(t, h, "/buckets/bucket/keys")
	require.Equal(t, http.StatusOK, rec.Code)

	recs := records(t, rec.Body.String())
	require.Len(t, recs, 3)
	assert.Equal(t, output.TypeObject, recs[0].Type)
	assert.Equal(t, output.TypeObject, recs[1].Type)
	require.Equal(t, output.TypeError, recs[2].Type)

	var e output.ErrorRecord
	require.NoError(t, json.Unmarshal(recs[2].Data, &e))
	assert.Equal(t, output.ErrCodeThrottled, e.Code)
	assert.Equal(t, "bucket", e.Bucket)
}

func TestBrowse_FirstEntryErrorUsesStatus(t *testing.T) {
	h := newRouter(failingBrowser{newTestClient(t)})

	rec := get(t, h, "/buckets/bucket/keys")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestBrowse_Dirs(t *testing.T) {
	h := newRouter(newTestClient(t, "a.txt", "dir/b.txt", "dir/sub/c.txt", "other/d.txt"))

	prefixes := func(body string) []string {
		var out []string
		for _, r := range records(t, body) {
			require.Equal(t, output.TypePrefix, r.Type)
			var p output.PrefixRecord
			require.NoError(t, json.Unmarshal(r.Data, &p))
			out = append(out, p.Prefix)
		}
		return out
	}

	rec := get(t, h, "/buckets/bucket/dirs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"dir/", "other/"}, prefixes(rec.Body.String()))

	rec = get(t, h, "/buckets/bucket/dirs?depth=0")
	assert.Equal(t, []string{"dir/", "dir/sub/", "other/"}, prefixes(rec.Body.String()))

	rec = get(t, h, "/buckets/bucket/dirs?depth=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBrowse_Object(t *testing.T) {
	h := newRouter(newTestClient(t, "docs/readme.txt"))

	rec := get(t, h, "/buckets/bucket/objects/docs/readme.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "content of docs/readme.txt", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, fmt.Sprint(len("content of docs/readme.txt")), rec.Header().Get("Content-Length"))

	head := httptest.NewRecorder()
	h.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/buckets/bucket/objects/docs/readme.txt", nil))
	assert.Equal(t, http.StatusOK, head.Code)
	assert.Empty(t, head.Body.String())

	rec = get(t, h, "/buckets/bucket/objects/docs/missing.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBrowse_Stat(t *testing.T) {
	h := newRouter(newTestClient(t, "docs/readme.txt"))

	rec := get(t, h, "/buckets/bucket/stat/docs/readme.txt")
	require.Equal(t, http.StatusOK, rec.Code)

	var obj output.ObjectRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&obj))
	assert.Equal(t, "bucket", obj.Bucket)
	assert.Equal(t, "docs/readme.txt", obj.Key)
	assert.NotEmpty(t, obj.ContentType)
}
