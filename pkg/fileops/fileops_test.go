package fileops

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/s3handler/pkg/provider"
	"github.com/3leaps/s3handler/pkg/provider/file"
)

func newTestOps(t *testing.T, buckets ...string) (*Ops, *file.Provider, string) {
	t.Helper()
	root := t.TempDir()
	for _, b := range append([]string{"bucket"}, buckets...) {
		require.NoError(t, os.Mkdir(filepath.Join(root, b), 0o755))
	}
	p, err := file.New(file.Config{BaseDir: root})
	require.NoError(t, err)
	return New(p), p, root
}

// plainProvider hides the file provider's copy capability.
type plainProvider struct {
	provider.Provider
}

// liarProvider announces a larger size than it delivers.
type liarProvider struct {
	provider.Provider
}

func (l liarProvider) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	rc, size, err := l.Provider.GetObject(ctx, bucket, key)
	return rc, size + 10, err
}

func TestReadWrite_BinaryRoundTrip(t *testing.T) {
	ops, _, _ := newTestOps(t)
	ctx := context.Background()

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, ops.Write(ctx, "bucket", "bin/all-bytes", data))

	got, err := ops.Read(ctx, "bucket", "bin/all-bytes")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	size, err := ops.Size(ctx, "bucket", "bin/all-bytes")
	require.NoError(t, err)
	assert.Equal(t, int64(256), size)
}

func TestWrite_Overwrites(t *testing.T) {
	ops, _, _ := newTestOps(t)
	ctx := context.Background()

	require.NoError(t, ops.Write(ctx, "bucket", "k", []byte("first version")))
	require.NoError(t, ops.Write(ctx, "bucket", "k", []byte("v2")))

	got, err := ops.Read(ctx, "bucket", "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestWrite_EmptyObject(t *testing.T) {
	ops, _, _ := newTestOps(t)
	ctx := context.Background()

	require.NoError(t, ops.Write(ctx, "bucket", "empty", nil))
	got, err := ops.Read(ctx, "bucket", "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete_Idempotent(t *testing.T) {
	ops, _, _ := newTestOps(t)
	ctx := context.Background()

	require.NoError(t, ops.Write(ctx, "bucket", "gone.txt", []byte("x")))
	require.NoError(t, ops.Delete(ctx, "bucket", "gone.txt"))
	require.NoError(t, ops.Delete(ctx, "bucket", "gone.txt"))

	_, err := ops.Read(ctx, "bucket", "gone.txt")
	assert.True(t, provider.IsNotFound(err))
}

func TestValidation(t *testing.T) {
	ops, _, _ := newTestOps(t)
	ctx := context.Background()

	_, err := ops.Read(ctx, "", "k")
	assert.True(t, provider.IsInvalidArgument(err))
	assert.True(t, provider.IsInvalidArgument(ops.Write(ctx, "bucket", "", []byte("x"))))
	assert.True(t, provider.IsInvalidArgument(ops.Delete(ctx, "UPPER", "k")))
	_, err = ops.Size(ctx, "bucket", strings.Repeat("k", provider.MaxKeyLength+1))
	assert.True(t, provider.IsInvalidArgument(err))
}

func TestCopy(t *testing.T) {
	ctx := context.Background()

	t.Run("server side", func(t *testing.T) {
		ops, _, _ := newTestOps(t, "other")
		require.NoError(t, ops.Write(ctx, "bucket", "src", []byte("payload")))
		require.NoError(t, ops.Copy(ctx,
			provider.ObjectRef{Bucket: "bucket", Key: "src"},
			provider.ObjectRef{Bucket: "other", Key: "dst"}))

		got, err := ops.Read(ctx, "other", "dst")
		require.NoError(t, err)
		assert.Equal(t, "payload", string(got))
	})

	t.Run("streaming fallback", func(t *testing.T) {
		_, p, _ := newTestOps(t)
		ops := New(plainProvider{p})
		_, isCopier := any(plainProvider{p}).(provider.ObjectCopier)
		require.False(t, isCopier)

		require.NoError(t, ops.Write(ctx, "bucket", "src", []byte("payload")))
		require.NoError(t, ops.Copy(ctx,
			provider.ObjectRef{Bucket: "bucket", Key: "src"},
			provider.ObjectRef{Bucket: "bucket", Key: "nested/dst"}))

		got, err := ops.Read(ctx, "bucket", "nested/dst")
		require.NoError(t, err)
		assert.Equal(t, "payload", string(got))
	})

	t.Run("missing source", func(t *testing.T) {
		ops, _, _ := newTestOps(t)
		err := ops.Copy(ctx,
			provider.ObjectRef{Bucket: "bucket", Key: "nope"},
			provider.ObjectRef{Bucket: "bucket", Key: "dst"})
		assert.True(t, provider.IsNotFound(err))
	})
}

func TestDownload(t *testing.T) {
	ops, _, _ := newTestOps(t)
	ctx := context.Background()
	require.NoError(t, ops.Write(ctx, "bucket", "reports/q1.csv", []byte("a,b\n1,2\n")))

	dest := filepath.Join(t.TempDir(), "deep", "tree", "q1.csv")
	n, err := ops.Download(ctx, "bucket", "reports/q1.csv", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDownload_Failures(t *testing.T) {
	_, p, _ := newTestOps(t)
	ctx := context.Background()
	require.NoError(t, New(p).Write(ctx, "bucket", "k", []byte("short")))

	destDir := t.TempDir()
	dest := filepath.Join(destDir, "k")

	_, err := New(p).Download(ctx, "bucket", "missing", dest)
	assert.True(t, provider.IsNotFound(err))

	_, err = New(liarProvider{p}).Download(ctx, "bucket", "k", dest)
	var mismatch *SizeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, int64(15), mismatch.Expected)
	assert.Equal(t, int64(5), mismatch.Got)
	assert.Contains(t, mismatch.Error(), "bucket/k")

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed download leaves nothing behind")
}

func TestUpload(t *testing.T) {
	ops, p, _ := newTestOps(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(src, []byte("<html><body>hi</body></html>"), 0o644))

	n, err := ops.Upload(ctx, "bucket", "site/index.html", src)
	require.NoError(t, err)
	assert.Equal(t, int64(28), n)

	meta, err := p.Head(ctx, "bucket", "site/index.html")
	require.NoError(t, err)
	assert.Equal(t, int64(28), meta.Size)

	got, err := ops.Read(ctx, "bucket", "site/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html><body>hi</body></html>", string(got))

	_, err = ops.Upload(ctx, "bucket", "k", filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = ops.Upload(ctx, "bucket", "k", t.TempDir())
	assert.True(t, provider.IsInvalidArgument(err))
}
