package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/s3handler/pkg/output"
)

// fileStore is a file-backend root holding one bucket named "bucket".
type fileStore struct {
	root string
}

func newFileStore(t *testing.T, objects map[string]string) *fileStore {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := t.TempDir()
	for key, body := range objects {
		p := filepath.Join(root, "bucket", filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bucket"), 0o755))
	return &fileStore{root: root}
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.root, "bucket", filepath.FromSlash(key))
}

// run executes the CLI against the store and returns stdout, stderr.
func (s *fileStore) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	readOnly = false
	appConfig = nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--file-root", s.root}, args...))
	rootCmd.SetContext(context.Background())

	err := rootCmd.Execute()

	rootCmd.SetArgs(nil)
	rootCmd.SetIn(nil)
	resetFlags(rootCmd)
	readOnly = false
	return out.String(), errOut.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestBucketsCommand(t *testing.T) {
	s := newFileStore(t, nil)
	require.NoError(t, os.Mkdir(filepath.Join(s.root, "another"), 0o755))

	out, _, err := s.run(t, "", "buckets")
	require.NoError(t, err)
	assert.Equal(t, []string{"another", "bucket"}, lines(out))
}

func TestKeysCommand(t *testing.T) {
	s := newFileStore(t, map[string]string{
		"a.txt":           "a",
		"data/b.csv":      "bb",
		"data/sub/c.csv":  "ccc",
		"data/sub/d.json": "dddd",
		"data/.hidden":    "h",
		"z.txt":           "z",
	})

	t.Run("recursive", func(t *testing.T) {
		out, _, err := s.run(t, "", "keys", "s3://bucket/data/")
		require.NoError(t, err)
		assert.Equal(t, []string{"data/.hidden", "data/b.csv", "data/sub/c.csv", "data/sub/d.json"}, lines(out))
	})

	t.Run("glob", func(t *testing.T) {
		out, _, err := s.run(t, "", "keys", "s3://bucket/data/**/*.csv")
		require.NoError(t, err)
		assert.Equal(t, []string{"data/b.csv", "data/sub/c.csv"}, lines(out))
	})

	t.Run("exclude and no-hidden", func(t *testing.T) {
		out, _, err := s.run(t, "", "keys", "s3://bucket/data/", "--exclude", "**/*.json", "--no-hidden")
		require.NoError(t, err)
		assert.Equal(t, []string{"data/b.csv", "data/sub/c.csv"}, lines(out))
	})

	t.Run("start-after", func(t *testing.T) {
		out, _, err := s.run(t, "", "keys", "s3://bucket/", "--start-after", "data/sub/c.csv")
		require.NoError(t, err)
		assert.Equal(t, []string{"data/sub/d.json", "z.txt"}, lines(out))
	})

	t.Run("long with summary", func(t *testing.T) {
		out, _, err := s.run(t, "", "keys", "s3://bucket/data/sub/", "--long", "--summary")
		require.NoError(t, err)
		got := lines(out)
		require.Len(t, got, 3)
		assert.True(t, strings.HasSuffix(got[0], "  data/sub/c.csv"))
		assert.Contains(t, got[0], "           3  ")
		assert.Equal(t, "total 2 entries, 7 bytes", got[2])
	})

	t.Run("jsonl", func(t *testing.T) {
		out, _, err := s.run(t, "", "-o", "jsonl", "keys", "s3://bucket/data/sub/")
		require.NoError(t, err)

		sc := bufio.NewScanner(strings.NewReader(out))
		var keys []string
		for sc.Scan() {
			var rec output.Record
			require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
			assert.Equal(t, output.TypeObject, rec.Type)
			assert.Equal(t, "file", rec.Provider)
			assert.NotEmpty(t, rec.JobID)
			var obj output.ObjectRecord
			require.NoError(t, json.Unmarshal(rec.Data, &obj))
			assert.NotZero(t, obj.Size)
			keys = append(keys, obj.Key)
		}
		assert.Equal(t, []string{"data/sub/c.csv", "data/sub/d.json"}, keys)
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, errOut, err := s.run(t, "", "keys", "s3://nope/")
		require.Error(t, err)
		assert.Equal(t, foundry.ExitFileNotFound, exitCode(err))
		assert.Contains(t, errOut, "NOT_FOUND")
	})

	t.Run("invalid uri", func(t *testing.T) {
		_, _, err := s.run(t, "", "keys", "gs://bucket/")
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCode(err))
	})
}

func TestDirsCommand(t *testing.T) {
	s := newFileStore(t, map[string]string{
		"a.txt":          "a",
		"data/b.csv":     "b",
		"data/sub/c.csv": "c",
		"logs/d.log":     "d",
	})

	out, _, err := s.run(t, "", "dirs", "s3://bucket/")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/", "logs/"}, lines(out))

	out, _, err = s.run(t, "", "dirs", "s3://bucket/", "--depth", "0")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/", "data/sub/", "logs/"}, lines(out))

	out, _, err = s.run(t, "", "dirs", "s3://bucket/data")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/sub/"}, lines(out), "a prefix without a trailing delimiter is treated as a directory")

	_, _, err = s.run(t, "", "dirs", "s3://bucket/", "--depth", "-1")
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(err))
}

func TestObjectCommands(t *testing.T) {
	s := newFileStore(t, map[string]string{"docs/readme.txt": "hello world"})

	out, _, err := s.run(t, "", "cat", "s3://bucket/docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	out, _, err = s.run(t, "new content", "put", "s3://bucket/docs/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "put s3://bucket/docs/new.txt (11 bytes)\n", out)
	data, err := os.ReadFile(s.path("docs/new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))

	local := filepath.Join(t.TempDir(), "local.bin")
	require.NoError(t, os.WriteFile(local, []byte{0, 1, 2, 3}, 0o644))
	_, _, err = s.run(t, "", "put", "s3://bucket/bin/data.bin", "--file", local)
	require.NoError(t, err)
	assert.FileExists(t, s.path("bin/data.bin"))

	out, _, err = s.run(t, "", "stat", "s3://bucket/docs/readme.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "          11  ")
	assert.Contains(t, out, "docs/readme.txt")

	out, _, err = s.run(t, "", "rm", "s3://bucket/docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "rm s3://bucket/docs/readme.txt\n", out)
	assert.NoFileExists(t, s.path("docs/readme.txt"))

	_, _, err = s.run(t, "", "rm", "s3://bucket/docs/readme.txt")
	assert.NoError(t, err, "deleting a missing object succeeds")

	_, _, err = s.run(t, "", "cat", "s3://bucket/docs/readme.txt")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, exitCode(err))

	_, _, err = s.run(t, "", "cat", "s3://bucket/docs/")
	assert.ErrorIs(t, err, ErrNotAnObject)
}

func TestTransferCommands(t *testing.T) {
	s := newFileStore(t, map[string]string{"src/report.csv": "a,b\n1,2\n"})

	out, _, err := s.run(t, "", "cp", "s3://bucket/src/report.csv", "s3://bucket/archive/")
	require.NoError(t, err)
	assert.Equal(t, "cp s3://bucket/src/report.csv -> s3://bucket/archive/report.csv (8 bytes)\n", out)
	assert.FileExists(t, s.path("archive/report.csv"))

	dir := t.TempDir()
	_, _, err = s.run(t, "", "download", "s3://bucket/src/report.csv", dir)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "report.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	local := filepath.Join(dir, "upload.txt")
	require.NoError(t, os.WriteFile(local, []byte("uploaded"), 0o644))
	out, _, err = s.run(t, "", "upload", local, "s3://bucket/in/")
	require.NoError(t, err)
	assert.Contains(t, out, "-> s3://bucket/in/upload.txt (8 bytes)")
	assert.FileExists(t, s.path("in/upload.txt"))

	_, _, err = s.run(t, "", "upload", filepath.Join(dir, "missing.txt"), "s3://bucket/in/")
	assert.Equal(t, foundry.ExitFileNotFound, exitCode(err))
}

func TestReadOnlyBlocksWrites(t *testing.T) {
	s := newFileStore(t, map[string]string{"a.txt": "a"})
	local := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))

	for _, args := range [][]string{
		{"put", "s3://bucket/b.txt"},
		{"rm", "s3://bucket/a.txt"},
		{"cp", "s3://bucket/a.txt", "s3://bucket/c.txt"},
		{"upload", local, "s3://bucket/d.txt"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, _, err := s.run(t, "x", append([]string{"--readonly"}, args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "readonly")
		})
	}
	assert.FileExists(t, s.path("a.txt"))
	assert.NoFileExists(t, s.path("b.txt"))

	_, _, err := s.run(t, "", "--readonly", "cat", "s3://bucket/a.txt")
	assert.NoError(t, err, "reads are allowed")
}

func TestConfigShowAndVersion(t *testing.T) {
	s := newFileStore(t, nil)

	out, _, err := s.run(t, "", "--page-size", "25", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: file")
	assert.Contains(t, out, "root: "+s.root)
	assert.Contains(t, out, "page_size: 25")

	out, _, err = s.run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "s3handler "+versionInfo.Version))
}

func TestStorageHealthChecker(t *testing.T) {
	s := newFileStore(t, map[string]string{"a.txt": "a"})
	_, _, err := s.run(t, "", "config", "show")
	require.NoError(t, err)

	c, err := newClient(context.Background())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.NoError(t, storageHealthChecker{c: c}.CheckHealth(context.Background()))
	assert.NoError(t, storageHealthChecker{c: c, bucket: "bucket"}.CheckHealth(context.Background()))
	assert.Error(t, storageHealthChecker{c: c, bucket: "missing"}.CheckHealth(context.Background()))
}
