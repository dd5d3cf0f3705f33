package retry

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// DefaultBufferMaxMemoryBytes controls how large a put body we buffer in
// memory to make retries seekable. Larger bodies are spooled to a temp file.
const DefaultBufferMaxMemoryBytes int64 = 16 << 20 // 16 MiB

type replayableBody struct {
	reader  io.ReadSeeker
	cleanup func() error
}

func (b *replayableBody) Reader() io.ReadSeeker { return b.reader }

func (b *replayableBody) Close() error {
	if b.cleanup == nil {
		return nil
	}
	return b.cleanup()
}

// newReplayableBody drains src into memory when size is known and small,
// otherwise into a temp file. An unknown size (< 0) always spools.
func newReplayableBody(src io.Reader, size int64, maxMemoryBytes int64) (*replayableBody, error) {
	if maxMemoryBytes <= 0 {
		maxMemoryBytes = DefaultBufferMaxMemoryBytes
	}

	if size >= 0 && size <= maxMemoryBytes {
		data, err := io.ReadAll(io.LimitReader(src, size))
		if err != nil {
			return nil, err
		}
		return &replayableBody{reader: bytes.NewReader(data)}, nil
	}

	f, err := os.CreateTemp("", "s3handler-put-buffer-*")
	if err != nil {
		return nil, err
	}
	remove := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}

	if _, err := io.Copy(f, src); err != nil {
		remove()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		remove()
		return nil, err
	}

	return &replayableBody{
		reader: f,
		cleanup: func() error {
			name := f.Name()
			closeErr := f.Close()
			rmErr := os.Remove(name)
			if closeErr != nil {
				return fmt.Errorf("close temp file: %w", closeErr)
			}
			if rmErr != nil {
				return fmt.Errorf("remove temp file: %w", rmErr)
			}
			return nil
		},
	}, nil
}
