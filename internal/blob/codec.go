package blob

import (
	"bytes"
	"fmt"
	"io"

	"github.com/containerd/errdefs"
	"github.com/klauspost/compress/zlib"
)

// deflate compresses a document the way IPFS payloads are stored.
func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	return buf.Bytes(), nil
}

// inflate reverses deflate. When maxSize is positive, payloads that
// expand beyond it are rejected.
func inflate(data []byte, maxSize int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("payload is not zlib data: %v: %w", err, errdefs.ErrDataLoss)
	}
	defer zr.Close()

	var r io.Reader = zr
	if maxSize > 0 {
		r = io.LimitReader(zr, maxSize+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %v: %w", err, errdefs.ErrDataLoss)
	}
	if maxSize > 0 && int64(len(out)) > maxSize {
		return nil, fmt.Errorf("payload exceeds max size %d bytes: %w", maxSize, errdefs.ErrOutOfRange)
	}
	return out, nil
}
