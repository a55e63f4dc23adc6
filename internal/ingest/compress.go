package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec names a transparent compression format, chosen by file extension
type Codec string

const (
	CodecNone Codec = ""
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
)

// CodecForPath picks the codec from the last extension of path
func CodecForPath(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CodecGzip
	case ".zst", ".zstd":
		return CodecZstd
	default:
		return CodecNone
	}
}

// baseExt returns the extension of path ignoring a compression suffix
func baseExt(path string) string {
	if CodecForPath(path) != CodecNone {
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	return filepath.Ext(path)
}

// closeChain closes in order and reports the first failure
type closeChain []func() error

func (c closeChain) Close() error {
	var first error
	for _, fn := range c {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type readCloser struct {
	io.Reader
	closeChain
}

type writeCloser struct {
	io.Writer
	closeChain
}

// Open opens path for reading, decompressing .gz and .zst files
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	r, err := NewReader(f, CodecForPath(path))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return readCloser{Reader: r, closeChain: closeChain{r.Close, f.Close}}, nil
}

// NewReader wraps r with a decompressor for codec. Closing the result does not close r.
func NewReader(r io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case CodecGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip stream: %w", err)
		}
		return zr, nil
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("invalid zstd stream: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(bufio.NewReader(r)), nil
	}
}

// Create creates path for writing, compressing when it ends in .gz or .zst.
// Close flushes the compressor before closing the file.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w, err := NewWriter(f, CodecForPath(path))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return writeCloser{Writer: w, closeChain: closeChain{w.Close, f.Close}}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w with a compressor for codec. Closing the result does not close w.
func NewWriter(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	default:
		return nopWriteCloser{w}, nil
	}
}
