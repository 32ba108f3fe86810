package wire

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"

	"rubin.dev/mesh/internal/meshtransport"
)

// GzipLevel names the three compression presets exposed to callers, mapped
// onto klauspost/compress/gzip's numeric levels (spec.md §4.B).
type GzipLevel int

const (
	GzipFast     GzipLevel = gzip.BestSpeed
	GzipBalanced GzipLevel = gzip.DefaultCompression
	GzipMax      GzipLevel = gzip.BestCompression
)

// GzipCompress compresses payload at the given level.
func GzipCompress(payload []byte, level GzipLevel) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, int(level))
	if err != nil {
		return nil, meshtransport.New(meshtransport.CompressionFailure, "wire.GzipCompress", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, meshtransport.New(meshtransport.CompressionFailure, "wire.GzipCompress", err)
	}
	if err := w.Close(); err != nil {
		return nil, meshtransport.New(meshtransport.CompressionFailure, "wire.GzipCompress", err)
	}
	return buf.Bytes(), nil
}

// GzipDecompress reverses GzipCompress.
func GzipDecompress(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, meshtransport.New(meshtransport.DecompressionFailed, "wire.GzipDecompress", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, meshtransport.New(meshtransport.DecompressionFailed, "wire.GzipDecompress", err)
	}
	return out, nil
}

// LZ4Compress compresses payload for the duty-cycle-constrained path, where
// encode/decode speed matters more than ratio (spec.md §4.B).
func LZ4Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, meshtransport.New(meshtransport.CompressionFailure, "wire.LZ4Compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, meshtransport.New(meshtransport.CompressionFailure, "wire.LZ4Compress", err)
	}
	return buf.Bytes(), nil
}

// LZ4Decompress reverses LZ4Compress.
func LZ4Decompress(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, meshtransport.New(meshtransport.DecompressionFailed, "wire.LZ4Decompress", err)
	}
	return out, nil
}
