package artifact

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/pierrec/lz4/v4"
)

// Compressor compresses whole artifact payloads in memory
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Extension() string
}

// Compression looks up compressors by algorithm
type Compression struct {
	compressors map[domain.CompressionType]Compressor
}

func NewCompression() *Compression {
	return &Compression{
		compressors: map[domain.CompressionType]Compressor{
			domain.CompressionGzip: gzipCompressor{},
			domain.CompressionLZ4:  lz4Compressor{},
			domain.CompressionZstd: zstdCompressor{},
		},
	}
}

// Supports reports whether algorithm is known, including none
func (c *Compression) Supports(algorithm domain.CompressionType) bool {
	if algorithm == domain.CompressionNone {
		return true
	}
	_, ok := c.compressors[algorithm]
	return ok
}

func (c *Compression) Compress(data []byte, algorithm domain.CompressionType) ([]byte, error) {
	if algorithm == domain.CompressionNone {
		return data, nil
	}
	compressor, ok := c.compressors[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
	return compressor.Compress(data)
}

func (c *Compression) Decompress(data []byte, algorithm domain.CompressionType) ([]byte, error) {
	if algorithm == domain.CompressionNone {
		return data, nil
	}
	compressor, ok := c.compressors[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
	return compressor.Decompress(data)
}

// Extension returns the file suffix for algorithm, empty for none
func (c *Compression) Extension(algorithm domain.CompressionType) string {
	if compressor, ok := c.compressors[algorithm]; ok {
		return compressor.Extension()
	}
	return ""
}

type gzipCompressor struct{}

func (gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write gzip data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress gzip data: %w", err)
	}
	return decompressed, nil
}

func (gzipCompressor) Extension() string { return ".gz" }

type lz4Compressor struct{}

func (lz4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write lz4 data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close lz4 writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Compressor) Decompress(data []byte) ([]byte, error) {
	decompressed, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress lz4 data: %w", err)
	}
	return decompressed, nil
}

func (lz4Compressor) Extension() string { return ".lz4" }

type zstdCompressor struct{}

func (zstdCompressor) Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (zstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	decompressed, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd data: %w", err)
	}
	return decompressed, nil
}

func (zstdCompressor) Extension() string { return ".zst" }
