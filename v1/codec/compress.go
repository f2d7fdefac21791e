package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compressor shrinks structured payloads after serialization.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// NewCompressor maps a configuration name to a Compressor. "none" and ""
// return nil, which disables compression.
func NewCompressor(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "gzip":
		return Gzip{}, nil
	case "zstd":
		return NewZstd()
	case "snappy":
		return Snappy{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown compression %q", name)
	}
}

// Gzip compresses with klauspost/compress/gzip.
type Gzip struct{}

func (Gzip) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Gzip) Decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// Zstd compresses with klauspost/compress/zstd. The encoder and decoder are
// safe for concurrent use through EncodeAll/DecodeAll.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd returns a Zstd compressor with default settings.
func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (z *Zstd) Compress(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}

func (z *Zstd) Decompress(data []byte) ([]byte, error) {
	return z.dec.DecodeAll(data, nil)
}

// Snappy compresses with golang/snappy block format.
type Snappy struct{}

func (Snappy) Compress(data []byte) ([]byte, error) { return snappy.Encode(nil, data), nil }

func (Snappy) Decompress(data []byte) ([]byte, error) { return snappy.Decode(nil, data) }
