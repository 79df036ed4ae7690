package chunkstream

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// Codec identifies the compression applied to a chunk payload. The value is
// stored in the first reserved word of the chunk descriptor.
type Codec uint32

const (
	// CodecLZMA is classic LZMA. The 13-byte LZMA header is stored as the
	// chunk's compressed properties.
	CodecLZMA Codec = 0
	CodecNone Codec = 1
	CodecZstd Codec = 2
	CodecLZ4  Codec = 3
)

func (c Codec) String() string {
	switch c {
	case CodecLZMA:
		return "lzma"
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(c))
	}
}

// ParseCodec parses a codec name as accepted on the command line.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "lzma", "":
		return CodecLZMA, nil
	case "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
}

// Checksum is the digest stored in every chunk descriptor. It is computed
// over the decompressed payload regardless of codec.
func Checksum(payload []byte) [16]byte {
	return md5.Sum(payload)
}

var errIncompressible = errors.New("chunkstream: payload incompressible")

const lzmaMaxWriterDict = 8 << 20

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("chunkstream: zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxChunkDataSize))
	if err != nil {
		panic("chunkstream: zstd decoder: " + err.Error())
	}
}

// compressPayload compresses a sealed chunk payload. It returns the codec that
// was actually used, which falls back to CodecNone when compression does not
// pay off, along with the properties and data blobs.
func compressPayload(codec Codec, payload []byte) (Codec, []byte, []byte, error) {
	if len(payload) == 0 {
		return CodecNone, nil, payload, nil
	}
	var (
		props, data []byte
		err         error
	)
	switch codec {
	case CodecNone:
		return CodecNone, nil, payload, nil
	case CodecLZMA:
		props, data, err = compressLZMA(payload)
	case CodecZstd:
		data, err = compressZstd(payload)
	case CodecLZ4:
		data, err = compressLZ4(payload)
	default:
		return 0, nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
	if errors.Is(err, errIncompressible) {
		return CodecNone, nil, payload, nil
	}
	if err != nil {
		return 0, nil, nil, err
	}
	return codec, props, data, nil
}

// decompressPayload reverses compressPayload. Every failure to reproduce
// exactly size bytes is reported as a checksum mismatch.
func decompressPayload(codec Codec, props, data []byte, size int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch codec {
	case CodecNone:
		if len(props) != 0 || len(data) != size {
			return nil, fmt.Errorf("%w: stored size %d, expected %d", ErrChecksumMismatch, len(data), size)
		}
		out = make([]byte, size)
		copy(out, data)
		return out, nil
	case CodecLZMA:
		out, err = decompressLZMA(props, data, size)
	case CodecZstd:
		out, err = decompressZstd(data, size)
	case CodecLZ4:
		out, err = decompressLZ4(data, size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrChecksumMismatch, codec, err)
	}
	return out, nil
}

func lzmaDictCap(n int) int {
	c := lzma.MinDictCap
	for c < n && c < lzmaMaxWriterDict {
		c <<= 1
	}
	return c
}

// compressLZMA returns the classic LZMA header as properties and the raw
// LZMA stream as data.
func compressLZMA(payload []byte) ([]byte, []byte, error) {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{
		DictCap:      lzmaDictCap(len(payload)),
		SizeInHeader: true,
		Size:         int64(len(payload)),
	}
	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, nil, fmt.Errorf("lzma compress: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, nil, fmt.Errorf("lzma compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, nil, fmt.Errorf("lzma compress: %w", err)
	}
	out := buf.Bytes()
	if len(out) < lzma.HeaderLen {
		return nil, nil, fmt.Errorf("lzma compress: short stream (%d bytes)", len(out))
	}
	return out[:lzma.HeaderLen], out[lzma.HeaderLen:], nil
}

func decompressLZMA(props, data []byte, size int) ([]byte, error) {
	if len(props) != lzma.HeaderLen {
		return nil, fmt.Errorf("lzma properties: %d bytes, expected %d", len(props), lzma.HeaderLen)
	}
	if dict := binary.LittleEndian.Uint32(props[1:5]); dict > MaxChunkDataSize {
		return nil, fmt.Errorf("lzma dictionary size %d exceeds limit", dict)
	}
	if n := binary.LittleEndian.Uint64(props[5:13]); n != uint64(size) {
		return nil, fmt.Errorf("lzma stream size %d, expected %d", n, size)
	}
	stream := io.MultiReader(bytes.NewReader(props), bytes.NewReader(data))
	r, err := lzma.ReaderConfig{DictCap: MaxChunkDataSize}.NewReader(stream)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func compressZstd(payload []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(payload, nil)
	if len(out) >= len(payload) {
		return nil, errIncompressible
	}
	return out, nil
}

func decompressZstd(data []byte, size int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, err
	}
	if len(out) != size {
		return nil, fmt.Errorf("zstd: got %d bytes, expected %d", len(out), size)
	}
	return out, nil
}

func compressLZ4(payload []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(payload)))
	n, err := lz4.CompressBlock(payload, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(payload) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func decompressLZ4(data []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("lz4: got %d bytes, expected %d", n, size)
	}
	return out, nil
}
