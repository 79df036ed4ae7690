package chunkstream

import (
	"fmt"
	"sync"

	"github.com/cjgriscom/lib3mf/internal/metrics"
)

const (
	DefaultMaxChunkSize    = 1 << 20 // 1 MiB of uncompressed payload
	DefaultMaxChunkEntries = 1024
)

// WriterOptions configures chunk sizing and compression.
type WriterOptions struct {
	Codec Codec

	// MaxChunkSize is the uncompressed payload size at which the current
	// chunk is sealed. A single larger array still gets a chunk of its own.
	MaxChunkSize int

	// MaxChunkEntries caps the number of arrays per chunk.
	MaxChunkEntries int
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.MaxChunkSize <= 0 || o.MaxChunkSize > MaxChunkDataSize {
		o.MaxChunkSize = DefaultMaxChunkSize
	}
	if o.MaxChunkEntries <= 0 {
		o.MaxChunkEntries = DefaultMaxChunkEntries
	}
	if o.MaxChunkEntries > MaxEntriesPerChunk {
		o.MaxChunkEntries = MaxEntriesPerChunk
	}
	return o
}

type pendingEntry struct {
	typ    EntryType
	pred   Prediction
	values []int32
}

type openChunk struct {
	entries []pendingEntry
	size    int
}

type sealedChunk struct {
	desc    ChunkDescriptor
	entries []EntryDescriptor
	props   []byte
	data    []byte
}

// Writer accumulates typed arrays into chunks and serializes them into a
// container. Nothing is written anywhere until Serialize is called.
type Writer struct {
	opts    WriterOptions
	chunks  []sealedChunk
	current *openChunk
	entries int

	out    []byte
	sealed bool

	mu sync.Mutex
}

// NewWriter returns an empty writer.
func NewWriter(opts WriterOptions) *Writer {
	return &Writer{opts: opts.withDefaults()}
}

// Codec returns the codec requested for new chunks.
func (w *Writer) Codec() Codec {
	return w.opts.Codec
}

// AddIntArray buffers an int32 array and returns the key that references it.
func (w *Writer) AddIntArray(values []int32, p Prediction) (uint32, error) {
	v := make([]int32, len(values))
	copy(v, values)
	return w.add(DataInt32, p, v)
}

// AddFloatArray buffers a float32 array and returns the key that references it.
func (w *Writer) AddFloatArray(values []float32, p Prediction) (uint32, error) {
	return w.add(DataFloat32, p, float32Bits(values))
}

func (w *Writer) add(dt DataType, p Prediction, values []int32) (uint32, error) {
	typ, err := MakeEntryType(dt, p)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sealed {
		return 0, ErrSealed
	}
	size := len(values) * 4
	if size > MaxChunkDataSize {
		return 0, fmt.Errorf("%w: array of %d bytes", ErrCapacityExceeded, size)
	}
	if w.entries >= MaxEntryCount {
		return 0, fmt.Errorf("%w: entry count", ErrCapacityExceeded)
	}

	if c := w.current; c != nil {
		full := len(c.entries) >= w.opts.MaxChunkEntries ||
			(len(c.entries) > 0 && c.size+size > w.opts.MaxChunkSize)
		if full {
			if err := w.sealCurrent(); err != nil {
				return 0, err
			}
		}
	}
	if w.current == nil {
		if len(w.chunks) >= MaxKeyChunks {
			return 0, fmt.Errorf("%w: chunk count", ErrCapacityExceeded)
		}
		w.current = &openChunk{}
	}

	c := w.current
	id := uint32(len(c.entries))
	c.entries = append(c.entries, pendingEntry{typ: typ, pred: p, values: values})
	c.size += size
	w.entries++
	return MakeKey(uint32(len(w.chunks)), id), nil
}

// sealCurrent applies prediction to every entry of the open chunk, compresses
// the concatenated payload and appends the result to the chunk list.
func (w *Writer) sealCurrent() error {
	c := w.current
	if c == nil {
		return nil
	}
	w.current = nil

	payload := make([]byte, 0, c.size)
	entries := make([]EntryDescriptor, len(c.entries))
	for i, e := range c.entries {
		entries[i] = EntryDescriptor{
			EntryID:         uint32(i),
			EntryType:       e.typ,
			PositionInChunk: uint32(len(payload)),
			SizeInBytes:     uint32(len(e.values) * 4),
		}
		payload = append(payload, encodeEntry(e.values, e.pred)...)
	}

	codec, props, data, err := compressPayload(w.opts.Codec, payload)
	if err != nil {
		return err
	}
	if uint64(len(props))+uint64(len(data)) > MaxChunkDataSize {
		return fmt.Errorf("%w: compressed chunk of %d bytes", ErrCapacityExceeded, len(props)+len(data))
	}

	desc := ChunkDescriptor{
		EntryCount:           uint32(len(entries)),
		CompressedDataSize:   uint32(len(data)),
		CompressedPropsSize:  uint32(len(props)),
		UncompressedDataSize: uint32(len(payload)),
		Checksum:             Checksum(payload),
	}
	desc.Reserved[0] = uint32(codec)

	w.chunks = append(w.chunks, sealedChunk{desc: desc, entries: entries, props: props, data: data})
	metrics.RecordChunkSealed(codec.String(), len(payload), len(props)+len(data))
	return nil
}

// Serialize seals the open chunk and returns the finished container. Calling
// it again returns the same bytes; adding arrays afterwards fails with
// ErrSealed.
func (w *Writer) Serialize() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sealed {
		out := make([]byte, len(w.out))
		copy(out, w.out)
		return out, nil
	}
	if err := w.sealCurrent(); err != nil {
		return nil, err
	}

	// Layout: header, chunk table, then per chunk its entry table followed by
	// the properties and compressed data.
	size := uint64(HeaderSize) + uint64(len(w.chunks))*ChunkDescriptorSize
	for i := range w.chunks {
		c := &w.chunks[i]
		c.desc.EntryTableStart = size
		size += uint64(len(c.entries)) * EntryDescriptorSize
		c.desc.CompressedDataStart = size
		size += c.desc.blobSize()
	}
	if size > uint64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: container of %d bytes", ErrCapacityExceeded, size)
	}

	out := make([]byte, size)
	hdr := Header{
		Signature:       Signature,
		Version:         Version,
		ChunkCount:      uint32(len(w.chunks)),
		ChunkTableStart: HeaderSize,
	}
	if !encodeHeader(out, &hdr) {
		return nil, fmt.Errorf("chunkstream: header encode failed")
	}
	for i := range w.chunks {
		c := &w.chunks[i]
		if !encodeChunk(out[HeaderSize+i*ChunkDescriptorSize:], &c.desc) {
			return nil, fmt.Errorf("chunkstream: chunk %d encode failed", i)
		}
		off := int(c.desc.EntryTableStart)
		for j := range c.entries {
			if !encodeEntryDescriptor(out[off+j*EntryDescriptorSize:], &c.entries[j]) {
				return nil, fmt.Errorf("chunkstream: entry %d/%d encode failed", i, j)
			}
		}
		off = int(c.desc.CompressedDataStart)
		off += copy(out[off:], c.props)
		copy(out[off:], c.data)
		c.props, c.data = nil, nil
	}

	w.out = out
	w.sealed = true
	ret := make([]byte, len(out))
	copy(ret, out)
	return ret, nil
}

// Sealed reports whether Serialize has been called.
func (w *Writer) Sealed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sealed
}
