package chunkstream

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cjgriscom/lib3mf/internal/metrics"
)

const DefaultCacheChunks = 16

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// CacheChunks is the number of decompressed chunks kept in memory.
	CacheChunks int
}

type chunkInfo struct {
	desc    ChunkDescriptor
	entries []EntryDescriptor
	index   map[uint32]int
}

// Reader is an opened container. Structure is validated by Open; chunk
// payloads are decompressed and verified on first use.
type Reader struct {
	data   []byte
	header Header
	chunks []chunkInfo
	cache  *lru.Cache[int, []byte]
}

// Array is a decoded entry.
type Array struct {
	Type   DataType
	Ints   []int32
	Floats []float32
}

// Len returns the number of elements in the array.
func (a Array) Len() int {
	if a.Type == DataFloat32 {
		return len(a.Floats)
	}
	return len(a.Ints)
}

// Open validates a container held in data. The reader keeps a reference to
// data; callers must not modify it while the reader is in use.
func Open(data []byte, opts ReaderOptions) (*Reader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptContainer, len(data))
	}
	hdr, ok := decodeHeader(data[:HeaderSize])
	if !ok {
		return nil, ErrCorruptContainer
	}
	if !hdr.Valid() {
		return nil, ErrInvalidSignature
	}
	if !hdr.Compatible() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr.Version)
	}
	if hdr.ChunkCount > MaxChunkCount {
		return nil, fmt.Errorf("%w: %d chunks", ErrCapacityExceeded, hdr.ChunkCount)
	}

	size := uint64(len(data))
	tableStart := hdr.ChunkTableStart
	tableEnd := tableStart + uint64(hdr.ChunkCount)*ChunkDescriptorSize
	if tableStart < HeaderSize || tableEnd < tableStart || tableEnd > size {
		return nil, fmt.Errorf("%w: chunk table out of bounds", ErrCorruptContainer)
	}

	chunks := make([]chunkInfo, hdr.ChunkCount)
	total := uint64(0)
	for i := range chunks {
		start := int(tableStart) + i*ChunkDescriptorSize
		desc, ok := decodeChunk(data[start : start+ChunkDescriptorSize])
		if !ok {
			return nil, ErrCorruptContainer
		}
		info, err := parseChunk(data, i, desc)
		if err != nil {
			return nil, err
		}
		total += uint64(desc.EntryCount)
		if total > MaxEntryCount {
			return nil, fmt.Errorf("%w: %d entries", ErrCapacityExceeded, total)
		}
		chunks[i] = info
	}

	n := opts.CacheChunks
	if n <= 0 {
		n = DefaultCacheChunks
	}
	cache, err := lru.New[int, []byte](n)
	if err != nil {
		return nil, err
	}

	return &Reader{data: data, header: hdr, chunks: chunks, cache: cache}, nil
}

func parseChunk(data []byte, i int, desc ChunkDescriptor) (chunkInfo, error) {
	size := uint64(len(data))
	if desc.EntryCount > MaxEntryCount {
		return chunkInfo{}, fmt.Errorf("%w: chunk %d declares %d entries", ErrCapacityExceeded, i, desc.EntryCount)
	}
	if desc.UncompressedDataSize > MaxChunkDataSize || desc.blobSize() > MaxChunkDataSize {
		return chunkInfo{}, fmt.Errorf("%w: chunk %d data size", ErrCapacityExceeded, i)
	}
	switch desc.Codec() {
	case CodecLZMA, CodecNone, CodecZstd, CodecLZ4:
	default:
		return chunkInfo{}, fmt.Errorf("%w: chunk %d codec %d", ErrUnsupportedCodec, i, desc.Reserved[0])
	}

	tableStart := desc.EntryTableStart
	tableEnd := tableStart + uint64(desc.EntryCount)*EntryDescriptorSize
	if tableStart < HeaderSize || tableEnd < tableStart || tableEnd > size {
		return chunkInfo{}, fmt.Errorf("%w: chunk %d entry table out of bounds", ErrCorruptContainer, i)
	}
	blobEnd := desc.CompressedDataStart + desc.blobSize()
	if desc.CompressedDataStart < HeaderSize || blobEnd < desc.CompressedDataStart || blobEnd > size {
		return chunkInfo{}, fmt.Errorf("%w: chunk %d data out of bounds", ErrCorruptContainer, i)
	}

	info := chunkInfo{
		desc:    desc,
		entries: make([]EntryDescriptor, desc.EntryCount),
		index:   make(map[uint32]int, desc.EntryCount),
	}
	for j := range info.entries {
		off := int(tableStart) + j*EntryDescriptorSize
		e, ok := decodeEntryDescriptor(data[off : off+EntryDescriptorSize])
		if !ok {
			return chunkInfo{}, ErrCorruptContainer
		}
		if _, _, err := e.EntryType.Split(); err != nil {
			return chunkInfo{}, fmt.Errorf("chunk %d entry %d: %w", i, e.EntryID, err)
		}
		if e.SizeInBytes%4 != 0 {
			return chunkInfo{}, fmt.Errorf("%w: chunk %d entry %d size %d is not a multiple of 4", ErrCorruptContainer, i, e.EntryID, e.SizeInBytes)
		}
		end := uint64(e.PositionInChunk) + uint64(e.SizeInBytes)
		if end > uint64(desc.UncompressedDataSize) {
			return chunkInfo{}, fmt.Errorf("%w: chunk %d entry %d exceeds chunk payload", ErrCorruptContainer, i, e.EntryID)
		}
		if _, dup := info.index[e.EntryID]; dup {
			return chunkInfo{}, fmt.Errorf("%w: chunk %d duplicate entry id %d", ErrCorruptContainer, i, e.EntryID)
		}
		info.index[e.EntryID] = j
		info.entries[j] = e
	}
	return info, nil
}

// Header returns the container header.
func (r *Reader) Header() Header {
	return r.header
}

// ChunkCount returns the number of chunks in the container.
func (r *Reader) ChunkCount() int {
	return len(r.chunks)
}

// Chunk returns the descriptor and entry table of chunk i.
func (r *Reader) Chunk(i int) (ChunkDescriptor, []EntryDescriptor, error) {
	if i < 0 || i >= len(r.chunks) {
		return ChunkDescriptor{}, nil, fmt.Errorf("%w: chunk %d", ErrUnknownKey, i)
	}
	c := &r.chunks[i]
	entries := make([]EntryDescriptor, len(c.entries))
	copy(entries, c.entries)
	return c.desc, entries, nil
}

// Entry returns the descriptor addressed by key.
func (r *Reader) Entry(key uint32) (EntryDescriptor, error) {
	_, e, err := r.lookup(key)
	if err != nil {
		return EntryDescriptor{}, err
	}
	return *e, nil
}

func (r *Reader) lookup(key uint32) (int, *EntryDescriptor, error) {
	ci, id := SplitKey(key)
	if int(ci) >= len(r.chunks) {
		return 0, nil, fmt.Errorf("%w: %d", ErrUnknownKey, key)
	}
	c := &r.chunks[ci]
	j, ok := c.index[id]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %d", ErrUnknownKey, key)
	}
	return int(ci), &c.entries[j], nil
}

// payload returns the verified decompressed bytes of chunk i.
func (r *Reader) payload(i int) ([]byte, error) {
	if p, ok := r.cache.Get(i); ok {
		return p, nil
	}
	c := &r.chunks[i]
	start := c.desc.CompressedDataStart
	mid := start + uint64(c.desc.CompressedPropsSize)
	end := mid + uint64(c.desc.CompressedDataSize)

	p, err := decompressPayload(c.desc.Codec(), r.data[start:mid], r.data[mid:end], int(c.desc.UncompressedDataSize))
	if err == nil && Checksum(p) != c.desc.Checksum {
		err = fmt.Errorf("%w: chunk %d", ErrChecksumMismatch, i)
	}
	metrics.RecordChunkDecode(err)
	if err != nil {
		return nil, err
	}
	r.cache.Add(i, p)
	return p, nil
}

// DecodeArray decodes the entry addressed by key, reversing its prediction.
func (r *Reader) DecodeArray(key uint32) (Array, error) {
	ci, e, err := r.lookup(key)
	if err != nil {
		return Array{}, err
	}
	dt, pred, err := e.EntryType.Split()
	if err != nil {
		return Array{}, err
	}
	p, err := r.payload(ci)
	if err != nil {
		return Array{}, err
	}
	raw := decodeEntry(p[e.PositionInChunk:e.PositionInChunk+e.SizeInBytes], pred)
	if dt == DataFloat32 {
		return Array{Type: DataFloat32, Floats: bitsFloat32(raw)}, nil
	}
	return Array{Type: DataInt32, Ints: raw}, nil
}

// DecodeInt32s decodes an int32 entry.
func (r *Reader) DecodeInt32s(key uint32) ([]int32, error) {
	a, err := r.DecodeArray(key)
	if err != nil {
		return nil, err
	}
	if a.Type != DataInt32 {
		return nil, fmt.Errorf("%w: key %d holds %s", ErrTypeMismatch, key, a.Type)
	}
	return a.Ints, nil
}

// DecodeFloat32s decodes a float32 entry.
func (r *Reader) DecodeFloat32s(key uint32) ([]float32, error) {
	a, err := r.DecodeArray(key)
	if err != nil {
		return nil, err
	}
	if a.Type != DataFloat32 {
		return nil, fmt.Errorf("%w: key %d holds %s", ErrTypeMismatch, key, a.Type)
	}
	return a.Floats, nil
}

// Verify decompresses every chunk and checks its checksum.
func (r *Reader) Verify() error {
	for i := range r.chunks {
		if _, err := r.payload(i); err != nil {
			return err
		}
	}
	return nil
}
