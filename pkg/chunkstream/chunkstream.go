// Package chunkstream implements the chunked binary stream container that
// carries large numeric arrays next to toolpath layer XML.
//
// A container is a fixed header, a chunk table, one entry table per chunk and
// the compressed chunk payloads. Chunks are compressed and checksummed on
// their own; the entries inside a chunk are typed int32 or float32 arrays that
// are addressed from XML by a single integer key.
package chunkstream

import "encoding/binary"

// Container global constants must never change.
const (
	// Signature is the little-endian magic at offset 0 ("3MFZ").
	Signature uint32 = 0x5A464D33

	// Version is the only container version this package reads and writes.
	Version uint32 = 1

	// Hard capacity limits. Exceeding any of them is a format error.
	MaxChunkCount    = 1 << 30
	MaxEntryCount    = 1 << 30
	MaxChunkDataSize = 1 << 30
)

const (
	headerReservedWords = 8
	chunkReservedWords  = 2

	// HeaderSize is the packed on-disk size of Header.
	HeaderSize = 4 + 4 + 4 + 8 + 4*headerReservedWords

	// ChunkDescriptorSize is the packed on-disk size of ChunkDescriptor.
	ChunkDescriptorSize = 4 + 8 + 8 + 4 + 4 + 4 + 16 + 4*chunkReservedWords

	// EntryDescriptorSize is the packed on-disk size of EntryDescriptor.
	EntryDescriptorSize = 4 + 4 + 4 + 4
)

// Header is the fixed container header.
type Header struct {
	Signature       uint32
	Version         uint32
	ChunkCount      uint32
	ChunkTableStart uint64
	Reserved        [headerReservedWords]uint32
}

// Valid reports whether the header carries the container signature.
func (h *Header) Valid() bool {
	return h.Signature == Signature
}

// Compatible reports whether the header version can be decoded.
func (h *Header) Compatible() bool {
	return h.Version == Version
}

// ChunkDescriptor is one row of the chunk table. Offsets are absolute from the
// start of the container.
type ChunkDescriptor struct {
	EntryCount           uint32
	EntryTableStart      uint64
	CompressedDataStart  uint64
	CompressedDataSize   uint32
	CompressedPropsSize  uint32
	UncompressedDataSize uint32
	Checksum             [16]byte // MD5 of the decompressed payload
	Reserved             [chunkReservedWords]uint32
}

// Codec returns the compression codec of the chunk. It lives in the first
// reserved word so containers with zeroed reserved words decode as LZMA.
func (c *ChunkDescriptor) Codec() Codec {
	return Codec(c.Reserved[0])
}

// blobSize is the number of bytes occupied by properties and compressed data.
func (c *ChunkDescriptor) blobSize() uint64 {
	return uint64(c.CompressedPropsSize) + uint64(c.CompressedDataSize)
}

// EntryDescriptor is one row of a chunk's entry table. PositionInChunk is
// relative to the decompressed chunk payload.
type EntryDescriptor struct {
	EntryID         uint32
	EntryType       EntryType
	PositionInChunk uint32
	SizeInBytes     uint32
}

// Len returns the number of array elements described by the entry.
func (e *EntryDescriptor) Len() int {
	return int(e.SizeInBytes / 4)
}

func encodeHeader(b []byte, h *Header) bool {
	if len(b) < HeaderSize {
		return false
	}
	le := binary.LittleEndian
	le.PutUint32(b[0:], h.Signature)
	le.PutUint32(b[4:], h.Version)
	le.PutUint32(b[8:], h.ChunkCount)
	le.PutUint64(b[12:], h.ChunkTableStart)
	for i, r := range h.Reserved {
		le.PutUint32(b[20+i*4:], r)
	}
	return true
}

func decodeHeader(b []byte) (Header, bool) {
	var h Header
	if len(b) < HeaderSize {
		return h, false
	}
	le := binary.LittleEndian
	h.Signature = le.Uint32(b[0:])
	h.Version = le.Uint32(b[4:])
	h.ChunkCount = le.Uint32(b[8:])
	h.ChunkTableStart = le.Uint64(b[12:])
	for i := range h.Reserved {
		h.Reserved[i] = le.Uint32(b[20+i*4:])
	}
	return h, true
}

func encodeChunk(b []byte, c *ChunkDescriptor) bool {
	if len(b) < ChunkDescriptorSize {
		return false
	}
	le := binary.LittleEndian
	le.PutUint32(b[0:], c.EntryCount)
	le.PutUint64(b[4:], c.EntryTableStart)
	le.PutUint64(b[12:], c.CompressedDataStart)
	le.PutUint32(b[20:], c.CompressedDataSize)
	le.PutUint32(b[24:], c.CompressedPropsSize)
	le.PutUint32(b[28:], c.UncompressedDataSize)
	copy(b[32:48], c.Checksum[:])
	for i, r := range c.Reserved {
		le.PutUint32(b[48+i*4:], r)
	}
	return true
}

func decodeChunk(b []byte) (ChunkDescriptor, bool) {
	var c ChunkDescriptor
	if len(b) < ChunkDescriptorSize {
		return c, false
	}
	le := binary.LittleEndian
	c.EntryCount = le.Uint32(b[0:])
	c.EntryTableStart = le.Uint64(b[4:])
	c.CompressedDataStart = le.Uint64(b[12:])
	c.CompressedDataSize = le.Uint32(b[20:])
	c.CompressedPropsSize = le.Uint32(b[24:])
	c.UncompressedDataSize = le.Uint32(b[28:])
	copy(c.Checksum[:], b[32:48])
	for i := range c.Reserved {
		c.Reserved[i] = le.Uint32(b[48+i*4:])
	}
	return c, true
}

func encodeEntryDescriptor(b []byte, e *EntryDescriptor) bool {
	if len(b) < EntryDescriptorSize {
		return false
	}
	le := binary.LittleEndian
	le.PutUint32(b[0:], e.EntryID)
	le.PutUint32(b[4:], uint32(e.EntryType))
	le.PutUint32(b[8:], e.PositionInChunk)
	le.PutUint32(b[12:], e.SizeInBytes)
	return true
}

func decodeEntryDescriptor(b []byte) (EntryDescriptor, bool) {
	var e EntryDescriptor
	if len(b) < EntryDescriptorSize {
		return e, false
	}
	le := binary.LittleEndian
	e.EntryID = le.Uint32(b[0:])
	e.EntryType = EntryType(le.Uint32(b[4:]))
	e.PositionInChunk = le.Uint32(b[8:])
	e.SizeInBytes = le.Uint32(b[12:])
	return e, true
}
