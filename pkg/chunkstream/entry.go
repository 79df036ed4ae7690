package chunkstream

import "fmt"

// EntryType is the on-disk type code of an entry.
type EntryType uint32

const (
	EntryInt32None    EntryType = 1
	EntryInt32Delta   EntryType = 2
	EntryFloat32None  EntryType = 3
	EntryFloat32Delta EntryType = 4
)

// DataType is the element type of an entry array.
type DataType uint8

const (
	DataUnknown DataType = iota
	DataInt32
	DataFloat32
)

func (d DataType) String() string {
	switch d {
	case DataInt32:
		return "int32"
	case DataFloat32:
		return "float32"
	default:
		return "unknown"
	}
}

// Prediction selects how an array is transformed before compression.
type Prediction uint8

const (
	PredictNone Prediction = iota
	PredictDelta
)

func (p Prediction) String() string {
	if p == PredictDelta {
		return "delta"
	}
	return "none"
}

// MakeEntryType combines a data type and a prediction mode into a type code.
func MakeEntryType(dt DataType, p Prediction) (EntryType, error) {
	switch {
	case dt == DataInt32 && p == PredictNone:
		return EntryInt32None, nil
	case dt == DataInt32 && p == PredictDelta:
		return EntryInt32Delta, nil
	case dt == DataFloat32 && p == PredictNone:
		return EntryFloat32None, nil
	case dt == DataFloat32 && p == PredictDelta:
		return EntryFloat32Delta, nil
	}
	return 0, fmt.Errorf("%w: data type %s, prediction %d", ErrInvalidEntryType, dt, p)
}

// Split returns the data type and prediction mode of a type code.
func (t EntryType) Split() (DataType, Prediction, error) {
	switch t {
	case EntryInt32None:
		return DataInt32, PredictNone, nil
	case EntryInt32Delta:
		return DataInt32, PredictDelta, nil
	case EntryFloat32None:
		return DataFloat32, PredictNone, nil
	case EntryFloat32Delta:
		return DataFloat32, PredictDelta, nil
	}
	return DataUnknown, PredictNone, fmt.Errorf("%w: %d", ErrInvalidEntryType, uint32(t))
}

func (t EntryType) String() string {
	dt, p, err := t.Split()
	if err != nil {
		return fmt.Sprintf("EntryType(%d)", uint32(t))
	}
	return dt.String() + "/" + p.String()
}

// Key layout: the chunk index occupies the high bits, the local entry id the
// low 16 bits. Keys stay within [0, MaxKey].
const (
	keyEntryBits = 16

	// MaxEntriesPerChunk is the number of local entry ids a key can address.
	MaxEntriesPerChunk = 1 << keyEntryBits

	// MaxKey is the largest key the XML surface accepts (2^31-1).
	MaxKey = 1<<31 - 1

	// MaxKeyChunks is the number of chunks addressable by a key.
	MaxKeyChunks = (MaxKey + 1) >> keyEntryBits
)

// MakeKey encodes a chunk index and local entry id into a key.
func MakeKey(chunk, entry uint32) uint32 {
	return chunk<<keyEntryBits | entry&(MaxEntriesPerChunk-1)
}

// SplitKey decodes a key into chunk index and local entry id.
func SplitKey(key uint32) (chunk, entry uint32) {
	return key >> keyEntryBits, key & (MaxEntriesPerChunk - 1)
}
