package chunkstream

import (
	"encoding/binary"
	"math"
)

// Delta prediction stores a[0] followed by a[i]-a[i-1]. Arithmetic wraps in
// int32 so every input round-trips exactly. Float arrays are predicted on
// their IEEE-754 bit patterns.

func deltaEncode(v []int32) {
	prev := int32(0)
	for i, x := range v {
		v[i] = x - prev
		prev = x
	}
}

func deltaDecode(v []int32) {
	acc := int32(0)
	for i, d := range v {
		acc += d
		v[i] = acc
	}
}

func putInt32s(dst []byte, v []int32) {
	for i, x := range v {
		binary.LittleEndian.PutUint32(dst[i*4:], uint32(x))
	}
}

func getInt32s(src []byte) []int32 {
	out := make([]int32, len(src)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return out
}

func float32Bits(v []float32) []int32 {
	out := make([]int32, len(v))
	for i, x := range v {
		out[i] = int32(math.Float32bits(x))
	}
	return out
}

func bitsFloat32(v []int32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = math.Float32frombits(uint32(x))
	}
	return out
}

// encodeEntry renders raw entry values as predicted little-endian bytes.
func encodeEntry(raw []int32, p Prediction) []byte {
	v := raw
	if p == PredictDelta {
		v = make([]int32, len(raw))
		copy(v, raw)
		deltaEncode(v)
	}
	out := make([]byte, len(v)*4)
	putInt32s(out, v)
	return out
}

// decodeEntry reverses encodeEntry.
func decodeEntry(b []byte, p Prediction) []int32 {
	v := getInt32s(b)
	if p == PredictDelta {
		deltaDecode(v)
	}
	return v
}
