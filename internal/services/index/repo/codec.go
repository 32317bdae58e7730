package repo

import (
	"encoding/binary"
	"math"
)

// encodeVec packs a float32 slice little-endian, the wire format spec.md §4.4 names
func encodeVec(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVec unpacks a little-endian float32 blob; returns nil for an empty blob
func decodeVec(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
