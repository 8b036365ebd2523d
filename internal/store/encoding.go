package store

import (
	"encoding/binary"
	"math"
	"strings"
)

// encodeVector packs a float32 embedding into a little-endian blob.
// Nil and empty vectors encode to nil so the column stays NULL.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// decodeVector unpacks a blob written by encodeVector. Blobs with a
// length that is not a multiple of 4 decode to nil (no similarity
// signal) rather than erroring.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// encodeList joins string lists for storage. Entries containing the
// separator are not expected (domain tags and file paths).
func encodeList(items []string) string {
	return strings.Join(items, "\x1f")
}

// decodeList splits a stored list. Empty storage decodes to nil.
func decodeList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x1f")
}
