package rag

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Normalize returns a unit-length copy of v. A zero vector is returned as a
// zero-valued copy so it scores 0 against everything.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// Dot returns the inner product of two equal-length vectors. On
// L2-normalised inputs this is the cosine similarity.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Similarity maps a cosine score into the [0, 1] similarity range used by
// every index backend. Negative cosines clamp to 0.
func Similarity(cosine float64) float64 {
	switch {
	case math.IsNaN(cosine), cosine <= 0:
		return 0
	case cosine >= 1:
		return 1
	default:
		return cosine
	}
}

// EncodeVector serialises v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("rag: vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
