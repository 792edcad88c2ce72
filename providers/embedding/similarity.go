package embedding

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyVector       = errors.New("empty vector")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// CosineSimilarity returns dot(a,b) / (|a||b|), in [-1, 1].
// Zero-magnitude input yields 0 rather than an error.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push identical vectors a hair past the bounds.
	return math.Max(-1, math.Min(1, sim)), nil
}

// normalize applies L2 normalization in place and reports whether the vector was non-zero.
func normalize(vec []float64) bool {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return false
	}

	norm := math.Sqrt(sumSquares)
	for i := range vec {
		vec[i] /= norm
	}
	return true
}
