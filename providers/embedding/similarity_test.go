package embedding

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomUnit(rng *rand.Rand, dims int) []float64 {
	v := make([]float64, dims)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	normalize(v)
	return v
}

func TestCosineSimilarityErrors(t *testing.T) {
	_, err := CosineSimilarity([]float64{}, []float64{})
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = CosineSimilarity(nil, []float64{1})
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosineSimilarityZeroMagnitude(t *testing.T) {
	sim, err := CosineSimilarity([]float64{0, 0, 0}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestCosineSimilarityKnownValues(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"orthogonal", []float64{1, 0, 0}, []float64{0, 1, 0}, 0},
		{"45 degrees", []float64{1, 0}, []float64{1, 1}, 1 / math.Sqrt2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, sim, 1e-12)
		})
	}
}

func TestCosineSimilarityHighDimensionalUnitVectors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 50; i++ {
		a := randomUnit(rng, 1536)
		b := randomUnit(rng, 1536)

		self, err := CosineSimilarity(a, a)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, self, 1e-10)

		sim, err := CosineSimilarity(a, b)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sim, -1.0)
		assert.LessOrEqual(t, sim, 1.0)
	}
}
