package embedding

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"prompt-guess-game/utils"
)

const (
	// DefaultDimensions is the vector size of the deterministic provider.
	DefaultDimensions = 128
	// tokenSpread is how many dimensions a single token writes to.
	tokenSpread = 16
	// orderWeight scales the whole-text perturbation that makes word order matter a little.
	orderWeight = 0.1
)

// Deterministic is an offline embedding provider. Equal normalized text gives
// bit-identical vectors; texts sharing tokens share vector components and so
// score higher than unrelated texts.
type Deterministic struct {
	dims int
}

// NewDeterministic creates a deterministic provider; dims <= 0 selects DefaultDimensions.
func NewDeterministic(dims int) *Deterministic {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	if dims < tokenSpread {
		dims = tokenSpread
	}
	return &Deterministic{dims: dims}
}

func (d *Deterministic) Name() string { return "deterministic" }

func (d *Deterministic) Embed(_ context.Context, text string) (Result, error) {
	return Result{Vector: d.vector(text), Dimensions: d.dims}, nil
}

func (d *Deterministic) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vectors[i] = d.vector(text)
	}
	return vectors, nil
}

func (d *Deterministic) vector(text string) []float64 {
	normalized := utils.NormalizeText(text)
	vec := make([]float64, d.dims)

	for _, token := range strings.Fields(normalized) {
		rng := seededRand("token:" + token)
		for i := 0; i < tokenSpread; i++ {
			idx := rng.IntN(d.dims)
			vec[idx] += rng.Float64()*2 - 1
		}
	}

	rng := seededRand("text:" + normalized)
	for i := range vec {
		vec[i] += orderWeight * (rng.Float64()*2 - 1)
	}

	if normalize(vec) {
		return vec
	}

	// Degenerate sum; fall back to a unit vector that is still a pure function of the text.
	rng = seededRand("fallback:" + normalized)
	for {
		for i := range vec {
			vec[i] = rng.NormFloat64()
		}
		if normalize(vec) {
			return vec
		}
	}
}

func seededRand(key string) *rand.Rand {
	return rand.New(rand.NewPCG(hash64(key), hash64("salt:"+key)))
}

func hash64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
