// Package embedding turns text into fixed-dimension vectors and compares them.
package embedding

import (
	"context"
	"fmt"
)

// Result is one embedded text.
type Result struct {
	Vector     []float64
	Dimensions int
}

// Provider embeds a single text.
type Provider interface {
	Embed(ctx context.Context, text string) (Result, error)
	Name() string
}

// BatchProvider is implemented by providers that can embed many texts in one call.
type BatchProvider interface {
	Provider
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedAll embeds texts in order, using EmbedBatch when the provider supports it.
func EmbedAll(ctx context.Context, p Provider, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if bp, ok := p.(BatchProvider); ok {
		vectors, err := bp.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("%s returned %d vectors for %d texts", p.Name(), len(vectors), len(texts))
		}
		return vectors, nil
	}

	vectors := make([][]float64, 0, len(texts))
	for _, text := range texts {
		res, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, res.Vector)
	}
	return vectors, nil
}
