package embedding

import (
	"fmt"

	"prompt-guess-game/config"
)

// New resolves the configured provider kind into a concrete provider.
func New(kind config.EmbeddingProviderKind, openai config.OpenAIConfig) (Provider, error) {
	switch kind {
	case config.EmbeddingMock:
		return NewDeterministic(DefaultDimensions), nil
	case config.EmbeddingOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:  openai.APIKey,
			BaseURL: openai.BaseURL,
			Model:   openai.EmbeddingModel,
		}), nil
	}
	return nil, fmt.Errorf("unsupported embedding provider %q", kind)
}
