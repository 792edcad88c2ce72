// Package imagegen turns prompts into images.
package imagegen

import (
	"context"
	"fmt"

	"prompt-guess-game/config"
)

// Options are optional generation hints.
type Options struct {
	// Quality is passed through to providers that support it ("standard", "hd").
	Quality string
	Size    string
}

// Result carries exactly one of ImageURL or ImageBytes.
type Result struct {
	ImageURL    string
	ImageBytes  []byte
	ContentType string
	// Ephemeral marks provider URLs that expire and must be re-hosted before storing.
	Ephemeral bool
	Metadata  map[string]string
}

// Provider generates one image per prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts *Options) (*Result, error)
	Name() string
}

// New resolves the configured provider kind into a concrete provider.
func New(kind config.ImageProviderKind, openai config.OpenAIConfig) (Provider, error) {
	switch kind {
	case config.ImageMock:
		return NewPlaceholder(""), nil
	case config.ImageOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:  openai.APIKey,
			BaseURL: openai.BaseURL,
			Model:   openai.ImageModel,
			Quality: openai.ImageQuality,
		}), nil
	}
	return nil, fmt.Errorf("unsupported image provider %q", kind)
}
