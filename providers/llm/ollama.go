// Package llm is a small client for a local Ollama server, used to rewrite
// templated prompts into more natural image descriptions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"prompt-guess-game/providers"
)

const providerName = "ollama"

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	// BaseURL is the Ollama API endpoint.
	BaseURL string

	// Model is the model name to use.
	Model string

	// InferenceTimeout bounds a single generation request.
	InferenceTimeout time.Duration

	// Temperature for sampling; 0 uses the model default.
	Temperature float64

	// MaxTokens caps the generated length.
	MaxTokens int
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() *OllamaConfig {
	return &OllamaConfig{
		BaseURL:          "http://localhost:11434",
		Model:            "qwen3:8b",
		InferenceTimeout: 60 * time.Second,
		Temperature:      0.8,
		MaxTokens:        120,
	}
}

// OllamaClient provides access to the Ollama generate API.
type OllamaClient struct {
	config     *OllamaConfig
	httpClient *http.Client
}

// GenerateRequest is the request body for generation.
type GenerateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	System  string           `json:"system,omitempty"`
	Options *GenerateOptions `json:"options,omitempty"`
}

// GenerateOptions are optional parameters for generation.
type GenerateOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// GenerateResponse is the response from generation.
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(config *OllamaConfig) *OllamaClient {
	defaults := DefaultOllamaConfig()
	if config == nil {
		config = defaults
	}
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.InferenceTimeout == 0 {
		config.InferenceTimeout = defaults.InferenceTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &OllamaClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.InferenceTimeout,
		},
	}
}

// Generate runs a single non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, prompt, system string) (string, error) {
	reqBody := GenerateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
		System: system,
		Options: &GenerateOptions{
			Temperature: c.config.Temperature,
			NumPredict:  c.config.MaxTokens,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", providers.Transport(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", providers.FromResponse(providerName, resp)
	}

	var genResp GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return strings.TrimSpace(genResp.Response), nil
}
