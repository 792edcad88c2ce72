package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"prompt-guess-game/providers"
)

const openAIProvider = "openai-embeddings"

// OpenAIConfig configures the live embedding client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI calls an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	config     OpenAIConfig
	httpClient *http.Client
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAI creates a live embedding client.
func NewOpenAI(config OpenAIConfig) *OpenAI {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &OpenAI{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

func (c *OpenAI) Name() string { return openAIProvider }

func (c *OpenAI) Embed(ctx context.Context, text string) (Result, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Result{}, err
	}
	return Result{Vector: vectors[0], Dimensions: len(vectors[0])}, nil
}

func (c *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, providers.Transport(openAIProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, providers.FromResponse(openAIProvider, resp)
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &providers.APIError{Provider: openAIProvider, Kind: providers.KindServer, StatusCode: resp.StatusCode, Message: "undecodable response", Err: err}
	}
	if len(decoded.Data) != len(texts) {
		return nil, &providers.APIError{Provider: openAIProvider, Kind: providers.KindServer, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(decoded.Data))}
	}

	sort.Slice(decoded.Data, func(i, j int) bool { return decoded.Data[i].Index < decoded.Data[j].Index })
	vectors := make([][]float64, len(decoded.Data))
	for i, d := range decoded.Data {
		if len(d.Embedding) == 0 {
			return nil, &providers.APIError{Provider: openAIProvider, Kind: providers.KindServer, StatusCode: resp.StatusCode, Message: "empty embedding in response"}
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
