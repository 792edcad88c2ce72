package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"prompt-guess-game/providers"
)

const openAIProvider = "openai-images"

// OpenAIConfig configures the live image client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Quality string
	Size    string
	Timeout time.Duration
}

// OpenAI calls an OpenAI-compatible /images/generations endpoint.
type OpenAI struct {
	config     OpenAIConfig
	httpClient *http.Client
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func NewOpenAI(config OpenAIConfig) *OpenAI {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "dall-e-3"
	}
	if config.Size == "" {
		config.Size = "1024x1024"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &OpenAI{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

func (c *OpenAI) Name() string { return openAIProvider }

func (c *OpenAI) Generate(ctx context.Context, prompt string, opts *Options) (*Result, error) {
	reqBody := imageRequest{
		Model:          c.config.Model,
		Prompt:         prompt,
		N:              1,
		Size:           c.config.Size,
		Quality:        c.config.Quality,
		ResponseFormat: "b64_json",
	}
	if opts != nil {
		if opts.Quality != "" {
			reqBody.Quality = opts.Quality
		}
		if opts.Size != "" {
			reqBody.Size = opts.Size
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
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

	var decoded imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &providers.APIError{Provider: openAIProvider, Kind: providers.KindServer, StatusCode: resp.StatusCode, Message: "undecodable response", Err: err}
	}
	if len(decoded.Data) == 0 {
		return nil, &providers.APIError{Provider: openAIProvider, Kind: providers.KindServer, StatusCode: resp.StatusCode, Message: "no image in response"}
	}

	item := decoded.Data[0]
	result := &Result{
		Metadata: map[string]string{
			"provider": c.Name(),
			"model":    reqBody.Model,
			"quality":  reqBody.Quality,
		},
	}
	if item.RevisedPrompt != "" {
		result.Metadata["revised_prompt"] = item.RevisedPrompt
	}

	switch {
	case item.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, &providers.APIError{Provider: openAIProvider, Kind: providers.KindServer, StatusCode: resp.StatusCode, Message: "invalid base64 image", Err: err}
		}
		result.ImageBytes = data
		result.ContentType = "image/png"
	case item.URL != "":
		result.ImageURL = item.URL
		result.Ephemeral = true
	default:
		return nil, &providers.APIError{Provider: openAIProvider, Kind: providers.KindServer, StatusCode: resp.StatusCode, Message: "image entry has neither data nor url"}
	}

	return result, nil
}
