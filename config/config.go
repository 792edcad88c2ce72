package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EmbeddingProviderKind selects the embedding backend.
type EmbeddingProviderKind string

const (
	EmbeddingMock   EmbeddingProviderKind = "mock"
	EmbeddingOpenAI EmbeddingProviderKind = "openai"
)

// ImageProviderKind selects the image generation backend.
type ImageProviderKind string

const (
	ImageMock   ImageProviderKind = "mock"
	ImageOpenAI ImageProviderKind = "openai"
)

// PromptGeneratorKind selects how word sets become prompts.
type PromptGeneratorKind string

const (
	PromptTemplate PromptGeneratorKind = "template"
	PromptOllama   PromptGeneratorKind = "ollama"
)

// StorageDriver selects where generated images are persisted.
type StorageDriver string

const (
	StorageLocal StorageDriver = "local"
	StorageR2    StorageDriver = "r2"
)

const defaultDifficultyWordCounts = `{"easy":4,"normal":7,"hard":10}`

// R2Config holds the Cloudflare R2 bucket settings.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// OpenAIConfig holds settings shared by the OpenAI-compatible providers.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ImageModel     string
	ImageQuality   string
}

// OllamaConfig holds settings for the generative prompt path.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// Config holds application configuration
type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	ServiceToken   string
	AllowedOrigins string
	LogLevel       string

	RoundDuration        time.Duration
	CheckInterval        time.Duration
	DefaultDifficulty    string
	DifficultyWordCounts map[string]int
	MaxGuessLength       int

	AntiRepetitionLookback  int
	AntiRepetitionThreshold float64

	EmbeddingProvider EmbeddingProviderKind
	ImageProvider     ImageProviderKind
	PromptGenerator   PromptGeneratorKind

	Storage       StorageDriver
	UploadDir     string
	PublicBaseURL string
	R2            R2Config

	OpenAI OpenAIConfig
	Ollama OllamaConfig
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "5200"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ServiceToken:   os.Getenv("GAME_SERVICE_TOKEN"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		DefaultDifficulty: getEnv("DEFAULT_DIFFICULTY", "normal"),

		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:5200"), "/"),
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			ImageModel:     getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
			ImageQuality:   getEnv("IMAGE_QUALITY", "standard"),
		},
		Ollama: OllamaConfig{
			BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:   getEnv("OLLAMA_MODEL", "qwen3:8b"),
		},
	}

	var err error
	hours, err := getFloat("ROUND_DURATION_HOURS", 24)
	if err != nil {
		return nil, err
	}
	if hours <= 0 {
		return nil, fmt.Errorf("ROUND_DURATION_HOURS must be positive, got %v", hours)
	}
	cfg.RoundDuration = time.Duration(hours * float64(time.Hour))

	minutes, err := getFloat("SCHEDULER_CHECK_INTERVAL_MINUTES", 5)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, fmt.Errorf("SCHEDULER_CHECK_INTERVAL_MINUTES must be positive, got %v", minutes)
	}
	cfg.CheckInterval = time.Duration(minutes * float64(time.Minute))

	if cfg.MaxGuessLength, err = getInt("MAX_GUESS_LENGTH", 200); err != nil {
		return nil, err
	}
	if cfg.AntiRepetitionLookback, err = getInt("ANTI_REPETITION_LOOKBACK", 30); err != nil {
		return nil, err
	}
	if cfg.AntiRepetitionThreshold, err = getFloat("ANTI_REPETITION_THRESHOLD", 0.5); err != nil {
		return nil, err
	}

	if cfg.DifficultyWordCounts, err = ParseDifficultyWordCounts(getEnv("DIFFICULTY_WORD_COUNTS", defaultDifficultyWordCounts)); err != nil {
		return nil, err
	}
	if cfg.EmbeddingProvider, err = ParseEmbeddingProvider(getEnv("EMBEDDING_PROVIDER", "mock")); err != nil {
		return nil, err
	}
	if cfg.ImageProvider, err = ParseImageProvider(getEnv("IMAGE_PROVIDER", "mock")); err != nil {
		return nil, err
	}
	if cfg.PromptGenerator, err = ParsePromptGenerator(getEnv("PROMPT_GENERATOR", "template")); err != nil {
		return nil, err
	}
	if cfg.Storage, err = ParseStorageDriver(getEnv("STORAGE_DRIVER", "local")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Load calls it; tests may build a Config by hand.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable not set"))
	}
	if c.ServiceToken == "" {
		errs = append(errs, errors.New("GAME_SERVICE_TOKEN environment variable not set"))
	}
	if _, ok := c.WordCount(c.DefaultDifficulty); !ok {
		errs = append(errs, fmt.Errorf("DEFAULT_DIFFICULTY %q is not defined in DIFFICULTY_WORD_COUNTS", c.DefaultDifficulty))
	}
	if c.MaxGuessLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_GUESS_LENGTH must be positive, got %d", c.MaxGuessLength))
	}
	if c.AntiRepetitionLookback < 0 {
		errs = append(errs, fmt.Errorf("ANTI_REPETITION_LOOKBACK must not be negative, got %d", c.AntiRepetitionLookback))
	}
	if c.AntiRepetitionThreshold <= 0 || c.AntiRepetitionThreshold > 1 {
		errs = append(errs, fmt.Errorf("ANTI_REPETITION_THRESHOLD must be in (0,1], got %v", c.AntiRepetitionThreshold))
	}
	needsOpenAI := c.EmbeddingProvider == EmbeddingOpenAI || c.ImageProvider == ImageOpenAI
	if needsOpenAI && c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required when an openai provider is selected"))
	}
	if c.Storage == StorageR2 {
		if c.R2.AccountID == "" || c.R2.AccessKeyID == "" || c.R2.AccessKeySecret == "" || c.R2.Bucket == "" {
			errs = append(errs, errors.New("STORAGE_DRIVER=r2 requires CLOUDFLARE_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_ACCESS_KEY_SECRET and R2_BUCKET_NAME"))
		}
	}

	return errors.Join(errs...)
}

// WordCount returns the number of words used for a difficulty label.
func (c *Config) WordCount(difficulty string) (int, bool) {
	n, ok := c.DifficultyWordCounts[difficulty]
	return n, ok
}

// ParseDifficultyWordCounts decodes the JSON difficulty -> word count mapping.
func ParseDifficultyWordCounts(raw string) (map[string]int, error) {
	counts := map[string]int{}
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		return nil, fmt.Errorf("invalid DIFFICULTY_WORD_COUNTS JSON: %w", err)
	}
	if len(counts) == 0 {
		return nil, errors.New("DIFFICULTY_WORD_COUNTS must define at least one difficulty")
	}
	for name, n := range counts {
		if n <= 0 {
			return nil, fmt.Errorf("DIFFICULTY_WORD_COUNTS[%q] must be positive, got %d", name, n)
		}
	}
	return counts, nil
}

func ParseEmbeddingProvider(name string) (EmbeddingProviderKind, error) {
	switch k := EmbeddingProviderKind(strings.ToLower(strings.TrimSpace(name))); k {
	case EmbeddingMock, EmbeddingOpenAI:
		return k, nil
	}
	return "", fmt.Errorf("unknown EMBEDDING_PROVIDER %q (use: mock, openai)", name)
}

func ParseImageProvider(name string) (ImageProviderKind, error) {
	switch k := ImageProviderKind(strings.ToLower(strings.TrimSpace(name))); k {
	case ImageMock, ImageOpenAI:
		return k, nil
	}
	return "", fmt.Errorf("unknown IMAGE_PROVIDER %q (use: mock, openai)", name)
}

func ParsePromptGenerator(name string) (PromptGeneratorKind, error) {
	switch k := PromptGeneratorKind(strings.ToLower(strings.TrimSpace(name))); k {
	case PromptTemplate, PromptOllama:
		return k, nil
	}
	return "", fmt.Errorf("unknown PROMPT_GENERATOR %q (use: template, ollama)", name)
}

func ParseStorageDriver(name string) (StorageDriver, error) {
	switch k := StorageDriver(strings.ToLower(strings.TrimSpace(name))); k {
	case StorageLocal, StorageR2:
		return k, nil
	}
	return "", fmt.Errorf("unknown STORAGE_DRIVER %q (use: local, r2)", name)
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}
