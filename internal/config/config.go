package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service reads from the environment.
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Speech   SpeechConfig
	Ledger   LedgerConfig
	Memory   MemoryConfig
	Tribunal TribunalConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	ledger, err := loadLedgerConfig()
	if err != nil {
		return nil, err
	}

	memory, err := loadMemoryConfig()
	if err != nil {
		return nil, err
	}

	tribunal, err := loadTribunalConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Speech:   speech,
		Ledger:   ledger,
		Memory:   memory,
		Tribunal: tribunal,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig carries the Ark model settings backing the reviewer chains.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + Model, or the AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// SpeechConfig carries the text-to-speech backend settings.
type SpeechConfig struct {
	APIKey  string
	BaseURL string
	ModelID string
	Format  string
	Timeout time.Duration
	Enabled bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY"))
	}

	return SpeechConfig{
		APIKey:  apiKey,
		BaseURL: getEnvOrDefault("SPEECH_BASE_URL", "https://api.elevenlabs.io"),
		ModelID: getEnvOrDefault("SPEECH_MODEL_ID", "eleven_turbo_v2_5"),
		Format:  getEnvOrDefault("SPEECH_FORMAT", "mp3_44100_128"),
		Timeout: timeout,
		Enabled: apiKey != "",
	}, nil
}

// LedgerConfig carries the blockchain gateway settings for verdict commits.
type LedgerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Enabled bool
}

func loadLedgerConfig() (LedgerConfig, error) {
	timeout, err := parseDurationEnv("LEDGER_TIMEOUT", 15*time.Second)
	if err != nil {
		return LedgerConfig{}, err
	}

	baseURL := strings.TrimSpace(os.Getenv("LEDGER_BASE_URL"))
	return LedgerConfig{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(os.Getenv("LEDGER_API_KEY")),
		Timeout: timeout,
		Enabled: baseURL != "",
	}, nil
}

// MemoryConfig carries the semantic-memory service settings.
type MemoryConfig struct {
	BaseURL string
	APIKey  string
	UserID  string
	Timeout time.Duration
	Enabled bool
}

func loadMemoryConfig() (MemoryConfig, error) {
	timeout, err := parseDurationEnv("MEMORY_TIMEOUT", 15*time.Second)
	if err != nil {
		return MemoryConfig{}, err
	}

	baseURL := strings.TrimSpace(os.Getenv("MEMORY_BASE_URL"))
	return MemoryConfig{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(os.Getenv("MEMORY_API_KEY")),
		UserID:  getEnvOrDefault("MEMORY_USER_ID", "tribunal"),
		Timeout: timeout,
		Enabled: baseURL != "",
	}, nil
}

// TribunalConfig tunes the orchestration core.
type TribunalConfig struct {
	ReviewerTimeout  time.Duration
	LimiterSlots     int
	SynthConcurrency int
	MaxPaperChars    int
	Retention        time.Duration
	SweepEvery       time.Duration
	CommitAttempts   int
}

func loadTribunalConfig() (TribunalConfig, error) {
	reviewerTimeout, err := parseDurationEnv("TRIBUNAL_REVIEWER_TIMEOUT", 45*time.Second)
	if err != nil {
		return TribunalConfig{}, err
	}

	retention, err := parseDurationEnv("TRIBUNAL_RETENTION", time.Hour)
	if err != nil {
		return TribunalConfig{}, err
	}

	sweep, err := parseDurationEnv("TRIBUNAL_SWEEP_EVERY", 5*time.Minute)
	if err != nil {
		return TribunalConfig{}, err
	}

	limiterSlots, err := parseIntEnv("TRIBUNAL_LIMITER_SLOTS", 8)
	if err != nil {
		return TribunalConfig{}, err
	}

	synthConcurrency, err := parseIntEnv("TRIBUNAL_SYNTH_CONCURRENCY", 4)
	if err != nil {
		return TribunalConfig{}, err
	}

	maxPaperChars, err := parseIntEnv("TRIBUNAL_MAX_PAPER_CHARS", 12000)
	if err != nil {
		return TribunalConfig{}, err
	}

	commitAttempts, err := parseIntEnv("TRIBUNAL_COMMIT_ATTEMPTS", 3)
	if err != nil {
		return TribunalConfig{}, err
	}

	return TribunalConfig{
		ReviewerTimeout:  reviewerTimeout,
		LimiterSlots:     limiterSlots,
		SynthConcurrency: synthConcurrency,
		MaxPaperChars:    maxPaperChars,
		Retention:        retention,
		SweepEvery:       sweep,
		CommitAttempts:   commitAttempts,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// Bare numbers are treated as seconds.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
