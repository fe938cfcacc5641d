// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
//
// Validate reports missing credentials and inconsistent values before any
// component is built.

package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Storage backends.
const (
	BackendSqlite = "sqlite"
	BackendMemory = "memory"
	BackendValkey = "valkey"
)

// Settings holds all application configuration.
type Settings struct {
	LLM     LLMConfig
	Cache   CacheConfig
	Storage StorageConfig
	Server  ServerConfig
	Log     LogConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   uint32
	Temperature float64
	// CostPer1kTokens overrides the per-model rate when positive.
	CostPer1kTokens float64
}

// CacheConfig holds document cache configuration.
type CacheConfig struct {
	TTL          time.Duration
	ScratchDir   string
	PollAttempts int
	PollInterval time.Duration
}

// StorageConfig selects and configures the cache record store.
type StorageConfig struct {
	Backend         string
	SqlitePath      string
	ValkeyAddr      string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string
	Format string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// New creates settings for the specified provider, loading values from environment variables.
// An empty provider falls back to LLM_PROVIDER, then to gemini.
// Returns an error if the provider is unknown or environment variables contain invalid values.
// Missing credentials are not an error here; see Validate.
func New(provider string) (Settings, error) {
	if provider == "" {
		provider = getEnvString("LLM_PROVIDER", "gemini")
	}
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	costPer1k, err := getEnvFloat64("LLM_COST_PER_1K_TOKENS", 0)
	if err != nil {
		return Settings{}, err
	}

	ttlSeconds, err := getEnvInt("CACHE_TTL_SECONDS", 3600)
	if err != nil {
		return Settings{}, err
	}

	pollAttempts, err := getEnvInt("CACHE_POLL_ATTEMPTS", 3)
	if err != nil {
		return Settings{}, err
	}

	pollIntervalMS, err := getEnvInt("CACHE_POLL_INTERVAL_MS", 2000)
	if err != nil {
		return Settings{}, err
	}

	valkeyDB, err := getEnvInt("VALKEY_DB", 0)
	if err != nil {
		return Settings{}, err
	}

	// Get model from environment or use default
	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}

	return Settings{
		LLM: LLMConfig{
			Provider:        provider,
			Model:           model,
			APIKey:          os.Getenv(info.apiKeyEnv),
			MaxTokens:       maxTokens,
			Temperature:     temperature,
			CostPer1kTokens: costPer1k,
		},
		Cache: CacheConfig{
			TTL:          time.Duration(ttlSeconds) * time.Second,
			ScratchDir:   getEnvString("CACHE_SCRATCH_DIR", filepath.Join(os.TempDir(), "folio")),
			PollAttempts: pollAttempts,
			PollInterval: time.Duration(pollIntervalMS) * time.Millisecond,
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(getEnvString("STORAGE_BACKEND", BackendSqlite)),
			SqlitePath:      getEnvString("STORAGE_SQLITE_PATH", "folio.db"),
			ValkeyAddr:      os.Getenv("VALKEY_ADDR"),
			ValkeyPassword:  os.Getenv("VALKEY_PASSWORD"),
			ValkeyDB:        valkeyDB,
			ValkeyKeyPrefix: getEnvString("VALKEY_KEY_PREFIX", "folio:"),
		},
		Server: ServerConfig{
			Addr: getEnvString("SERVER_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnvString("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnvString("LOG_FORMAT", "text")),
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate checks that the settings can be used to build the service.
// It returns the first section that fails.
func (s Settings) Validate() error {
	llm := s.LLM
	apiKeyEnv := providers[llm.Provider].apiKeyEnv
	if err := validation.ValidateStruct(&llm,
		validation.Field(&llm.Provider, validation.Required),
		validation.Field(&llm.Model, validation.Required),
		validation.Field(&llm.APIKey, validation.Required.Error(apiKeyEnv+" must be set")),
		validation.Field(&llm.MaxTokens, validation.Required, validation.Max(uint32(math.MaxInt32))),
		validation.Field(&llm.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&llm.CostPer1kTokens, validation.Min(0.0)),
	); err != nil {
		return fmt.Errorf("invalid llm settings: %w", err)
	}

	cache := s.Cache
	if err := validation.ValidateStruct(&cache,
		validation.Field(&cache.TTL, validation.Min(time.Second)),
		validation.Field(&cache.PollAttempts, validation.Min(1)),
		validation.Field(&cache.PollInterval, validation.Min(time.Millisecond)),
	); err != nil {
		return fmt.Errorf("invalid cache settings: %w", err)
	}

	st := s.Storage
	if err := validation.ValidateStruct(&st,
		validation.Field(&st.Backend, validation.Required, validation.In(BackendSqlite, BackendMemory, BackendValkey)),
		validation.Field(&st.SqlitePath, validation.When(st.Backend == BackendSqlite, validation.Required)),
		validation.Field(&st.ValkeyAddr, validation.When(st.Backend == BackendValkey, validation.Required)),
		validation.Field(&st.ValkeyDB, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("invalid storage settings: %w", err)
	}

	lg := s.Log
	if err := validation.ValidateStruct(&lg,
		validation.Field(&lg.Level, validation.In("trace", "debug", "info", "warn", "warning", "error", "fatal", "panic")),
		validation.Field(&lg.Format, validation.In("text", "json")),
	); err != nil {
		return fmt.Errorf("invalid log settings: %w", err)
	}

	return nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
