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

// Config aggregates every runtime setting. All of it is read-only process
// state loaded once at startup.
type Config struct {
	Server    ServerConfig
	LogMode   string
	Providers ProvidersConfig
	Engine    EngineConfig
	Store     StoreConfig
	Auth      AuthConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	providers, err := loadProvidersConfig()
	if err != nil {
		return nil, err
	}

	engine, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		LogMode:   getEnvOrDefault("LOG_MODE", "dev"),
		Providers: providers,
		Engine:    engine,
		Store: StoreConfig{
			SQLitePath: strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		},
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
		},
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
		// Allow ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// StoreConfig selects the persistence backend. An empty SQLitePath keeps
// sessions in process memory.
type StoreConfig struct {
	SQLitePath string
}

// AuthConfig holds the bearer-token settings. An empty secret enables the
// development X-User-ID header fallback.
type AuthConfig struct {
	JWTSecret string
}

// EngineConfig carries the reflection-engine policy knobs.
type EngineConfig struct {
	GroundingExitTurns int
	HistoryCap         int
	DistortionCap      int
	ContextWindow      int
	AssistantScan      int
	// Indicator overrides for the crisis detector; empty keeps the
	// built-in lists.
	AcuteIndicators    []string
	ElevatedIndicators []string
}

func loadEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{
		GroundingExitTurns: 2,
		HistoryCap:         25,
		DistortionCap:      10,
		ContextWindow:      20,
		AssistantScan:      30,
	}

	overrides := []struct {
		key    string
		target *int
	}{
		{"GROUNDING_EXIT_TURNS", &cfg.GroundingExitTurns},
		{"HISTORY_CAP", &cfg.HistoryCap},
		{"DISTORTION_CAP", &cfg.DistortionCap},
		{"CONTEXT_WINDOW", &cfg.ContextWindow},
		{"ASSISTANT_SCAN", &cfg.AssistantScan},
	}
	for _, o := range overrides {
		val, err := parseOptionalIntEnv(o.key)
		if err != nil {
			return EngineConfig{}, err
		}
		if val != nil && *val > 0 {
			*o.target = *val
		}
	}

	cfg.AcuteIndicators = parseListEnv("CRISIS_ACUTE_INDICATORS")
	cfg.ElevatedIndicators = parseListEnv("CRISIS_ELEVATED_INDICATORS")
	return cfg, nil
}

// parseListEnv splits a comma-separated env value, dropping empty entries.
func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ProvidersConfig is the ordered failover chain plus per-attempt timeout.
type ProvidersConfig struct {
	// Order lists provider identities in priority order.
	Order          []string
	AttemptTimeout time.Duration
	Ark            ArkConfig
	Gemini         GeminiConfig
}

// ArkConfig describes the Volcengine Ark backend.
type ArkConfig struct {
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

// Enabled reports whether the required Ark credentials are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the eino Ark chat model from this configuration.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// GeminiConfig describes the Google GenAI backend.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether a Gemini key is configured.
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadProvidersConfig() (ProvidersConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return ProvidersConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return ProvidersConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return ProvidersConfig{}, err
	}

	timeoutSeconds := 30
	if timeout, err := parseOptionalIntEnv("PROVIDER_TIMEOUT"); err != nil {
		return ProvidersConfig{}, err
	} else if timeout != nil && *timeout > 0 {
		timeoutSeconds = *timeout
	}

	order := []string{"ark", "gemini"}
	if raw := strings.TrimSpace(os.Getenv("PROVIDER_CHAIN")); raw != "" {
		order = order[:0]
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" {
				order = append(order, name)
			}
		}
	}

	return ProvidersConfig{
		Order:          order,
		AttemptTimeout: time.Duration(timeoutSeconds) * time.Second,
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
		Gemini: GeminiConfig{
			APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		},
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
