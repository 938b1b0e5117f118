package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "AGENTVERSE"

// Config is the top-level application configuration.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Generation    GenerationConfig    `yaml:"generation"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Storage       StorageConfig       `yaml:"storage"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Logger        LoggerConfig        `yaml:"logger"`
	Tracer        TracerConfig        `yaml:"tracer"`
}

// GenerationConfig seeds the settings store when nothing has been saved yet.
type GenerationConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TopK        int     `yaml:"top_k"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// OrchestrationConfig selects how team runs are executed.
type OrchestrationConfig struct {
	Strategy      string `yaml:"strategy"` // "delegate" or "simulate"
	MaxIterations int    `yaml:"max_iterations"`
}

// StorageConfig holds settings persistence options.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	Path   string `yaml:"path"`
}

// GatewayConfig holds HTTP/WebSocket server settings.
type GatewayConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addr      string          `yaml:"addr"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// CORSConfig lists the origins browsers may call the API from.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig controls per-client request throttling. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// FailoverConfig lists providers tried in order after the default one fails.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`   // bedrock
	Backend     string        `yaml:"backend,omitempty"`  // genai: "gemini" or "vertex"
	Project     string        `yaml:"project,omitempty"`  // genai vertex
	Location    string        `yaml:"location,omitempty"` // genai vertex
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"` // 0 waits indefinitely
	Pool        PoolConfig    `yaml:"pool"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.agentverse.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".agentverse")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "gemini",
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Generation: GenerationConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.7,
			TopK:        40,
			TopP:        1.0,
		},
		Orchestration: OrchestrationConfig{
			Strategy:      "delegate",
			MaxIterations: 10,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(defaultDataDir(), "agentverse.db"),
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8780",
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:9002"},
			},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				Burst:             10,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus environment are used instead.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if passphrase := os.Getenv(EnvPrefix + "_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envOverrides mirrors the overridable fields. Pointer fields stay nil when
// the variable is unset so explicit false/zero values still apply.
type envOverrides struct {
	DefaultProvider       string   `envconfig:"LLM_DEFAULT_PROVIDER"`
	Model                 string   `envconfig:"GENERATION_MODEL"`
	Temperature           *float64 `envconfig:"GENERATION_TEMPERATURE"`
	TopK                  *int     `envconfig:"GENERATION_TOP_K"`
	TopP                  *float64 `envconfig:"GENERATION_TOP_P"`
	Strategy              string   `envconfig:"ORCHESTRATION_STRATEGY"`
	MaxIterations         *int     `envconfig:"ORCHESTRATION_MAX_ITERATIONS"`
	StorageDriver         string   `envconfig:"STORAGE_DRIVER"`
	StoragePath           string   `envconfig:"STORAGE_PATH"`
	GatewayAddr           string   `envconfig:"GATEWAY_ADDR"`
	GatewayToken          string   `envconfig:"GATEWAY_TOKEN"`
	GatewayAllowedOrigins []string `envconfig:"GATEWAY_ALLOWED_ORIGINS"`
	LoggerLevel           string   `envconfig:"LOGGER_LEVEL"`
	LoggerFormat          string   `envconfig:"LOGGER_FORMAT"`
	LoggerOutput          string   `envconfig:"LOGGER_OUTPUT"`
	TracerEnabled         *bool    `envconfig:"TRACER_ENABLED"`
	TracerExporter        string   `envconfig:"TRACER_EXPORTER"`
}

// ApplyEnvOverrides maps AGENTVERSE_* env vars to config fields.
//
// When no provider is configured and GEMINI_API_KEY or GOOGLE_API_KEY is set,
// a default Gemini provider is added so the service works without a config file.
func ApplyEnvOverrides(cfg *Config) error {
	var ov envOverrides
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}

	setString(&cfg.LLM.DefaultProvider, ov.DefaultProvider)
	setString(&cfg.Generation.Model, ov.Model)
	if ov.Temperature != nil {
		cfg.Generation.Temperature = *ov.Temperature
	}
	if ov.TopK != nil {
		cfg.Generation.TopK = *ov.TopK
	}
	if ov.TopP != nil {
		cfg.Generation.TopP = *ov.TopP
	}
	setString(&cfg.Orchestration.Strategy, ov.Strategy)
	if ov.MaxIterations != nil {
		cfg.Orchestration.MaxIterations = *ov.MaxIterations
	}
	setString(&cfg.Storage.Driver, ov.StorageDriver)
	setString(&cfg.Storage.Path, ov.StoragePath)
	setString(&cfg.Gateway.Addr, ov.GatewayAddr)
	if ov.GatewayToken != "" {
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Token: ov.GatewayToken, Name: "env"})
	}
	if len(ov.GatewayAllowedOrigins) > 0 {
		cfg.Gateway.CORS.AllowedOrigins = ov.GatewayAllowedOrigins
	}
	setString(&cfg.Logger.Level, ov.LoggerLevel)
	setString(&cfg.Logger.Format, ov.LoggerFormat)
	setString(&cfg.Logger.Output, ov.LoggerOutput)
	if ov.TracerEnabled != nil {
		cfg.Tracer.Enabled = *ov.TracerEnabled
	}
	setString(&cfg.Tracer.Exporter, ov.TracerExporter)

	// Per-provider API key overrides: AGENTVERSE_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("%s_LLM_PROVIDER_%s_API_KEY", EnvPrefix, envName(cfg.LLM.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}

	if len(cfg.LLM.Providers) == 0 {
		if key := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
			cfg.LLM.Providers = []ProviderConfig{{
				Name:   cfg.LLM.DefaultProvider,
				Type:   "gemini",
				APIKey: key,
				Model:  cfg.Generation.Model,
			}}
		}
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// envName upper-cases a provider name and replaces characters that are not
// valid in environment variable names.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
