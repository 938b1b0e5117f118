package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateGeneration(cfg, ve)
	validateOrchestration(cfg, ve)
	validateStorage(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"gemini":    true,
	"genai":     true,
	"openai":    true,
	"anthropic": true,
	"bedrock":   true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: gemini, genai, openai, anthropic, bedrock)", i, p.Type)
		}
		switch {
		case p.Type == "bedrock":
			if p.Region == "" {
				ve.Add("llm.providers[%d] (%s): region is required for bedrock provider", i, p.Name)
			}
		case p.Type == "genai" && p.Backend == "vertex":
			if p.Project == "" || p.Location == "" {
				ve.Add("llm.providers[%d] (%s): project and location are required for the vertex backend", i, p.Name)
			}
		case p.APIKey == "":
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via %s_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, EnvPrefix, envName(p.Name))
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", name)
			}
		}
	}
}

func validateGeneration(cfg *Config, ve *ValidationError) {
	g := cfg.Generation
	if g.Model == "" {
		ve.Add("generation.model must not be empty")
	}
	if g.Temperature < 0 || g.Temperature > 1 {
		ve.Add("generation.temperature must be between 0 and 1")
	}
	if g.TopK <= 0 {
		ve.Add("generation.top_k must be > 0")
	}
	if g.TopP < 0 || g.TopP > 1 {
		ve.Add("generation.top_p must be between 0 and 1")
	}
	if g.MaxTokens < 0 {
		ve.Add("generation.max_tokens must be >= 0")
	}
}

func validateOrchestration(cfg *Config, ve *ValidationError) {
	switch cfg.Orchestration.Strategy {
	case "delegate", "simulate":
	default:
		ve.Add("orchestration.strategy %q is invalid (want: delegate, simulate)", cfg.Orchestration.Strategy)
	}
	if cfg.Orchestration.MaxIterations <= 0 {
		ve.Add("orchestration.max_iterations must be > 0")
	}
}

func validateStorage(cfg *Config, ve *ValidationError) {
	switch cfg.Storage.Driver {
	case "memory":
	case "sqlite":
		if cfg.Storage.Path == "" {
			ve.Add("storage.path is required for the sqlite driver")
		}
	default:
		ve.Add("storage.driver %q is invalid (want: sqlite, memory)", cfg.Storage.Driver)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	for i, tok := range cfg.Gateway.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
		}
	}
	if cfg.Gateway.RateLimit.RequestsPerSecond < 0 {
		ve.Add("gateway.rate_limit.requests_per_second must be >= 0")
	}
	if cfg.Gateway.RateLimit.RequestsPerSecond > 0 && cfg.Gateway.RateLimit.Burst <= 0 {
		ve.Add("gateway.rate_limit.burst must be > 0 when rate limiting is enabled")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}
