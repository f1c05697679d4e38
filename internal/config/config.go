// Package config loads gateway configuration from an optional YAML file
// overlaid with REASONING_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Providers []ProviderConfig `koanf:"providers"`
	Secondary ProviderConfig   `koanf:"secondary"`
	Tiers     TiersConfig      `koanf:"tiers"`
	Breaker   BreakerConfig    `koanf:"breaker"`
	Gateway   GatewayConfig    `koanf:"gateway"`
	Pipeline  PipelineConfig   `koanf:"pipeline"`
	Shaper    ShaperConfig     `koanf:"shaper"`
	Knowledge KnowledgeConfig  `koanf:"knowledge"`
	Limits    LimitsConfig     `koanf:"limits"`
}

type ServerConfig struct {
	Port           int `koanf:"port"`
	RequestTimeout int `koanf:"request_timeout_seconds"`
}

type ProviderConfig struct {
	// Name is the provider identifier referenced by tier chains.
	Name string `koanf:"name"`
	// Type selects the adapter: "openai" (native SDK) or "openrouter"
	// (aggregator network, OpenAI-compatible endpoint).
	Type    string `koanf:"type"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	// Prices are USD per 1K tokens, used for cost estimates and budgets.
	PromptCostPer1K     float64 `koanf:"prompt_cost_per_1k"`
	CompletionCostPer1K float64 `koanf:"completion_cost_per_1k"`
}

type TiersConfig struct {
	Premium    []string `koanf:"premium"`
	Balanced   []string `koanf:"balanced"`
	Economy    []string `koanf:"economy"`
	LastResort []string `koanf:"last_resort"`
}

type BreakerConfig struct {
	FailureThreshold    int `koanf:"failure_threshold"`
	ResetTimeoutSeconds int `koanf:"reset_timeout_seconds"`
}

type GatewayConfig struct {
	CallTimeoutSeconds int     `koanf:"call_timeout_seconds"`
	DepthBudget        int     `koanf:"depth_budget"`
	CostBudget         float64 `koanf:"cost_budget"`
}

type PipelineConfig struct {
	GiantTimeoutSeconds   int `koanf:"giant_timeout_seconds"`
	CellTimeoutSeconds    int `koanf:"cell_timeout_seconds"`
	ZantaraTimeoutSeconds int `koanf:"zantara_timeout_seconds"`
	RetryMaxAttempts      int `koanf:"retry_max_attempts"`
	RetryBaseDelayMs      int `koanf:"retry_base_delay_ms"`
	// SynthesisTier names the tier used for the persona synthesis call.
	SynthesisTier string `koanf:"synthesis_tier"`
	PersonaPrompt string `koanf:"persona_prompt"`
}

type ShaperConfig struct {
	MinWords int `koanf:"min_words"`
	MaxWords int `koanf:"max_words"`
}

type KnowledgeConfig struct {
	Path string `koanf:"path"`
}

type LimitsConfig struct {
	MaxQueryChars      int `koanf:"max_query_chars"`
	MaxHistoryMessages int `koanf:"max_history_messages"`
}

// Load reads configuration. The optional path points at a YAML file; env vars
// with the REASONING_ prefix override it (double underscore separates nested
// keys, e.g. REASONING_SERVER__PORT).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	setDefaults(k)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("REASONING_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REASONING_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	k.Set("server.port", 8080)
	k.Set("server.request_timeout_seconds", 150)
	k.Set("breaker.failure_threshold", 5)
	k.Set("breaker.reset_timeout_seconds", 60)
	k.Set("gateway.call_timeout_seconds", 45)
	k.Set("gateway.depth_budget", 4)
	k.Set("pipeline.giant_timeout_seconds", 60)
	k.Set("pipeline.cell_timeout_seconds", 10)
	k.Set("pipeline.zantara_timeout_seconds", 60)
	k.Set("pipeline.retry_max_attempts", 3)
	k.Set("pipeline.retry_base_delay_ms", 500)
	k.Set("pipeline.synthesis_tier", "economy")
	k.Set("shaper.min_words", 30)
	k.Set("shaper.max_words", 250)
	k.Set("knowledge.path", "./data/knowledge.db")
	k.Set("limits.max_query_chars", 8000)
	k.Set("limits.max_history_messages", 20)
}

// CallTimeout returns the per-provider-call timeout.
func (c GatewayConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// ResetTimeout returns the breaker reset window.
func (c BreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutSeconds) * time.Second
}

// GiantTimeout returns the primary reasoning stage timeout.
func (c PipelineConfig) GiantTimeout() time.Duration {
	return time.Duration(c.GiantTimeoutSeconds) * time.Second
}

// CellTimeout returns the calibration stage timeout.
func (c PipelineConfig) CellTimeout() time.Duration {
	return time.Duration(c.CellTimeoutSeconds) * time.Second
}

// ZantaraTimeout returns the persona synthesis stage timeout.
func (c PipelineConfig) ZantaraTimeout() time.Duration {
	return time.Duration(c.ZantaraTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the initial backoff delay for stage retries.
func (c PipelineConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}
