// Package config loads the gateway configuration from an optional YAML file
// and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reasongate-gateway/internal/handlers"
	"reasongate-gateway/internal/llm/anthropic"
	"reasongate-gateway/internal/llm/deepseek"
	"reasongate-gateway/internal/llm/gemini"
	"reasongate-gateway/internal/pricing"
)

const (
	ProviderKindDeepSeek  = "deepseek"
	ProviderKindAnthropic = "anthropic"
	ProviderKindGemini    = "gemini"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Redis         RedisConfig         `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequestTimeoutMS bounds every request, streams included. Zero disables it.
	RequestTimeoutMS  int   `yaml:"request_timeout_ms"`
	ShutdownTimeoutMS int   `yaml:"shutdown_timeout_ms"`
	MaxBodyBytes      int64 `yaml:"max_body_bytes"`
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

type ProvidersConfig struct {
	ProviderA ProviderConfig `yaml:"provider_a"`
	ProviderB ProviderConfig `yaml:"provider_b"`
}

type ProviderConfig struct {
	Kind    string `yaml:"kind"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// Header carries the caller's credential for this provider.
	Header     string `yaml:"header"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
}

func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type PricingConfig struct {
	Backend  string        `yaml:"backend"`
	RedisKey string        `yaml:"redis_key"`
	Table    pricing.Table `yaml:"table"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Endpoint        string  `yaml:"endpoint"`
	Insecure        bool    `yaml:"insecure"`
	ServiceName     string  `yaml:"service_name"`
	SamplingRatio   float64 `yaml:"sampling_ratio"`
	ExportTimeoutMS int     `yaml:"export_timeout_ms"`
}

const (
	defaultPort              = 8080
	defaultRequestTimeoutMS  = 10 * 60 * 1000
	defaultShutdownTimeoutMS = 10 * 1000
	defaultMaxBodyBytes      = 1 << 20
	defaultProviderTimeoutMS = 5 * 60 * 1000
	defaultMaxRetries        = 2

	defaultOTELEndpoint        = "localhost:4318"
	defaultOTELServiceName     = "reasongate-gateway"
	defaultOTELSamplingRatio   = 1.0
	defaultOTELExportTimeoutMS = 3000
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              defaultPort,
			RequestTimeoutMS:  defaultRequestTimeoutMS,
			ShutdownTimeoutMS: defaultShutdownTimeoutMS,
			MaxBodyBytes:      defaultMaxBodyBytes,
		},
		Providers: ProvidersConfig{
			ProviderA: ProviderConfig{
				Kind:       ProviderKindDeepSeek,
				BaseURL:    deepseek.DefaultBaseURL,
				Model:      deepseek.DefaultModel,
				Header:     handlers.DefaultProviderAHeader,
				TimeoutMS:  defaultProviderTimeoutMS,
				MaxRetries: defaultMaxRetries,
			},
			ProviderB: ProviderConfig{
				Kind:       ProviderKindAnthropic,
				BaseURL:    anthropic.DefaultBaseURL,
				Model:      anthropic.DefaultModel,
				Header:     handlers.DefaultAnthropicHeader,
				TimeoutMS:  defaultProviderTimeoutMS,
				MaxRetries: defaultMaxRetries,
			},
		},
		Pricing: PricingConfig{
			Backend:  pricing.BackendMemory,
			RedisKey: pricing.DefaultRedisKey,
			Table:    pricing.DefaultTable,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Endpoint:        defaultOTELEndpoint,
				ServiceName:     defaultOTELServiceName,
				SamplingRatio:   defaultOTELSamplingRatio,
				ExportTimeoutMS: defaultOTELExportTimeoutMS,
			},
		},
	}
}

// geminiDefaults replaces the Anthropic defaults of Provider B fields the
// file left untouched.
func geminiDefaults(p *ProviderConfig) {
	if p.BaseURL == anthropic.DefaultBaseURL {
		p.BaseURL = gemini.DefaultBaseURL
	}
	if p.Model == anthropic.DefaultModel {
		p.Model = gemini.DefaultModel
	}
	if p.Header == handlers.DefaultAnthropicHeader {
		p.Header = handlers.DefaultGeminiHeader
	}
}

// Load reads path over Default and applies environment overrides. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Providers.ProviderB.Kind == ProviderKindGemini {
		geminiDefaults(&cfg.Providers.ProviderB)
	}

	return cfg, nil
}

// Validate checks configuration invariants required at runtime.
func Validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeoutMS < 0 {
		return fmt.Errorf("server.request_timeout_ms must not be negative (got %d)", cfg.Server.RequestTimeoutMS)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive (got %d)", cfg.Server.MaxBodyBytes)
	}

	if cfg.Providers.ProviderA.Kind != ProviderKindDeepSeek {
		return fmt.Errorf("providers.provider_a.kind must be %s (got %q)", ProviderKindDeepSeek, cfg.Providers.ProviderA.Kind)
	}
	switch cfg.Providers.ProviderB.Kind {
	case ProviderKindAnthropic, ProviderKindGemini:
	default:
		return fmt.Errorf("providers.provider_b.kind must be one of anthropic, gemini (got %q)", cfg.Providers.ProviderB.Kind)
	}
	if err := validateProvider("providers.provider_a", cfg.Providers.ProviderA); err != nil {
		return err
	}
	if err := validateProvider("providers.provider_b", cfg.Providers.ProviderB); err != nil {
		return err
	}
	if strings.EqualFold(cfg.Providers.ProviderA.Header, cfg.Providers.ProviderB.Header) {
		return fmt.Errorf("providers.provider_a.header and providers.provider_b.header must differ (both %q)", cfg.Providers.ProviderA.Header)
	}

	switch cfg.Pricing.Backend {
	case pricing.BackendMemory:
	case pricing.BackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return errors.New("redis.addr is required when pricing.backend=redis")
		}
		if strings.TrimSpace(cfg.Pricing.RedisKey) == "" {
			return errors.New("pricing.redis_key is required when pricing.backend=redis")
		}
	default:
		return fmt.Errorf("pricing.backend must be one of memory, redis (got %q)", cfg.Pricing.Backend)
	}
	if err := cfg.Pricing.Table.Validate(); err != nil {
		return err
	}

	if cfg.Observability.OTel.Enabled {
		if strings.TrimSpace(cfg.Observability.OTel.Endpoint) == "" {
			return errors.New("observability.otel.endpoint is required when otel is enabled")
		}
		if r := cfg.Observability.OTel.SamplingRatio; r < 0 || r > 1 {
			return fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %v)", r)
		}
	}

	return nil
}

func validateProvider(name string, p ProviderConfig) error {
	u, err := url.Parse(strings.TrimSpace(p.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s.base_url must be an absolute URL (got %q)", name, p.BaseURL)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("%s.model is required", name)
	}
	if strings.TrimSpace(p.Header) == "" {
		return fmt.Errorf("%s.header is required", name)
	}
	if p.TimeoutMS <= 0 {
		return fmt.Errorf("%s.timeout_ms must be positive (got %d)", name, p.TimeoutMS)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must not be negative (got %d)", name, p.MaxRetries)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("PRICING_BACKEND")); v != "" {
		cfg.Pricing.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("PROVIDER_A_BASE_URL")); v != "" {
		cfg.Providers.ProviderA.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PROVIDER_B_BASE_URL")); v != "" {
		cfg.Providers.ProviderB.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PROVIDER_B_KIND")); v != "" {
		cfg.Providers.ProviderB.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Observability.OTel.Enabled = true
		cfg.Observability.OTel.Endpoint = v
	}
	return nil
}
