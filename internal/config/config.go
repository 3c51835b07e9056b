package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the concierge API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  ProviderConfig   `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds catalog store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// GenerationConfig holds generation provider settings.
type GenerationConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float32 `yaml:"temperature"`
	HardTimeoutSec int     `yaml:"hard_timeout_sec"`
	BypassOnFail   bool    `yaml:"bypass_on_fail"`
}

// RerankConfig holds external reranker settings.
type RerankConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Disabled   bool   `yaml:"disabled"`
}

// PipelineConfig holds retrieval and guardrail tuning knobs.
type PipelineConfig struct {
	DenseWeight   float64 `yaml:"dense_weight"`
	LexicalWeight float64 `yaml:"lexical_weight"`
	AttrWeight    float64 `yaml:"attr_weight"`
	MMRLambdaText float64 `yaml:"mmr_lambda_text"`
	MMRLambdaVec  float64 `yaml:"mmr_lambda_vec"`
	FuzzyCutoff   float64 `yaml:"fuzzy_cutoff"`
	VocabTTLSec   int     `yaml:"vocab_ttl_sec"`

	// KeywordOnly skips embeddings entirely and retrieves lexically.
	KeywordOnly bool `yaml:"keyword_only"`

	// DisableLookupFallback stops the guardrail pass from re-reading
	// cited products from the store; retrieved metadata is used as-is.
	DisableLookupFallback bool `yaml:"disable_lookup_fallback"`

	LowStockThreshold int  `yaml:"low_stock_threshold"`
	SurfaceStockHints bool `yaml:"surface_stock_hints"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "concierge:"
	}
	if c.Generation.HardTimeoutSec <= 0 {
		c.Generation.HardTimeoutSec = 12
	}
	if c.Generation.Temperature <= 0 {
		c.Generation.Temperature = 0.2
	}
	if c.Rerank.TimeoutSec <= 0 {
		c.Rerank.TimeoutSec = 15
	}
	if c.Pipeline.DenseWeight == 0 && c.Pipeline.LexicalWeight == 0 && c.Pipeline.AttrWeight == 0 {
		c.Pipeline.DenseWeight = 0.45
		c.Pipeline.LexicalWeight = 0.35
		c.Pipeline.AttrWeight = 0.20
	}
	if c.Pipeline.MMRLambdaText <= 0 {
		c.Pipeline.MMRLambdaText = 0.75
	}
	if c.Pipeline.MMRLambdaVec <= 0 {
		c.Pipeline.MMRLambdaVec = 0.55
	}
	if c.Pipeline.FuzzyCutoff <= 0 {
		c.Pipeline.FuzzyCutoff = 0.84
	}
	if c.Pipeline.VocabTTLSec <= 0 {
		c.Pipeline.VocabTTLSec = 60
	}
	if c.Pipeline.LowStockThreshold <= 0 {
		c.Pipeline.LowStockThreshold = 3
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	sum := c.Pipeline.DenseWeight + c.Pipeline.LexicalWeight + c.Pipeline.AttrWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("pipeline blend weights must sum to 1, got %g", sum)
	}
	if c.Pipeline.MMRLambdaText < 0 || c.Pipeline.MMRLambdaText > 1 {
		return fmt.Errorf("pipeline.mmr_lambda_text must be in [0,1], got %g", c.Pipeline.MMRLambdaText)
	}
	if c.Pipeline.MMRLambdaVec < 0 || c.Pipeline.MMRLambdaVec > 1 {
		return fmt.Errorf("pipeline.mmr_lambda_vec must be in [0,1], got %g", c.Pipeline.MMRLambdaVec)
	}
	if c.Pipeline.FuzzyCutoff <= 0 || c.Pipeline.FuzzyCutoff > 1 {
		return fmt.Errorf("pipeline.fuzzy_cutoff must be in (0,1], got %g", c.Pipeline.FuzzyCutoff)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
