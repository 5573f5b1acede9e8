package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the wayfind service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Router    RouterConfig    `yaml:"router"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Memory    MemoryConfig    `yaml:"memory"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// APIKeyConfig binds an API key to a requester identity and access tier.
type APIKeyConfig struct {
	Key   string `yaml:"key"`
	Owner string `yaml:"owner"`
	Tier  int    `yaml:"tier"`
}

// AuthConfig holds API authentication settings.
// The service consumes resolved tiers; it does not manage identities itself.
type AuthConfig struct {
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// BudgetConfig holds token budget settings for outbound provider calls.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// ModelConfig holds the chat model provider settings.
type ModelConfig struct {
	APIKey        string       `yaml:"api_key"`
	BaseURL       string       `yaml:"base_url"`
	Model         string       `yaml:"model"`
	MaxConcurrent int          `yaml:"max_concurrent"`
	MaxRetries    int          `yaml:"max_retries"`
	Budget        BudgetConfig `yaml:"budget"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// PatternConfig is a single weighted keyword or phrase for a domain.
type PatternConfig struct {
	Text   string  `yaml:"text"`
	Weight float64 `yaml:"weight"`
}

// DomainConfig configures one knowledge domain for routing.
type DomainConfig struct {
	Patterns  []PatternConfig `yaml:"patterns"`
	Fallbacks []string        `yaml:"fallbacks"`
}

// OverrideConfig is a deterministic priority override pattern set.
// A query matching any pattern routes straight to Domain, bypassing scoring.
type OverrideConfig struct {
	Name     string   `yaml:"name"`
	Domain   string   `yaml:"domain"`
	Patterns []string `yaml:"patterns"`
}

// RouterConfig holds domain routing settings.
type RouterConfig struct {
	MinConfidence float64                 `yaml:"min_confidence"`
	Smoothing     float64                 `yaml:"smoothing"`
	CatchAll      string                  `yaml:"catch_all"`
	Priority      []string                `yaml:"priority"`
	Domains       map[string]DomainConfig `yaml:"domains"`
	Overrides     []OverrideConfig        `yaml:"overrides"`
}

// RetrievalConfig holds hybrid retrieval settings.
type RetrievalConfig struct {
	DenseWeight   float64 `yaml:"dense_weight"`
	SparseWeight  float64 `yaml:"sparse_weight"`
	TopK          int     `yaml:"top_k"`
	PathTimeoutMS int     `yaml:"path_timeout_ms"`
	MinResults    int     `yaml:"min_results"`
	MinScore      float64 `yaml:"min_score"`
	RerankEnabled bool    `yaml:"rerank_enabled"`
	RerankEpsilon float64 `yaml:"rerank_epsilon"`
}

// ReasoningConfig holds reasoning loop settings.
type ReasoningConfig struct {
	MaxIterations  int `yaml:"max_iterations"`
	MaxRefinements int `yaml:"max_refinements"`
}

// MemoryConfig holds fact store and recall-assist settings.
type MemoryConfig struct {
	MaxFactsPerOwner int `yaml:"max_facts_per_owner"`
	AssistTopK       int `yaml:"assist_top_k"`
}

// CacheConfig holds semantic answer cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
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
		// Streaming responses hold the connection open well past a normal
		// request; the write timeout bounds a whole run.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Model.MaxConcurrent <= 0 {
		c.Model.MaxConcurrent = 8
	}
	if c.Model.MaxRetries <= 0 {
		c.Model.MaxRetries = 2
	}
	if c.Router.MinConfidence <= 0 {
		c.Router.MinConfidence = 0.35
	}
	if c.Router.Smoothing <= 0 {
		c.Router.Smoothing = 0.6
	}
	if c.Router.CatchAll == "" {
		c.Router.CatchAll = "general"
	}
	if c.Retrieval.DenseWeight <= 0 && c.Retrieval.SparseWeight <= 0 {
		c.Retrieval.DenseWeight = 0.7
		c.Retrieval.SparseWeight = 0.3
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 8
	}
	if c.Retrieval.PathTimeoutMS <= 0 {
		c.Retrieval.PathTimeoutMS = 2000
	}
	if c.Retrieval.MinResults <= 0 {
		c.Retrieval.MinResults = 2
	}
	if c.Retrieval.RerankEpsilon <= 0 {
		c.Retrieval.RerankEpsilon = 0.10
	}
	if c.Reasoning.MaxIterations <= 0 {
		c.Reasoning.MaxIterations = 5
	}
	if c.Reasoning.MaxRefinements <= 0 {
		c.Reasoning.MaxRefinements = 1
	}
	if c.Memory.MaxFactsPerOwner <= 0 {
		c.Memory.MaxFactsPerOwner = 256
	}
	if c.Memory.AssistTopK <= 0 {
		c.Memory.AssistTopK = 5
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "wayfind:"
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
	switch c.Model.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("model.budget.action must be \"warn\" or \"reject\", got %q",
			c.Model.Budget.Action)
	}
	if c.Router.MinConfidence >= 1 {
		return fmt.Errorf("router.min_confidence must be below 1, got %v", c.Router.MinConfidence)
	}
	if len(c.Router.Domains) == 0 {
		return fmt.Errorf("router.domains is required")
	}
	if _, ok := c.Router.Domains[c.Router.CatchAll]; !ok {
		return fmt.Errorf("router.catch_all %q is not a configured domain", c.Router.CatchAll)
	}
	for name, d := range c.Router.Domains {
		for _, f := range d.Fallbacks {
			if _, ok := c.Router.Domains[f]; !ok {
				return fmt.Errorf("router.domains.%s: unknown fallback domain %q", name, f)
			}
		}
		for _, p := range d.Patterns {
			if p.Text == "" {
				return fmt.Errorf("router.domains.%s: pattern with empty text", name)
			}
			if p.Weight <= 0 {
				return fmt.Errorf("router.domains.%s: pattern %q needs a positive weight", name, p.Text)
			}
		}
	}
	for _, o := range c.Router.Overrides {
		if o.Domain == "" {
			return fmt.Errorf("router.overrides.%s: domain is required", o.Name)
		}
		if len(o.Patterns) == 0 {
			return fmt.Errorf("router.overrides.%s: at least one pattern is required", o.Name)
		}
	}
	if c.Retrieval.DenseWeight < 0 || c.Retrieval.SparseWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	for _, k := range c.Auth.APIKeys {
		if k.Tier < 0 {
			return fmt.Errorf("auth.api_keys: tier must be non-negative for owner %q", k.Owner)
		}
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
