package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Tavily     TavilyConfig     `yaml:"tavily" mapstructure:"tavily"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	DeepSeek   DeepSeekConfig   `yaml:"deepseek" mapstructure:"deepseek"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Hunt       HuntConfig       `yaml:"hunt" mapstructure:"hunt"`
	Planner    PlannerConfig    `yaml:"planner" mapstructure:"planner"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
}

// StoreConfig configures the company history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SearchConfig selects and tunes the web search provider.
type SearchConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	Depth       string `yaml:"search_depth" mapstructure:"search_depth"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TavilyConfig holds Tavily API settings.
type TavilyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	ReasoningModel string `yaml:"reasoning_model" mapstructure:"reasoning_model"`
	ChatModel      string `yaml:"chat_model" mapstructure:"chat_model"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DeepSeekConfig holds DeepSeek API settings.
type DeepSeekConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	ReasoningModel string `yaml:"reasoning_model" mapstructure:"reasoning_model"`
	ChatModel      string `yaml:"chat_model" mapstructure:"chat_model"`
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// CacheConfig configures the Redis search response cache. An empty Addr
// disables caching.
type CacheConfig struct {
	Addr       string `yaml:"addr" mapstructure:"addr"`
	Password   string `yaml:"password" mapstructure:"password"`
	DB         int    `yaml:"db" mapstructure:"db"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// HuntConfig holds hunt defaults and pacing.
type HuntConfig struct {
	Quota            int     `yaml:"quota" mapstructure:"quota"`
	MaxRounds        int     `yaml:"max_rounds" mapstructure:"max_rounds"`
	MatchThreshold   int     `yaml:"match_threshold" mapstructure:"match_threshold"`
	RoundDelayMs     int     `yaml:"round_delay_ms" mapstructure:"round_delay_ms"`
	QueryQPS         float64 `yaml:"query_qps" mapstructure:"query_qps"`
	SearchRetries    int     `yaml:"search_retries" mapstructure:"search_retries"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	QualifyThreshold int     `yaml:"qualify_threshold" mapstructure:"qualify_threshold"`
	ICPFile          string  `yaml:"icp_file" mapstructure:"icp_file"`
	ValuePropFile    string  `yaml:"value_prop_file" mapstructure:"value_prop_file"`
}

// RoundDelay returns the pause between search rounds.
func (h HuntConfig) RoundDelay() time.Duration {
	return time.Duration(h.RoundDelayMs) * time.Millisecond
}

// PlannerConfig points at an optional source policy override.
type PlannerConfig struct {
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RetryConfig configures backoff between provider retries.
type RetryConfig struct {
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// envOnlyKeys have no default and are usually supplied as PHARMHUNTER_* env vars.
var envOnlyKeys = []string{
	"store.database_url",
	"tavily.key",
	"jina.key",
	"anthropic.key",
	"deepseek.key",
	"cache.addr",
	"cache.password",
	"cache.db",
	"hunt.icp_file",
	"hunt.value_prop_file",
	"planner.policy_file",
	"retry.jitter",
	"telemetry.enabled",
	"salesforce.client_id",
	"salesforce.username",
	"salesforce.key_path",
	"notion.token",
	"notion.lead_db",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PHARMHUNTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "pharmhunter.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.search_depth", "advanced")
	v.SetDefault("search.timeout_secs", 30)
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("llm.provider", "deepseek")
	v.SetDefault("anthropic.reasoning_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.chat_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("deepseek.base_url", "https://api.deepseek.com")
	v.SetDefault("deepseek.reasoning_model", "deepseek-reasoner")
	v.SetDefault("deepseek.chat_model", "deepseek-chat")
	v.SetDefault("deepseek.max_tokens", 4096)
	v.SetDefault("cache.ttl_minutes", 360)
	v.SetDefault("hunt.quota", 10)
	v.SetDefault("hunt.max_rounds", 3)
	v.SetDefault("hunt.match_threshold", 85)
	v.SetDefault("hunt.round_delay_ms", 1000)
	v.SetDefault("hunt.query_qps", 2.0)
	v.SetDefault("hunt.search_retries", 2)
	v.SetDefault("hunt.concurrency", 4)
	v.SetDefault("hunt.qualify_threshold", 75)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("telemetry.service_name", "pharmhunter")
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")

	// Keys without defaults are unknown to Unmarshal until bound.
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command mode needs. "hunt" and "discover" need
// the store plus search and llm providers, "history" only the store, and
// "serve" everything hunt needs plus a port.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "hunt", "discover":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateSearch()...)
		errs = append(errs, c.validateLLM()...)
	case "history":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateSearch()...)
		errs = append(errs, c.validateLLM()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Hunt.MatchThreshold < 0 || c.Hunt.MatchThreshold > 100 {
		errs = append(errs, "hunt.match_threshold must be between 0 and 100")
	}
	if c.Hunt.Concurrency < 1 || c.Hunt.Concurrency > 32 {
		errs = append(errs, "hunt.concurrency must be between 1 and 32")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	return nil
}

func (c *Config) validateSearch() []string {
	switch c.Search.Provider {
	case "tavily":
		if c.Tavily.Key == "" {
			return []string{"tavily.key is required"}
		}
	case "jina":
		if c.Jina.Key == "" {
			return []string{"jina.key is required"}
		}
	default:
		return []string{"search.provider must be tavily or jina"}
	}
	return nil
}

func (c *Config) validateLLM() []string {
	switch c.LLM.Provider {
	case "deepseek":
		if c.DeepSeek.Key == "" {
			return []string{"deepseek.key is required"}
		}
	case "anthropic":
		if c.Anthropic.Key == "" {
			return []string{"anthropic.key is required"}
		}
	default:
		return []string{"llm.provider must be deepseek or anthropic"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
