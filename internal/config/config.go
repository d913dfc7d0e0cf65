// Package config loads the process configuration from environment variables
// with an optional config.yaml overlay: a typed struct, sub-structs per
// concern, env-first precedence.
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the root configuration struct for the whole process.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	LLM       LLMConfig
	RAG       RAGConfig
	RateLimit RateLimitConfig
	Summary   SummaryConfig
	Fetch     FetchConfig
	Auth      AuthConfig
	Email     EmailConfig
	Cron      CronConfig
	Log       LogConfig
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig configures the OpenAI-compatible chat/embedding backend.
type LLMConfig struct {
	Provider       string `mapstructure:"provider"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	ChatModel      string `mapstructure:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Source         string `mapstructure:"source"` // "remote" or "local" (ollama)
}

// RAGConfig configures retrieval defaults.
type RAGConfig struct {
	DefaultK         int     `mapstructure:"default_k"`
	DefaultMinScore  float64 `mapstructure:"default_min_score"`
	MaxContextTokens int     `mapstructure:"max_context_tokens"`
}

// RateLimitConfig configures the chat token bucket.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// SummaryConfig configures the summary cache TTL.
type SummaryConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// FetchConfig configures the fetcher.
type FetchConfig struct {
	Enabled          bool          `mapstructure:"page_content_enabled"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	TotalTimeout     time.Duration `mapstructure:"total_timeout"`
	MaxBytes         int64         `mapstructure:"max_bytes"`
	UserAgent        string        `mapstructure:"user_agent"`
	RenderFallback   bool          `mapstructure:"render_fallback"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	BackendURL  string `mapstructure:"backend_url"`
}

// EmailConfig configures the transactional email provider.
type EmailConfig struct {
	ProviderAPIKey string `mapstructure:"provider_api_key"`
	CronSecret     string `mapstructure:"cron_secret"`
	FromAddress    string `mapstructure:"from_address"`
	TemplateID     string `mapstructure:"template_id"`
}

// CronConfig configures the in-process scheduler (cmd/worker).
type CronConfig struct {
	DigestSchedule        string `mapstructure:"digest_schedule"`
	ConsolidationSchedule string `mapstructure:"consolidation_schedule"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from environment variables (prefixed MARGINALIA_)
// with an optional config.yaml overlay in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("MARGINALIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	bindEnvAliases(v)

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("rag.default_k", 6)
	v.SetDefault("rag.default_min_score", 0.2)
	v.SetDefault("rag.max_context_tokens", 2000)
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 30)
	v.SetDefault("summary.ttl", time.Hour)
	v.SetDefault("fetch.page_content_enabled", true)
	v.SetDefault("fetch.connect_timeout", 5*time.Second)
	v.SetDefault("fetch.total_timeout", 15*time.Second)
	v.SetDefault("fetch.max_bytes", int64(10*1024*1024))
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("fetch.render_fallback", true)
	v.SetDefault("cron.digest_schedule", "@hourly")
	v.SetDefault("cron.consolidation_schedule", "@every 6h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// bindEnvAliases wires the flat public environment variable names onto the nested keys.
func bindEnvAliases(v *viper.Viper) {
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = v.BindEnv("llm.chat_model", "CHAT_MODEL")
	_ = v.BindEnv("llm.embedding_model", "EMBEDDING_MODEL")
	_ = v.BindEnv("llm.source", "LLM_SOURCE")
	_ = v.BindEnv("llm.provider", "LLM_PROVIDER")
	_ = v.BindEnv("rag.default_k", "RAG_DEFAULT_K")
	_ = v.BindEnv("rag.default_min_score", "RAG_DEFAULT_MIN_SCORE")
	_ = v.BindEnv("rag.max_context_tokens", "RAG_MAX_CONTEXT_TOKENS")
	_ = v.BindEnv("rate_limit.requests_per_minute", "RATE_LIMIT_REQUESTS_PER_MINUTE")
	_ = v.BindEnv("summary.ttl", "SUMMARY_TTL")
	_ = v.BindEnv("fetch.page_content_enabled", "FETCH_PAGE_CONTENT_ENABLED")
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	_ = v.BindEnv("auth.backend_url", "AUTH_BACKEND_URL")
	_ = v.BindEnv("email.provider_api_key", "EMAIL_PROVIDER_API_KEY")
	_ = v.BindEnv("email.cron_secret", "CRON_SECRET")
	_ = v.BindEnv("email.from_address", "EMAIL_FROM_ADDRESS")
}
