package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	OpenRouter OpenRouterConfig
	Stripe     StripeConfig
	Usage      UsageConfig
	Insights   InsightsConfig
	Chat       ChatConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL     string
	Enabled bool
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// OpenRouterConfig configures the LLM gateway. BaseURL defaults to the
// OpenRouter API; any OpenAI-compatible endpoint works.
type OpenRouterConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	PremiumModel   string
	VisionModel    string
	EmbeddingModel string
	AppURL         string
	AppName        string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceLegend   string
	PriceVIP      string
	SuccessURL    string
	CancelURL     string
}

// UsageConfig overrides the built-in tier policy table. Zero values keep
// the defaults from the tier package.
type UsageConfig struct {
	ResponsePeriodDays int
	StandardResponses  int
	LegendResponses    int
	StandardPremium    int
	LegendPremium      int
	VIPPremium         int
}

type InsightsConfig struct {
	Cooldown         time.Duration
	CategoryCooldown map[string]time.Duration
	MaxAttempts      int
	BaseDelay        time.Duration
	AttemptTimeout   time.Duration
}

type ChatConfig struct {
	MaxContextMessages int
	ContextTTLSec      int
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		CORS: CORSConfig{
			AllowedOrigins: k.Strings("cors.allowed.origins"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:         k.String("openrouter.api.key"),
			BaseURL:        k.String("openrouter.base.url"),
			ChatModel:      k.String("openrouter.chat.model"),
			PremiumModel:   k.String("openrouter.premium.model"),
			VisionModel:    k.String("openrouter.vision.model"),
			EmbeddingModel: k.String("openrouter.embedding.model"),
			AppURL:         k.String("openrouter.app.url"),
			AppName:        k.String("openrouter.app.name"),
		},
		Stripe: StripeConfig{
			SecretKey:     k.String("stripe.secret.key"),
			WebhookSecret: k.String("stripe.webhook.secret"),
			PriceLegend:   k.String("stripe.price.legend"),
			PriceVIP:      k.String("stripe.price.vip"),
			SuccessURL:    k.String("stripe.success.url"),
			CancelURL:     k.String("stripe.cancel.url"),
		},
		Usage: UsageConfig{
			ResponsePeriodDays: k.Int("usage.response.period.days"),
			StandardResponses:  k.Int("usage.standard.responses"),
			LegendResponses:    k.Int("usage.legend.responses"),
			StandardPremium:    k.Int("usage.standard.premium"),
			LegendPremium:      k.Int("usage.legend.premium"),
			VIPPremium:         k.Int("usage.vip.premium"),
		},
		Insights: InsightsConfig{
			MaxAttempts: k.Int("insights.max.attempts"),
		},
		Chat: ChatConfig{
			MaxContextMessages: k.Int("chat.max.context.messages"),
			ContextTTLSec:      k.Int("chat.context.ttl.sec"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "aether"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "aether"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.OpenRouter.BaseURL == "" {
		cfg.OpenRouter.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.OpenRouter.ChatModel == "" {
		cfg.OpenRouter.ChatModel = "openai/gpt-4o-mini"
	}
	if cfg.OpenRouter.PremiumModel == "" {
		cfg.OpenRouter.PremiumModel = "anthropic/claude-3.5-sonnet"
	}
	if cfg.OpenRouter.VisionModel == "" {
		cfg.OpenRouter.VisionModel = "openai/gpt-4o"
	}
	if cfg.OpenRouter.EmbeddingModel == "" {
		cfg.OpenRouter.EmbeddingModel = "openai/text-embedding-3-small"
	}
	if cfg.OpenRouter.AppName == "" {
		cfg.OpenRouter.AppName = "Aether"
	}
	if cfg.Insights.MaxAttempts == 0 {
		cfg.Insights.MaxAttempts = 3
	}
	if cfg.Chat.MaxContextMessages == 0 {
		cfg.Chat.MaxContextMessages = 20
	}
	if cfg.Chat.ContextTTLSec == 0 {
		cfg.Chat.ContextTTLSec = 3600
	}

	// Parse durations
	cfg.JWT.AccessExpiry, err = parseDuration(k.String("jwt.access.expiry"), "15m")
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}
	cfg.JWT.RefreshExpiry, err = parseDuration(k.String("jwt.refresh.expiry"), "168h")
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}
	cfg.Insights.Cooldown, err = parseDuration(k.String("insights.cooldown"), "30m")
	if err != nil {
		return nil, fmt.Errorf("parsing insight cooldown: %w", err)
	}
	cfg.Insights.BaseDelay, err = parseDuration(k.String("insights.base.delay"), "500ms")
	if err != nil {
		return nil, fmt.Errorf("parsing insight base delay: %w", err)
	}
	cfg.Insights.AttemptTimeout, err = parseDuration(k.String("insights.attempt.timeout"), "30s")
	if err != nil {
		return nil, fmt.Errorf("parsing insight attempt timeout: %w", err)
	}

	// Per-category cooldown overrides, e.g. INSIGHTS_CATEGORY_COOLDOWN_GROWTH=2h
	cfg.Insights.CategoryCooldown = map[string]time.Duration{}
	for _, cat := range []string{"communication", "personality", "behavioral", "emotional", "growth"} {
		if raw := k.String("insights.category.cooldown." + cat); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("parsing cooldown for %s: %w", cat, err)
			}
			cfg.Insights.CategoryCooldown[cat] = d
		}
	}

	return cfg, nil
}

func parseDuration(raw, fallback string) (time.Duration, error) {
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}
