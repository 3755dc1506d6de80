package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig               `yaml:"store" mapstructure:"store"`
	Providers  map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Collect    CollectConfig             `yaml:"collect" mapstructure:"collect"`
	Dedupe     DedupeConfig              `yaml:"dedupe" mapstructure:"dedupe"`
	Enrich     EnrichConfig              `yaml:"enrich" mapstructure:"enrich"`
	Scoring    ScoringConfig             `yaml:"scoring" mapstructure:"scoring"`
	Outreach   OutreachConfig            `yaml:"outreach" mapstructure:"outreach"`
	Jina       JinaConfig                `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig           `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig          `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig              `yaml:"notion" mapstructure:"notion"`
	Resilience ResilienceConfig          `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig              `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig          `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig                 `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ProviderConfig is the read-only configuration handed to one provider
// adapter at construction.
type ProviderConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	Name           string `yaml:"name" mapstructure:"name"`
	APIKey         string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	QueryLimit     int    `yaml:"query_limit" mapstructure:"query_limit"`
	QuotaLimit     int    `yaml:"quota_limit" mapstructure:"quota_limit"`
	QuotaPeriod    string `yaml:"quota_period" mapstructure:"quota_period"`
	RequiresAPIKey bool   `yaml:"requires_api_key" mapstructure:"requires_api_key"`
	Description    string `yaml:"description" mapstructure:"description"`
}

// Ready reports whether the provider is enabled and has the credentials
// it needs.
func (p ProviderConfig) Ready() bool {
	if !p.Enabled {
		return false
	}
	return !p.RequiresAPIKey || strings.TrimSpace(p.APIKey) != ""
}

// CollectConfig configures provider fan-out.
type CollectConfig struct {
	DefaultProviders []string `yaml:"default_providers" mapstructure:"default_providers"`
	DefaultLimit     int      `yaml:"default_limit" mapstructure:"default_limit"`
}

// DedupeConfig holds the similarity thresholds.
type DedupeConfig struct {
	NameThreshold    float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
	MaybeThreshold   float64 `yaml:"maybe_threshold" mapstructure:"maybe_threshold"`
	AddressThreshold float64 `yaml:"address_threshold" mapstructure:"address_threshold"`
	MaxDistanceKM    float64 `yaml:"max_distance_km" mapstructure:"max_distance_km"`
}

// EnrichConfig configures website contact enrichment.
type EnrichConfig struct {
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxContactPages int    `yaml:"max_contact_pages" mapstructure:"max_contact_pages"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	RespectRobots   bool   `yaml:"respect_robots" mapstructure:"respect_robots"`
	PhoneRegion     string `yaml:"phone_region" mapstructure:"phone_region"`
}

// ScoringConfig holds the additive confidence weights.
type ScoringConfig struct {
	Website       float64 `yaml:"website" mapstructure:"website"`
	BusinessEmail float64 `yaml:"business_email" mapstructure:"business_email"`
	AnyEmail      float64 `yaml:"any_email" mapstructure:"any_email"`
	Phone         float64 `yaml:"phone" mapstructure:"phone"`
	Social        float64 `yaml:"social" mapstructure:"social"`
	MultiSource   float64 `yaml:"multi_source" mapstructure:"multi_source"`
}

// OutreachConfig configures outreach drafts and their delivery. Sending is
// off until SMTPHost is set.
type OutreachConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	SenderName    string `yaml:"sender_name" mapstructure:"sender_name"`
	SenderCompany string `yaml:"sender_company" mapstructure:"sender_company"`
	SenderEmail   string `yaml:"sender_email" mapstructure:"sender_email"`
	Offer         string `yaml:"offer" mapstructure:"offer"`

	SMTPHost     string `yaml:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port" mapstructure:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username" mapstructure:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password" mapstructure:"smtp_password"`
	MaxPerMinute int    `yaml:"max_per_minute" mapstructure:"max_per_minute"`
	// DryRun logs outgoing mail instead of delivering it.
	DryRun bool `yaml:"dry_run" mapstructure:"dry_run"`
	// RequireApproval is the default for runs that do not say.
	RequireApproval bool `yaml:"require_approval" mapstructure:"require_approval"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID   string `yaml:"client_id" mapstructure:"client_id"`
	Username   string `yaml:"username" mapstructure:"username"`
	KeyPath    string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL   string `yaml:"login_url" mapstructure:"login_url"`
	LeadSource string `yaml:"lead_source" mapstructure:"lead_source"`
}

// NotionConfig holds the Notion token and the leads database.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// ResilienceConfig tunes retries and circuit breakers on provider calls.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures the background alert checker of serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	QuotaWarnRatio       float64 `yaml:"quota_warn_ratio" mapstructure:"quota_warn_ratio"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "leadgen.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("collect.default_providers", []string{"openstreetmap"})
	v.SetDefault("collect.default_limit", 20)

	v.SetDefault("dedupe.name_threshold", 0.85)
	v.SetDefault("dedupe.maybe_threshold", 0.70)
	v.SetDefault("dedupe.address_threshold", 0.70)
	v.SetDefault("dedupe.max_distance_km", 0.1)

	v.SetDefault("enrich.batch_size", 5)
	v.SetDefault("enrich.max_contact_pages", 3)
	v.SetDefault("enrich.timeout_secs", 15)
	v.SetDefault("enrich.user_agent", "Mozilla/5.0 (compatible; LeadgenBot/1.0)")
	v.SetDefault("enrich.respect_robots", true)
	v.SetDefault("enrich.phone_region", "DE")

	v.SetDefault("scoring.website", 0.3)
	v.SetDefault("scoring.business_email", 0.4)
	v.SetDefault("scoring.any_email", 0.2)
	v.SetDefault("scoring.phone", 0.2)
	v.SetDefault("scoring.social", 0.1)
	v.SetDefault("scoring.multi_source", 0.1)

	v.SetDefault("outreach.enabled", false)
	v.SetDefault("outreach.sender_name", "")
	v.SetDefault("outreach.sender_company", "")
	v.SetDefault("outreach.sender_email", "")
	v.SetDefault("outreach.offer", "")
	v.SetDefault("outreach.smtp_host", "")
	v.SetDefault("outreach.smtp_port", 587)
	v.SetDefault("outreach.smtp_username", "")
	v.SetDefault("outreach.smtp_password", "")
	v.SetDefault("outreach.max_per_minute", 10)
	v.SetDefault("outreach.dry_run", false)
	v.SetDefault("outreach.require_approval", true)

	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.lead_source", "Lead Generator")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")

	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.quota_warn_ratio", 0.9)

	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 60)

	for id, p := range DefaultProviders() {
		prefix := "providers." + id + "."
		v.SetDefault(prefix+"enabled", p.Enabled)
		v.SetDefault(prefix+"name", p.Name)
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"base_url", p.BaseURL)
		v.SetDefault(prefix+"query_limit", p.QueryLimit)
		v.SetDefault(prefix+"quota_limit", p.QuotaLimit)
		v.SetDefault(prefix+"quota_period", p.QuotaPeriod)
		v.SetDefault(prefix+"requires_api_key", p.RequiresAPIKey)
		v.SetDefault(prefix+"description", p.Description)
	}
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
