// Package config loads the server configuration from a TOML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "comptoir"
	DefaultPGSSLMode     = "disable"
	DefaultSessionWindow = 24 * time.Hour
	DefaultDedupWindow   = 48 * time.Hour
	DefaultMaxAttempts   = 2
	DefaultRefreshSpec   = "@every 1m"
)

// Duration wraps time.Duration so TOML values like "30s" or "24h" decode
// through encoding.TextUnmarshaler. Plain time.Duration fields would only
// accept integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Fallback  FallbackConfig  `toml:"fallback"`
	Twilio    TwilioConfig    `toml:"twilio"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp_cloud"`
	Messenger MessengerConfig `toml:"messenger"`
	Delegated DelegatedConfig `toml:"delegated"`
	Documents DocumentsConfig `toml:"documents"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"COMPTOIR_LOG_LEVEL"`
	Format string `toml:"format" env:"COMPTOIR_LOG_FORMAT"`
}

type ServerConfig struct {
	Addr string `toml:"addr" env:"COMPTOIR_HTTP_ADDR"`
	// PublicBaseURL is the externally visible URL of this host, used when
	// validating provider webhook signatures that cover the full request URL.
	PublicBaseURL string `toml:"public_base_url" env:"COMPTOIR_PUBLIC_BASE_URL"`
}

type PostgresConfig struct {
	Host     string `toml:"host" env:"COMPTOIR_PG_HOST"`
	Port     int    `toml:"port" env:"COMPTOIR_PG_PORT"`
	User     string `toml:"user" env:"COMPTOIR_PG_USER"`
	Password string `toml:"password" env:"COMPTOIR_PG_PASSWORD"`
	Database string `toml:"database" env:"COMPTOIR_PG_DATABASE"`
	SSLMode  string `toml:"sslmode" env:"COMPTOIR_PG_SSLMODE"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// PipelineConfig carries tunables for the ingestion pipeline. The defaults
// mirror provider policy: a 24h free-form session window and at most one
// fallback delivery attempt after the primary.
type PipelineConfig struct {
	SessionWindow  Duration `toml:"session_window" env:"COMPTOIR_SESSION_WINDOW"`
	DedupWindow    Duration `toml:"dedup_window" env:"COMPTOIR_DEDUP_WINDOW"`
	MaxAttempts    int      `toml:"max_delivery_attempts" env:"COMPTOIR_MAX_DELIVERY_ATTEMPTS" validate:"gte=1,lte=5"`
	RoutingRefresh string   `toml:"routing_refresh" env:"COMPTOIR_ROUTING_REFRESH"`
	// AckBudget caps the synchronous portion of inbound processing so the
	// webhook acknowledges before the provider retries.
	AckBudget Duration `toml:"ack_budget" env:"COMPTOIR_ACK_BUDGET"`
}

// FallbackConfig optionally names a degraded default account used when no
// channel account matches an inbound routing hint.
type FallbackConfig struct {
	TenantID  string `toml:"tenant_id" env:"COMPTOIR_FALLBACK_TENANT_ID" validate:"omitempty,uuid"`
	AccountID string `toml:"account_id" env:"COMPTOIR_FALLBACK_ACCOUNT_ID" validate:"omitempty,uuid"`
}

func (c FallbackConfig) Enabled() bool {
	return c.TenantID != "" && c.AccountID != ""
}

type TwilioConfig struct {
	AccountSID string   `toml:"account_sid" env:"COMPTOIR_TWILIO_ACCOUNT_SID"`
	AuthToken  string   `toml:"auth_token" env:"COMPTOIR_TWILIO_AUTH_TOKEN"`
	BaseURL    string   `toml:"base_url" env:"COMPTOIR_TWILIO_BASE_URL"`
	Timeout    Duration `toml:"timeout" env:"COMPTOIR_TWILIO_TIMEOUT"`
}

type WhatsAppConfig struct {
	AccessToken string   `toml:"access_token" env:"COMPTOIR_WA_ACCESS_TOKEN"`
	VerifyToken string   `toml:"verify_token" env:"COMPTOIR_WA_VERIFY_TOKEN"`
	BaseURL     string   `toml:"base_url" env:"COMPTOIR_WA_BASE_URL"`
	Timeout     Duration `toml:"timeout" env:"COMPTOIR_WA_TIMEOUT"`
}

type MessengerConfig struct {
	PageToken   string   `toml:"page_token" env:"COMPTOIR_MSGR_PAGE_TOKEN"`
	AppSecret   string   `toml:"app_secret" env:"COMPTOIR_MSGR_APP_SECRET"`
	VerifyToken string   `toml:"verify_token" env:"COMPTOIR_MSGR_VERIFY_TOKEN"`
	BaseURL     string   `toml:"base_url" env:"COMPTOIR_MSGR_BASE_URL"`
	Timeout     Duration `toml:"timeout" env:"COMPTOIR_MSGR_TIMEOUT"`
}

type DelegatedConfig struct {
	BaseURL string   `toml:"base_url" env:"COMPTOIR_DELEGATED_BASE_URL" validate:"omitempty,url"`
	Timeout Duration `toml:"timeout" env:"COMPTOIR_DELEGATED_TIMEOUT"`
}

type DocumentsConfig struct {
	BaseURL string   `toml:"base_url" env:"COMPTOIR_DOCUMENTS_BASE_URL" validate:"omitempty,url"`
	Timeout Duration `toml:"timeout" env:"COMPTOIR_DOCUMENTS_TIMEOUT"`
}

// Load reads the config file at path (defaults applied first, environment
// variables applied last) and validates the result. A missing file is not an
// error; defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Pipeline: PipelineConfig{
			SessionWindow:  Duration{DefaultSessionWindow},
			DedupWindow:    Duration{DefaultDedupWindow},
			MaxAttempts:    DefaultMaxAttempts,
			RoutingRefresh: DefaultRefreshSpec,
			AckBudget:      Duration{800 * time.Millisecond},
		},
		Twilio: TwilioConfig{
			BaseURL: "https://api.twilio.com",
			Timeout: Duration{8 * time.Second},
		},
		WhatsApp: WhatsAppConfig{
			BaseURL: "https://graph.facebook.com/v19.0",
			Timeout: Duration{8 * time.Second},
		},
		Messenger: MessengerConfig{
			BaseURL: "https://graph.facebook.com/v19.0",
			Timeout: Duration{8 * time.Second},
		},
		Delegated: DelegatedConfig{
			Timeout: Duration{5 * time.Second},
		},
		Documents: DocumentsConfig{
			Timeout: Duration{5 * time.Second},
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
