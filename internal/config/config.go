package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultJWTExpiresIn  = "24h"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "mia"
	DefaultPGSSLMode     = "disable"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultChatModel     = "gpt-4o"
	DefaultAudioModel    = "whisper-1"
	DefaultZAPIBaseURL   = "https://api.z-api.io"
)

type Config struct {
	Log          LogConfig          `toml:"log"`
	Server       ServerConfig       `toml:"server"`
	Admin        AdminConfig        `toml:"admin"`
	Auth         AuthConfig         `toml:"auth"`
	Postgres     PostgresConfig     `toml:"postgres"`
	OpenAI       OpenAIConfig       `toml:"openai"`
	WhatsApp     WhatsAppConfig     `toml:"whatsapp"`
	Instagram    InstagramConfig    `toml:"instagram"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Gate         GateConfig         `toml:"gate"`
	Retention    RetentionConfig    `toml:"retention"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AdminConfig is the bootstrap credential for the operator console.
// Password is a bcrypt hash.
type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type OpenAIConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	ChatModel      string `toml:"chat_model"`
	AudioModel     string `toml:"audio_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WhatsAppConfig holds the Z-API gateway credentials.
type WhatsAppConfig struct {
	InstanceID  string `toml:"instance_id"`
	Token       string `toml:"token"`
	ClientToken string `toml:"client_token"`
	BaseURL     string `toml:"base_url"`
}

type InstagramConfig struct {
	VerifyToken string `toml:"verify_token"`
}

type OrchestratorConfig struct {
	Workers            int      `toml:"workers"`
	HistoryWindow      int      `toml:"history_window"`
	OperatorPhone      string   `toml:"operator_phone"`
	EscalationKeywords []string `toml:"escalation_keywords"`
}

type GateConfig struct {
	RefreshSeconds int `toml:"refresh_seconds"`
}

// RetentionConfig controls the nightly history pruning job.
// MaxDays <= 0 disables pruning.
type RetentionConfig struct {
	Schedule string `toml:"schedule"`
	MaxDays  int    `toml:"max_days"`
}

// RefreshInterval returns the gate snapshot refresh interval.
func (g GateConfig) RefreshInterval() time.Duration {
	if g.RefreshSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.RefreshSeconds) * time.Second
}

// Timeout returns the per-request deadline for AI backend calls.
func (o OpenAIConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// DSN builds the Postgres connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// Load reads the TOML config at path, falling back to defaults when the
// file does not exist. An empty path uses CONFIG_PATH or the default
// location.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		OpenAI: OpenAIConfig{
			BaseURL:    DefaultOpenAIBaseURL,
			ChatModel:  DefaultChatModel,
			AudioModel: DefaultAudioModel,
		},
		WhatsApp: WhatsAppConfig{
			BaseURL: DefaultZAPIBaseURL,
		},
		Orchestrator: OrchestratorConfig{
			Workers:       4,
			HistoryWindow: 10,
		},
		Gate: GateConfig{
			RefreshSeconds: 30,
		},
		Retention: RetentionConfig{
			Schedule: "0 4 * * *",
		},
	}

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}
