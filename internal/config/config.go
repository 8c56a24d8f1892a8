package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultGraphVersion   = "v18.0"
	DefaultGeminiModel    = "gemini-1.5-flash-latest"
	DefaultBotName        = "WaBot"
	DefaultBotCreator     = "the WaBot developers"
	DefaultReplyMode      = ReplyPerPage
	DefaultHTTPTimeoutSec = 30
	DefaultMaxMediaBytes  = 25 << 20
)

// Reply fan-out modes for multi-page documents.
const (
	ReplyPerPage   = "per_page"
	ReplyAggregate = "aggregate"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Bot      BotConfig      `toml:"bot"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type WhatsAppConfig struct {
	Token          string `toml:"token" validate:"required"`
	PhoneID        string `toml:"phone_id" validate:"required"`
	Recipient      string `toml:"recipient" validate:"required"`
	VerifyToken    string `toml:"verify_token" validate:"required"`
	GraphVersion   string `toml:"graph_version"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts" validate:"gte=0,lte=5"`
	MaxMediaBytes  int64  `toml:"max_media_bytes"`
}

type GeminiConfig struct {
	APIKey         string `toml:"api_key" validate:"required"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type BotConfig struct {
	Name      string `toml:"name"`
	Creator   string `toml:"creator"`
	ReplyMode string `toml:"reply_mode" validate:"oneof=per_page aggregate"`
}

// Load reads the TOML config at path, layering environment overrides on top.
// A missing file is not an error; missing required values are caught by
// Validate at startup.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		WhatsApp: WhatsAppConfig{
			GraphVersion:   DefaultGraphVersion,
			TimeoutSeconds: DefaultHTTPTimeoutSec,
			MaxMediaBytes:  DefaultMaxMediaBytes,
		},
		Gemini: GeminiConfig{
			Model:          DefaultGeminiModel,
			TimeoutSeconds: DefaultHTTPTimeoutSec,
		},
		Bot: BotConfig{
			Name:      DefaultBotName,
			Creator:   DefaultBotCreator,
			ReplyMode: DefaultReplyMode,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Validate reports missing or malformed required values. Callers treat a
// failure as startup-fatal, never as a per-request error.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.WhatsApp.Token, "WA_TOKEN")
	setFromEnv(&cfg.WhatsApp.PhoneID, "WA_PHONE_ID")
	setFromEnv(&cfg.WhatsApp.Recipient, "WA_PHONE_NUMBER")
	setFromEnv(&cfg.WhatsApp.VerifyToken, "WA_VERIFY_TOKEN")
	setFromEnv(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
}

func setFromEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}
