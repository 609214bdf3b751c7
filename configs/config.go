package configs

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Exchange ExchangeConfig `toml:"exchange"`
	Import   ImportConfig   `toml:"import"`
	Telegram TelegramConfig `toml:"telegram"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port      string `toml:"port"`
	OpsPort   string `toml:"ops_port"` // internal operations listener, empty disables it
	Env       string `toml:"env"`
	JWTSecret string `toml:"jwt_secret"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL           string `toml:"url"`
	MaxConns      int    `toml:"max_conns"`
	MinConns      int    `toml:"min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis configuration. Empty URL disables the import lock.
type RedisConfig struct {
	URL string `toml:"url"`
}

// ExchangeConfig holds Bybit API configuration
type ExchangeConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	APISecret  string   `toml:"api_secret"`
	RecvWindow int      `toml:"recv_window"` // milliseconds
	Category   string   `toml:"category"`
	Timeout    duration `toml:"timeout"`
}

// ImportConfig holds history import configuration
type ImportConfig struct {
	Cron            string `toml:"cron"` // empty disables the scheduled import
	Days            int    `toml:"days"`
	MetricsTimezone string `toml:"metrics_timezone"`
}

// TelegramConfig holds notification configuration
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// duration lets TOML files use "10s" style values
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    "8080",
			OpsPort: "8081",
			Env:     "development",
		},
		Database: DatabaseConfig{
			MaxConns:      10,
			MinConns:      2,
			RunMigrations: true,
		},
		Exchange: ExchangeConfig{
			BaseURL:    "https://api.bybit.com",
			RecvWindow: 5000,
			Category:   "linear",
			Timeout:    duration{10 * time.Second},
		},
		Import: ImportConfig{
			Cron:            "0 10 0 * * *", // daily at 00:10:00
			Days:            30,
			MetricsTimezone: "UTC",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path (if any),
// then .env, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// Missing .env is fine, plain environment variables still apply
	_ = godotenv.Load()

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Server.Port, "PORT")
	setStr(&cfg.Server.OpsPort, "OPS_PORT")
	setStr(&cfg.Server.Env, "GO_ENV")
	setStr(&cfg.Server.JWTSecret, "JWT_SECRET")

	setStr(&cfg.Database.URL, "DATABASE_URL")
	setBool(&cfg.Database.RunMigrations, "RUN_MIGRATIONS")
	setStr(&cfg.Redis.URL, "REDIS_URL")

	setStr(&cfg.Exchange.BaseURL, "BYBIT_BASE_URL")
	setStr(&cfg.Exchange.APIKey, "BYBIT_API_KEY")
	setStr(&cfg.Exchange.APISecret, "BYBIT_API_SECRET")
	setInt(&cfg.Exchange.RecvWindow, "BYBIT_RECV_WINDOW")
	setStr(&cfg.Exchange.Category, "BYBIT_CATEGORY")
	if v := os.Getenv("EXCHANGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Exchange.Timeout.Duration = d
		}
	}

	setStr(&cfg.Import.Cron, "IMPORT_CRON")
	setInt(&cfg.Import.Days, "IMPORT_DAYS")
	setStr(&cfg.Import.MetricsTimezone, "METRICS_TIMEZONE")

	setStr(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")

	setStr(&cfg.Log.Level, "LOG_LEVEL")
	setStr(&cfg.Log.File, "LOG_FILE")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
