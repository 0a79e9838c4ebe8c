package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	TelegramModePolling = "polling"
	TelegramModeWebhook = "webhook"
)

type Config struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`

	// Database
	DatabaseDriver    string `yaml:"database_driver"`
	DatabaseURL       string `yaml:"database_url"`
	DBMaxOpenConns    int    `yaml:"db_max_open_conns"`
	DBMaxIdleConns    int    `yaml:"db_max_idle_conns"`
	DBConnMaxIdleTime int    `yaml:"db_conn_max_idle_time_minutes"` // in minutes
	DBConnMaxLifetime int    `yaml:"db_conn_max_lifetime_minutes"`  // in minutes

	// Telegram
	TelegramToken              string `yaml:"-"`
	TelegramMode               string `yaml:"telegram_mode"`
	TelegramWebhookSecret      string `yaml:"-"`
	TelegramBotUsername        string `yaml:"telegram_bot_username"` // resolved with getMe when empty
	TelegramPollTimeoutSeconds int    `yaml:"telegram_poll_timeout_seconds"`

	// Display timezone for due times. Storage is always UTC.
	LocalTimezone string         `yaml:"local_timezone"`
	Location      *time.Location `yaml:"-"`

	// Conversation sessions
	SessionTTL       time.Duration `yaml:"session_ttl"`
	SessionSweepSpec string        `yaml:"session_sweep_spec"`

	// NATS, optional
	NatsURL string `yaml:"nats_url"`

	// Server
	ServerShutdownTimeoutSeconds int `yaml:"server_shutdown_timeout_seconds"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

var AppConfig *Config

func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := FromEnv()

	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	configFile, err := os.Open(configFilePath)
	if err == nil {
		log.Printf("Loading config file: %v", configFilePath)
		err = LoadConfigFile(configFile, cfg)
		configFile.Close()
		if err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to open config file: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.TelegramToken == "" {
		log.Println("Warning: Telegram token is missing. Please set TELEGRAM_TOKEN environment variable.")
	}

	if cfg.TelegramMode == TelegramModeWebhook && cfg.TelegramWebhookSecret == "" {
		log.Println("Warning: webhook mode without TELEGRAM_WEBHOOK_SECRET accepts unauthenticated updates.")
	}

	AppConfig = cfg
}

// FromEnv builds a Config from environment variables and defaults only.
func FromEnv() *Config {
	return &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		// Database
		DatabaseDriver:    getEnvOrDefault("DATABASE_DRIVER", DriverSQLite),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", "todo.db"),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 15),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 1),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		// Telegram
		TelegramToken:              getEnvOrDefault("TELEGRAM_TOKEN", ""),
		TelegramMode:               getEnvOrDefault("TELEGRAM_MODE", TelegramModePolling),
		TelegramWebhookSecret:      getEnvOrDefault("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramBotUsername:        getEnvOrDefault("TELEGRAM_BOT_USERNAME", ""),
		TelegramPollTimeoutSeconds: getEnvAsInt("TELEGRAM_POLL_TIMEOUT_SECONDS", 30),

		LocalTimezone: getEnvOrDefault("LOCAL_TIMEZONE", "Asia/Ho_Chi_Minh"),

		// Conversation sessions
		SessionTTL:       time.Duration(getEnvAsInt("SESSION_TTL_MINUTES", 10)) * time.Minute,
		SessionSweepSpec: getEnvOrDefault("SESSION_SWEEP_SPEC", "@every 1m"),

		NatsURL: getEnvOrDefault("NATS_URL", ""),

		// Server
		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// Validate checks enumerated settings and resolves the display location.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q (must be %q or %q)", c.DatabaseDriver, DriverSQLite, DriverPostgres)
	}

	switch c.TelegramMode {
	case TelegramModePolling, TelegramModeWebhook:
	default:
		return fmt.Errorf("unknown telegram mode %q (must be %q or %q)", c.TelegramMode, TelegramModePolling, TelegramModeWebhook)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %v", c.SessionTTL)
	}

	loc, err := time.LoadLocation(strings.TrimSpace(c.LocalTimezone))
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", c.LocalTimezone, err)
	}
	c.Location = loc

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}
