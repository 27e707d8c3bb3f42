// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// validation errors
var (
	ErrNoChannels    = errors.New("at least one channel must be specified")
	ErrNoKeywords    = errors.New("at least one keyword must be specified")
	ErrNoDestination = errors.New("forward_to_user_id is required")
)

// TelegramConfig holds Telegram API credentials.
type TelegramConfig struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	SessionName string
}

// Config holds all application configuration. Immutable after Load.
type Config struct {
	Telegram        TelegramConfig
	ForwardToUserID int64
	Channels        []string
	Keywords        []string

	// TimeWindowHours is the historical scan window. 0 disables the scan.
	TimeWindowHours int

	// ForwardDelay is the minimum spacing between forwards per channel, seconds.
	ForwardDelay int

	MaxMessagesPerHour           int
	MaxMessagesPerChannelPerHour int
	MaxMessageLength             int

	// NatsURL enables forward-event publishing when set.
	NatsURL string

	// HTTPPort is the admin web server port (used with --gui).
	HTTPPort int
}

// fileConfig mirrors the YAML layout. api_id is decoded loosely so that
// placeholder strings produce a validation error instead of a YAML error.
type fileConfig struct {
	Telegram struct {
		APIID       any    `yaml:"api_id"`
		APIHash     string `yaml:"api_hash"`
		PhoneNumber string `yaml:"phone_number"`
		SessionName string `yaml:"session_name"`
	} `yaml:"telegram"`
	ForwardToUserID              int64    `yaml:"forward_to_user_id"`
	Channels                     []string `yaml:"channels"`
	Keywords                     []string `yaml:"keywords"`
	TimeWindowHours              *int     `yaml:"time_window_hours"`
	ForwardDelay                 *int     `yaml:"forward_delay"`
	MaxMessagesPerHour           *int     `yaml:"max_messages_per_hour"`
	MaxMessagesPerChannelPerHour *int     `yaml:"max_messages_per_channel_per_hour"`
	MaxMessageLength             *int     `yaml:"max_message_length"`
	NatsURL                      string   `yaml:"nats_url"`
	HTTPPort                     int      `yaml:"http_port"`
}

// Load reads configuration from the YAML file at path.
// .env is loaded first; TELEGRAM_API_ID, TELEGRAM_API_HASH and
// TELEGRAM_PHONE supersede file values.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file %q not found: copy config.example.yaml to config.yaml and configure it", path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	apiID := getEnv("TELEGRAM_API_ID", asString(raw.Telegram.APIID))
	apiHash := getEnv("TELEGRAM_API_HASH", raw.Telegram.APIHash)
	phone := getEnv("TELEGRAM_PHONE", raw.Telegram.PhoneNumber)

	if warnings := ValidateCredentials(apiID, apiHash, phone); len(warnings) > 0 {
		return nil, fmt.Errorf("invalid telegram credentials: %s", strings.Join(warnings, "; "))
	}

	apiIDNum, err := strconv.Atoi(apiID)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_API_ID must be a number: %w", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			APIID:       apiIDNum,
			APIHash:     apiHash,
			PhoneNumber: phone,
			SessionName: raw.Telegram.SessionName,
		},
		ForwardToUserID:              raw.ForwardToUserID,
		Channels:                     raw.Channels,
		TimeWindowHours:              intOr(raw.TimeWindowHours, 0),
		ForwardDelay:                 intOr(raw.ForwardDelay, 5),
		MaxMessagesPerHour:           intOr(raw.MaxMessagesPerHour, 60),
		MaxMessagesPerChannelPerHour: intOr(raw.MaxMessagesPerChannelPerHour, 20),
		MaxMessageLength:             intOr(raw.MaxMessageLength, 4000),
		NatsURL:                      raw.NatsURL,
		HTTPPort:                     raw.HTTPPort,
	}
	if cfg.Telegram.SessionName == "" {
		cfg.Telegram.SessionName = "telescout_session"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}

	// keywords are matched lowercase; empty entries are dropped
	for _, kw := range raw.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			cfg.Keywords = append(cfg.Keywords, kw)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ForwardToUserID == 0 {
		return ErrNoDestination
	}
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	if len(c.Keywords) == 0 {
		return ErrNoKeywords
	}
	if c.TimeWindowHours < 0 {
		return fmt.Errorf("time_window_hours must be positive, got %d", c.TimeWindowHours)
	}
	if c.ForwardDelay < 0 {
		return fmt.Errorf("forward_delay must be non-negative, got %d", c.ForwardDelay)
	}
	if c.MaxMessagesPerHour < 1 || c.MaxMessagesPerHour > 200 {
		return fmt.Errorf("max_messages_per_hour must be in 1..200, got %d", c.MaxMessagesPerHour)
	}
	if c.MaxMessagesPerChannelPerHour < 1 || c.MaxMessagesPerChannelPerHour > 50 {
		return fmt.Errorf("max_messages_per_channel_per_hour must be in 1..50, got %d", c.MaxMessagesPerChannelPerHour)
	}
	if c.MaxMessageLength < 1 || c.MaxMessageLength > 10000 {
		return fmt.Errorf("max_message_length must be in 1..10000, got %d", c.MaxMessageLength)
	}
	return nil
}

// SessionFile returns the on-disk sqlite session path.
func (c *Config) SessionFile() string {
	return c.Telegram.SessionName + ".session.db"
}

// asString renders a loosely decoded YAML scalar.
func asString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intOr(v *int, defaultVal int) int {
	if v != nil {
		return *v
	}
	return defaultVal
}
