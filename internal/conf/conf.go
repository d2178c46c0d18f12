package conf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/infra/mercari"
	"github.com/merchantbot/merchantbot/internal/service"
)

// Config represents application configuration
type Config struct {
	// Discord configuration
	Discord DiscordConfig

	// Mercari client configuration
	Mercari MercariConfig

	// Query store configuration
	Store StoreConfig

	// Tracker configuration
	Tracker TrackerConfig

	// Local admin API configuration
	API APIConfig

	// Messages configuration (loaded from YAML)
	Messages *MessagesConfig

	// Optional log file, written in addition to stderr
	LogFile string

	// Debug mode
	Debug bool
}

// DiscordConfig contains Discord configuration
type DiscordConfig struct {
	Token          string
	AppID          string
	GuildID        string   // Empty registers commands globally
	AllowedUserIDs []string // Users allowed to run admin commands
}

// MercariConfig contains Mercari client configuration
type MercariConfig struct {
	RequestsPerMinute int
	MaxConcurrent     int
	CountryCode       string
}

// StoreConfig contains query store configuration
type StoreConfig struct {
	DBPath     string
	QueryQuota int
}

// TrackerConfig contains tracker configuration
type TrackerConfig struct {
	IntervalMinutes int
	LookbackHours   int
	Parallelism     int
}

// APIConfig contains the local admin API configuration
type APIConfig struct {
	Port int // 0 disables the API
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Query DB path
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".merchantbot", "queries.db")
	}

	countryCode := os.Getenv("MERCARI_COUNTRY_CODE")
	if countryCode == "" {
		countryCode = mercari.DefaultCountryCode
	}

	// Load messages from YAML
	messagesConfigPath := os.Getenv("MESSAGES_CONFIG_PATH")
	messagesConfig, err := LoadMessagesConfig(messagesConfigPath)
	if err != nil {
		messagesConfig = DefaultMessagesConfig()
	}

	return &Config{
		Discord: DiscordConfig{
			Token:          os.Getenv("DISCORD_TOKEN"),
			AppID:          os.Getenv("DISCORD_APP_ID"),
			GuildID:        os.Getenv("DISCORD_GUILD_ID"),
			AllowedUserIDs: splitList(os.Getenv("ALLOWED_USER_IDS")),
		},
		Mercari: MercariConfig{
			RequestsPerMinute: envInt("MERCARI_REQUESTS_PER_MINUTE", mercari.DefaultRequestsPerMinute),
			MaxConcurrent:     envInt("MERCARI_MAX_CONCURRENT", mercari.DefaultMaxConcurrent),
			CountryCode:       countryCode,
		},
		Store: StoreConfig{
			DBPath:     dbPath,
			QueryQuota: envInt("QUERY_QUOTA", domain.DefaultQueryConfig.MaxPerUser),
		},
		Tracker: TrackerConfig{
			IntervalMinutes: envInt("TRACK_INTERVAL_MINUTES", 10),
			LookbackHours:   envInt("LOOKBACK_HOURS", 24),
			Parallelism:     envInt("TRACKER_PARALLELISM", 5),
		},
		API: APIConfig{
			Port: envInt("API_PORT", 0),
		},
		Messages: messagesConfig,
		LogFile:  os.Getenv("LOG_FILE"),
		Debug:    os.Getenv("DEBUG") == "true",
	}
}

// envInt reads an integer variable, falling back to def when unset or invalid
func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ToQueryConfig converts to domain query configuration
func (c *Config) ToQueryConfig() domain.QueryConfig {
	return domain.QueryConfig{
		MaxPerUser: c.Store.QueryQuota,
		Lookback:   time.Duration(c.Tracker.LookbackHours) * time.Hour,
	}
}

// ToMercariConfig converts to Mercari client configuration
func (c *Config) ToMercariConfig() mercari.Config {
	return mercari.Config{
		RequestsPerMinute: c.Mercari.RequestsPerMinute,
		MaxConcurrent:     c.Mercari.MaxConcurrent,
		CountryCode:       c.Mercari.CountryCode,
		Debug:             c.Debug,
	}
}

// ToTrackerConfig converts to tracker service configuration
func (c *Config) ToTrackerConfig() service.TrackerConfig {
	return service.TrackerConfig{
		Interval:    c.Tracker.Interval(),
		Lookback:    time.Duration(c.Tracker.LookbackHours) * time.Hour,
		Parallelism: c.Tracker.Parallelism,
	}
}

// ToCommandConfig converts to command service configuration
func (c *Config) ToCommandConfig() service.CommandConfig {
	return service.CommandConfig{
		Replies:   c.Messages.ToReplyTexts(),
		ItemColor: c.Messages.Notify.ItemColor,
		AdminIDs:  c.Discord.AllowedUserIDs,
	}
}

// Interval returns the tracker interval
func (c *TrackerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Validate validates the configuration needed by the bot
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return &ConfigError{Field: "DISCORD_TOKEN", Message: "required"}
	}
	if c.Discord.AppID == "" {
		return &ConfigError{Field: "DISCORD_APP_ID", Message: "required"}
	}
	return c.ValidateCore()
}

// ValidateCore validates the settings shared by every binary
func (c *Config) ValidateCore() error {
	if c.Store.QueryQuota <= 0 {
		return &ConfigError{Field: "QUERY_QUOTA", Message: "must be positive"}
	}
	if c.Tracker.IntervalMinutes <= 0 {
		return &ConfigError{Field: "TRACK_INTERVAL_MINUTES", Message: "must be positive"}
	}
	if c.Tracker.LookbackHours <= 0 {
		return &ConfigError{Field: "LOOKBACK_HOURS", Message: "must be positive"}
	}
	if c.Tracker.Parallelism <= 0 {
		return &ConfigError{Field: "TRACKER_PARALLELISM", Message: "must be positive"}
	}
	if c.Mercari.RequestsPerMinute <= 0 {
		return &ConfigError{Field: "MERCARI_REQUESTS_PER_MINUTE", Message: "must be positive"}
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return &ConfigError{Field: "API_PORT", Message: "must be a port number"}
	}
	if c.Mercari.MaxConcurrent <= 0 {
		return &ConfigError{Field: "MERCARI_MAX_CONCURRENT", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

// LogWriter returns stderr, or stderr plus LogFile when one is set.
// The returned close function is never nil.
func (c *Config) LogWriter(stderr io.Writer) (io.Writer, func() error, error) {
	if c.LogFile == "" {
		return stderr, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.LogFile), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return io.MultiWriter(stderr, f), f.Close, nil
}
