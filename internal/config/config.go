package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mail-digest-go/internal/digest"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	Mailer    MailerConfig    `mapstructure:"mailer"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Digest    DigestConfig    `mapstructure:"digest"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// GmailConfig holds Gmail API and IMAP configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
	UseIMAP      bool   `mapstructure:"use_imap"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
	SentMailbox  string `mapstructure:"sent_mailbox"`
}

// MailerConfig selects the outbound transport for digest notifications
type MailerConfig struct {
	Transport       string        `mapstructure:"transport"`
	ResendAPIKey    string        `mapstructure:"resend_api_key"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
}

// RendererConfig points at the content service that renders digest items
type RendererConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// RedisConfig enables the shared prepare lock when Addr is set
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// SchedulerConfig holds the weekly digest and ingestion schedule
type SchedulerConfig struct {
	Enabled               bool `mapstructure:"enabled"`
	WeekDay               int  `mapstructure:"week_day"`
	Hour                  int  `mapstructure:"hour"`
	IngestIntervalMinutes int  `mapstructure:"ingest_interval_minutes"`
}

// DirectoryConfig resolves group and contact ids to addresses
type DirectoryConfig struct {
	Groups   map[string][]string `mapstructure:"groups"`
	Contacts map[string]string   `mapstructure:"contacts"`
	Senders  map[string]string   `mapstructure:"senders"`
}

// DigestConfig is the digest section as written in the config file
type DigestConfig struct {
	IsActive           bool     `mapstructure:"is_active"`
	Title              string   `mapstructure:"digest_title"`
	ViewMode           string   `mapstructure:"view_mode"`
	PublicURL          string   `mapstructure:"public_url"`
	QuantityLimit      int      `mapstructure:"quantity_limit"`
	AllowedTypes       []string `mapstructure:"bundles"`
	AgeInDays          int      `mapstructure:"age_in_days"`
	Language           string   `mapstructure:"language"`
	IncludeUpdates     bool     `mapstructure:"include_update"`
	FromGroup          string   `mapstructure:"from_group"`
	ToGroups           []string `mapstructure:"to_groups"`
	TestGroups         []string `mapstructure:"test_groups"`
	ValidationGroups   []string `mapstructure:"validation_groups"`
	ValidationContacts []string `mapstructure:"validation_contacts"`
	ScanLimit          int      `mapstructure:"scan_limit"`
}

// LoadConfig loads configuration from environment variables and config file.
// CONFIG_FILE overrides the default search path.
func LoadConfig() (*Config, error) {
	if file := os.Getenv("CONFIG_FILE"); file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.driver", "mysql")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.path", "mail-digest.db")

	viper.SetDefault("log.level", "info")

	viper.SetDefault("gmail.use_imap", false)
	viper.SetDefault("gmail.imap_host", "imap.gmail.com")
	viper.SetDefault("gmail.imap_port", 993)
	viper.SetDefault("gmail.sent_mailbox", "[Gmail]/Sent Mail")

	viper.SetDefault("mailer.transport", "gmail")
	viper.SetDefault("mailer.dispatch_timeout", "2m")
	viper.SetDefault("mailer.max_retries", 3)

	viper.SetDefault("renderer.timeout", "10s")
	viper.SetDefault("renderer.concurrency", 4)

	viper.SetDefault("redis.prefix", "mail-digest:")
	viper.SetDefault("redis.lock_ttl", "5m")

	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.week_day", 1)
	viper.SetDefault("scheduler.hour", 8)
	viper.SetDefault("scheduler.ingest_interval_minutes", 15)

	viper.SetDefault("digest.is_active", false)
	viper.SetDefault("digest.view_mode", "teaser")
	viper.SetDefault("digest.quantity_limit", 10)
	viper.SetDefault("digest.age_in_days", 7)
	viper.SetDefault("digest.language", "en")
	viper.SetDefault("digest.include_update", false)
	viper.SetDefault("digest.scan_limit", 1000)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.driver", "DB_DRIVER")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
	viper.BindEnv("database.sslmode", "DB_SSLMODE")
	viper.BindEnv("database.path", "DB_PATH")

	viper.BindEnv("log.level", "LOG_LEVEL")

	// Gmail
	viper.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("gmail.user_email", "GMAIL_USER_EMAIL")
	viper.BindEnv("gmail.use_imap", "GMAIL_USE_IMAP")
	viper.BindEnv("gmail.imap_host", "GMAIL_IMAP_HOST")
	viper.BindEnv("gmail.imap_port", "GMAIL_IMAP_PORT")
	viper.BindEnv("gmail.imap_user", "GMAIL_IMAP_USER")
	viper.BindEnv("gmail.imap_password", "GMAIL_IMAP_PASSWORD")
	viper.BindEnv("gmail.sent_mailbox", "GMAIL_SENT_MAILBOX")

	// Mailer
	viper.BindEnv("mailer.transport", "MAILER_TRANSPORT")
	viper.BindEnv("mailer.resend_api_key", "RESEND_API_KEY")
	viper.BindEnv("mailer.dispatch_timeout", "MAILER_DISPATCH_TIMEOUT")

	viper.BindEnv("renderer.base_url", "RENDERER_BASE_URL")

	// Redis
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	// Scheduler
	viper.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	viper.BindEnv("scheduler.week_day", "SCHEDULER_WEEK_DAY")
	viper.BindEnv("scheduler.hour", "SCHEDULER_HOUR")
	viper.BindEnv("scheduler.ingest_interval_minutes", "SCHEDULER_INGEST_INTERVAL_MINUTES")

	// Digest
	viper.BindEnv("digest.is_active", "DIGEST_IS_ACTIVE")
	viper.BindEnv("digest.digest_title", "DIGEST_TITLE")
	viper.BindEnv("digest.public_url", "DIGEST_PUBLIC_URL")
	viper.BindEnv("digest.quantity_limit", "DIGEST_QUANTITY_LIMIT")
	viper.BindEnv("digest.age_in_days", "DIGEST_AGE_IN_DAYS")
	viper.BindEnv("digest.language", "DIGEST_LANGUAGE")
	viper.BindEnv("digest.bundles", "DIGEST_BUNDLES")
	viper.BindEnv("digest.include_update", "DIGEST_INCLUDE_UPDATE")
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
}

// Validate validates the service configuration. The digest section is
// validated per workflow run, since it can change while running.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Mailer.Transport {
	case "gmail":
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required for the gmail transport")
		}
	case "resend":
		if c.Mailer.ResendAPIKey == "" {
			return fmt.Errorf("resend API key is required for the resend transport")
		}
	default:
		return fmt.Errorf("unsupported mailer transport %q", c.Mailer.Transport)
	}

	if c.Gmail.UseIMAP && (c.Gmail.IMAPUser == "" || c.Gmail.IMAPPassword == "") {
		return fmt.Errorf("IMAP credentials are required when using IMAP")
	}

	if strings.TrimSpace(c.Renderer.BaseURL) == "" {
		return fmt.Errorf("renderer base URL is required")
	}

	if c.Scheduler.WeekDay < 0 || c.Scheduler.WeekDay > 6 {
		return fmt.Errorf("scheduler week_day must be between 0 and 6")
	}
	if c.Scheduler.Hour < 0 || c.Scheduler.Hour > 23 {
		return fmt.Errorf("scheduler hour must be between 0 and 23")
	}
	if c.Scheduler.IngestIntervalMinutes <= 0 {
		return fmt.Errorf("scheduler ingest interval must be greater than 0")
	}

	return nil
}

// DigestSettings converts the digest section into workflow settings.
func (c *Config) DigestSettings() digest.Settings {
	d := c.Digest
	return digest.Settings{
		Active:             d.IsActive,
		Title:              d.Title,
		ViewMode:           d.ViewMode,
		PublicURL:          d.PublicURL,
		FromGroup:          d.FromGroup,
		ToGroups:           d.ToGroups,
		TestGroups:         d.TestGroups,
		ValidationGroups:   d.ValidationGroups,
		ValidationContacts: d.ValidationContacts,
		Selection: digest.Config{
			QuantityLimit:  d.QuantityLimit,
			AllowedTypes:   d.AllowedTypes,
			MaxAgeDays:     d.AgeInDays,
			Language:       d.Language,
			IncludeUpdates: d.IncludeUpdates,
		},
		ScanLimit:         d.ScanLimit,
		DispatchTimeout:   c.Mailer.DispatchTimeout,
		RenderConcurrency: c.Renderer.Concurrency,
	}
}
