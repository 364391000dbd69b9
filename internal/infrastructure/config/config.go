package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Discord     DiscordConfig   `mapstructure:"discord"`
	Midtrans    MidtransConfig  `mapstructure:"midtrans"`
	Topup       TopupConfig     `mapstructure:"topup"`
	Redeem      RedeemConfig    `mapstructure:"redeem"`
	Notifier    NotifierConfig  `mapstructure:"notifier"`
	Retention   RetentionConfig `mapstructure:"retention"`
}

type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Host            string `mapstructure:"host"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	QueryTimeout    int    `mapstructure:"query_timeout"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// DiscordConfig contains bot credentials and command settings
type DiscordConfig struct {
	BotToken      string  `mapstructure:"bot_token"`
	CommandPrefix string  `mapstructure:"command_prefix"`
	AdminRole     string  `mapstructure:"admin_role"`
	AdminIDs      []int64 `mapstructure:"admin_ids"`
}

// MidtransConfig contains payment gateway credentials
type MidtransConfig struct {
	ServerKey    string `mapstructure:"server_key"`
	ClientKey    string `mapstructure:"client_key"`
	Environment  string `mapstructure:"environment"` // sandbox or production
	BaseURL      string `mapstructure:"base_url"`
	Timeout      int    `mapstructure:"timeout"`
	QRISAcquirer string `mapstructure:"qris_acquirer"`
}

// TopupConfig bounds topup amounts and payment lifetime
type TopupConfig struct {
	MinAmount     int64 `mapstructure:"min_amount"`
	MaxAmount     int64 `mapstructure:"max_amount"`
	ExpiryMinutes int   `mapstructure:"expiry_minutes"`
}

// RedeemConfig prices redeem code generation
type RedeemConfig struct {
	CodePrice    int64 `mapstructure:"code_price"`
	MaxPerBatch  int   `mapstructure:"max_per_batch"`
	RefundFailed bool  `mapstructure:"refund_failed"`
}

// NotifierConfig bounds the DM delivery pipeline
type NotifierConfig struct {
	QueueSize   int `mapstructure:"queue_size"`
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// RetentionConfig controls the periodic cleanup sweep
type RetentionConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Schedule            string `mapstructure:"schedule"`
	FailedTopupDays     int    `mapstructure:"failed_topup_days"`
	CompletedRedeemDays int    `mapstructure:"completed_redeem_days"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	// Derive the gateway base URL from the environment when not set explicitly
	if config.Midtrans.BaseURL == "" {
		if config.Midtrans.Environment == "production" {
			config.Midtrans.BaseURL = "https://api.midtrans.com"
		} else {
			config.Midtrans.BaseURL = "https://api.sandbox.midtrans.com"
		}
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 120)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "topup_bot")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 3600)
	viper.SetDefault("database.query_timeout", 30)
	viper.SetDefault("database.max_retries", 3)

	// Discord defaults
	viper.SetDefault("discord.command_prefix", "!")
	viper.SetDefault("discord.admin_role", "Admin")

	// Midtrans defaults
	viper.SetDefault("midtrans.environment", "sandbox")
	viper.SetDefault("midtrans.timeout", 30)
	viper.SetDefault("midtrans.qris_acquirer", "gopay")

	// Topup defaults
	viper.SetDefault("topup.min_amount", 10000)
	viper.SetDefault("topup.max_amount", 10000000)
	viper.SetDefault("topup.expiry_minutes", 15)

	// Redeem defaults
	viper.SetDefault("redeem.code_price", 5000)
	viper.SetDefault("redeem.max_per_batch", 50)
	viper.SetDefault("redeem.refund_failed", true)

	// Notifier defaults
	viper.SetDefault("notifier.queue_size", 256)
	viper.SetDefault("notifier.max_attempts", 3)
	viper.SetDefault("notifier.base_delay_ms", 500)
	viper.SetDefault("notifier.max_delay_ms", 5000)

	// Retention defaults
	viper.SetDefault("retention.enabled", true)
	viper.SetDefault("retention.schedule", "0 3 * * *")
	viper.SetDefault("retention.failed_topup_days", 30)
	viper.SetDefault("retention.completed_redeem_days", 90)
}

func overrideFromEnv() {
	// Server
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	// Database
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	// Discord
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		viper.Set("discord.bot_token", token)
	}
	if prefix := os.Getenv("DISCORD_COMMAND_PREFIX"); prefix != "" {
		viper.Set("discord.command_prefix", prefix)
	}
	if role := os.Getenv("ADMIN_ROLE_NAME"); role != "" {
		viper.Set("discord.admin_role", role)
	}
	if adminIDs := os.Getenv("DISCORD_ADMIN_IDS"); adminIDs != "" {
		parts := strings.Split(adminIDs, ",")
		var ids []int64
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			viper.Set("discord.admin_ids", ids)
		}
	}

	// Midtrans
	if serverKey := os.Getenv("MIDTRANS_SERVER_KEY"); serverKey != "" {
		viper.Set("midtrans.server_key", serverKey)
	}
	if clientKey := os.Getenv("MIDTRANS_CLIENT_KEY"); clientKey != "" {
		viper.Set("midtrans.client_key", clientKey)
	}
	if env := os.Getenv("MIDTRANS_ENVIRONMENT"); env != "" {
		viper.Set("midtrans.environment", env)
	}
	if baseURL := os.Getenv("MIDTRANS_BASE_URL"); baseURL != "" {
		viper.Set("midtrans.base_url", baseURL)
	}

	// Topup bounds
	if minAmount := os.Getenv("TOPUP_MIN_AMOUNT"); minAmount != "" {
		if v, err := strconv.ParseInt(minAmount, 10, 64); err == nil {
			viper.Set("topup.min_amount", v)
		}
	}
	if maxAmount := os.Getenv("TOPUP_MAX_AMOUNT"); maxAmount != "" {
		if v, err := strconv.ParseInt(maxAmount, 10, 64); err == nil {
			viper.Set("topup.max_amount", v)
		}
	}

	// Redeem pricing
	if codePrice := os.Getenv("REDEEM_CODE_PRICE"); codePrice != "" {
		if v, err := strconv.ParseInt(codePrice, 10, 64); err == nil {
			viper.Set("redeem.code_price", v)
		}
	}

	// Retention
	if schedule := os.Getenv("RETENTION_SCHEDULE"); schedule != "" {
		viper.Set("retention.schedule", schedule)
	}
}

func validate(config *Config) error {
	if config.Discord.BotToken == "" {
		return fmt.Errorf("discord bot token is required")
	}

	if config.Midtrans.ServerKey == "" {
		return fmt.Errorf("midtrans server key is required")
	}

	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	switch config.Midtrans.Environment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("midtrans environment must be sandbox or production")
	}

	if config.Topup.MinAmount <= 0 || config.Topup.MaxAmount < config.Topup.MinAmount {
		return fmt.Errorf("topup amount bounds are invalid")
	}

	return nil
}

// IsAdmin reports whether the given Discord user ID is configured as an admin
func (c *DiscordConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
