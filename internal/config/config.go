/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort         string `mapstructure:"SERVER_PORT"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	AutoMigrate        bool   `mapstructure:"AUTO_MIGRATE"`
	MigrationsDir      string `mapstructure:"MIGRATIONS_DIR"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	EventsExchange    string `mapstructure:"EVENTS_EXCHANGE"`
	GatewayEventQueue string `mapstructure:"GATEWAY_EVENT_QUEUE"`
	ModelEventQueue   string `mapstructure:"MODEL_EVENT_QUEUE"`
	InstanceID        string `mapstructure:"INSTANCE_ID"`

	PaystackBaseURL       string `mapstructure:"PAYSTACK_BASE_URL"`
	PaystackSecretKey     string `mapstructure:"PAYSTACK_SECRET_KEY"`
	PaystackCurrency      string `mapstructure:"PAYSTACK_CURRENCY"`
	PaystackMomoBankCode  string `mapstructure:"PAYSTACK_MOMO_BANK_CODE"`
	GatewayTimeoutSeconds int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`

	FXAPIURL         string `mapstructure:"FX_API_URL"`
	FXTimeoutSeconds int    `mapstructure:"FX_TIMEOUT_SECONDS"`

	JWTSecret               string `mapstructure:"JWT_SECRET"`
	SessionTTLMinutes       int    `mapstructure:"SESSION_TTL_MINUTES"`
	DefaultResetPIN         string `mapstructure:"DEFAULT_RESET_PIN"`
	LoginRateLimitPerMinute int    `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`

	StoreRetryAttempts  int `mapstructure:"STORE_RETRY_ATTEMPTS"`
	StoreRetryBackoffMS int `mapstructure:"STORE_RETRY_BACKOFF_MS"`

	ModelStore           string `mapstructure:"MODEL_STORE"`
	ModelDir             string `mapstructure:"MODEL_DIR"`
	ModelRetrainSchedule string `mapstructure:"MODEL_RETRAIN_SCHEDULE"`
	FraudScanSchedule    string `mapstructure:"FRAUD_SCAN_SCHEDULE"`
	FraudScanLimit       int    `mapstructure:"FRAUD_SCAN_LIMIT"`
	RetrainWindowDays    int    `mapstructure:"RETRAIN_WINDOW_DAYS"`
	ScoringTimezone      string `mapstructure:"SCORING_TIMEZONE"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AUTO_MIGRATE", false)
	viper.SetDefault("MIGRATIONS_DIR", "migrations")
	viper.SetDefault("REDIS_KEY_PREFIX", "wirebuddy")
	viper.SetDefault("EVENTS_EXCHANGE", "wirebuddy.events")
	viper.SetDefault("GATEWAY_EVENT_QUEUE", "ledger_service.gateway_events")
	viper.SetDefault("MODEL_EVENT_QUEUE", "ledger_service.model_updates")
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("PAYSTACK_CURRENCY", "GHS")
	viper.SetDefault("PAYSTACK_MOMO_BANK_CODE", "MTN")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 5)
	viper.SetDefault("FX_API_URL", "https://api.exchangerate-api.com/v4/latest/USD")
	viper.SetDefault("FX_TIMEOUT_SECONDS", 3)
	viper.SetDefault("SESSION_TTL_MINUTES", 30)
	viper.SetDefault("DEFAULT_RESET_PIN", "0000")
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("STORE_RETRY_ATTEMPTS", 3)
	viper.SetDefault("STORE_RETRY_BACKOFF_MS", 50)
	viper.SetDefault("MODEL_STORE", "file")
	viper.SetDefault("MODEL_DIR", "models")
	viper.SetDefault("MODEL_RETRAIN_SCHEDULE", "0 3 * * *")
	viper.SetDefault("FRAUD_SCAN_SCHEDULE", "*/30 * * * *")
	viper.SetDefault("FRAUD_SCAN_LIMIT", 200)
	viper.SetDefault("RETRAIN_WINDOW_DAYS", 90)
	viper.SetDefault("SCORING_TIMEZONE", "UTC")
	viper.SetDefault("METRICS_ENABLED", true)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AUTO_MIGRATE")
	_ = viper.BindEnv("MIGRATIONS_DIR")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX", "REDIS_KEY_PREFIX", "REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("GATEWAY_EVENT_QUEUE")
	_ = viper.BindEnv("MODEL_EVENT_QUEUE")
	_ = viper.BindEnv("INSTANCE_ID")
	_ = viper.BindEnv("PAYSTACK_BASE_URL")
	_ = viper.BindEnv("PAYSTACK_SECRET_KEY")
	_ = viper.BindEnv("PAYSTACK_CURRENCY")
	_ = viper.BindEnv("PAYSTACK_MOMO_BANK_CODE")
	_ = viper.BindEnv("GATEWAY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("FX_API_URL")
	_ = viper.BindEnv("FX_TIMEOUT_SECONDS")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("DEFAULT_RESET_PIN")
	_ = viper.BindEnv("LOGIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("STORE_RETRY_ATTEMPTS")
	_ = viper.BindEnv("STORE_RETRY_BACKOFF_MS")
	_ = viper.BindEnv("MODEL_STORE")
	_ = viper.BindEnv("MODEL_DIR")
	_ = viper.BindEnv("MODEL_RETRAIN_SCHEDULE")
	_ = viper.BindEnv("FRAUD_SCAN_SCHEDULE")
	_ = viper.BindEnv("FRAUD_SCAN_LIMIT")
	_ = viper.BindEnv("RETRAIN_WINDOW_DAYS")
	_ = viper.BindEnv("SCORING_TIMEZONE")
	_ = viper.BindEnv("METRICS_ENABLED")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.normalize()
	return
}

func (c *Config) normalize() {
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.RabbitMQURL = strings.TrimSpace(c.RabbitMQURL)
	c.PaystackSecretKey = strings.TrimSpace(c.PaystackSecretKey)

	c.RedisKeyPrefix = strings.TrimSuffix(strings.TrimSpace(c.RedisKeyPrefix), ":")
	if c.RedisKeyPrefix == "" {
		c.RedisKeyPrefix = "wirebuddy"
	}
	c.PaystackCurrency = strings.ToUpper(strings.TrimSpace(c.PaystackCurrency))
	if c.PaystackCurrency == "" {
		c.PaystackCurrency = "GHS"
	}

	c.ModelStore = strings.ToLower(strings.TrimSpace(c.ModelStore))
	if c.ModelStore != "file" && c.ModelStore != "redis" {
		log.Printf("level=warn component=config msg=\"unknown MODEL_STORE; using file\" value=%q", c.ModelStore)
		c.ModelStore = "file"
	}
	if c.ModelStore == "redis" && c.RedisURL == "" {
		log.Printf("level=warn component=config msg=\"MODEL_STORE=redis without REDIS_URL; using file\"")
		c.ModelStore = "file"
	}

	c.ScoringTimezone = strings.TrimSpace(c.ScoringTimezone)
	if c.ScoringTimezone == "" {
		c.ScoringTimezone = "UTC"
	}
	if _, err := time.LoadLocation(c.ScoringTimezone); err != nil {
		log.Printf("level=warn component=config msg=\"unknown SCORING_TIMEZONE; using UTC\" value=%q err=%v", c.ScoringTimezone, err)
		c.ScoringTimezone = "UTC"
	}

	if strings.TrimSpace(c.InstanceID) == "" {
		if host, err := os.Hostname(); err == nil {
			c.InstanceID = host
		} else {
			c.InstanceID = "local"
		}
	}

	positive := func(value *int, fallback int, key string) {
		if *value <= 0 {
			log.Printf("level=warn component=config msg=\"non-positive value; using default\" key=%s value=%d default=%d", key, *value, fallback)
			*value = fallback
		}
	}
	positive(&c.GatewayTimeoutSeconds, 5, "GATEWAY_TIMEOUT_SECONDS")
	positive(&c.FXTimeoutSeconds, 3, "FX_TIMEOUT_SECONDS")
	positive(&c.SessionTTLMinutes, 30, "SESSION_TTL_MINUTES")
	positive(&c.StoreRetryAttempts, 3, "STORE_RETRY_ATTEMPTS")
	positive(&c.FraudScanLimit, 200, "FRAUD_SCAN_LIMIT")
	positive(&c.RetrainWindowDays, 90, "RETRAIN_WINDOW_DAYS")
	if c.StoreRetryBackoffMS < 0 {
		c.StoreRetryBackoffMS = 0
	}
	if c.LoginRateLimitPerMinute < 0 {
		c.LoginRateLimitPerMinute = 0
	}
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas. Empty means the router default.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

func (c Config) FXTimeout() time.Duration {
	return time.Duration(c.FXTimeoutSeconds) * time.Second
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c Config) StoreRetryBackoff() time.Duration {
	return time.Duration(c.StoreRetryBackoffMS) * time.Millisecond
}

func (c Config) RetrainWindow() time.Duration {
	return time.Duration(c.RetrainWindowDays) * 24 * time.Hour
}

// ScoringLocation is the time zone fraud features read hour and weekday in.
func (c Config) ScoringLocation() *time.Location {
	loc, err := time.LoadLocation(c.ScoringTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InstanceModelQueue names this instance's model-update queue. Every instance needs its
// own queue so each one reloads the retrained artifact.
func (c Config) InstanceModelQueue() string {
	return c.ModelEventQueue + "." + c.InstanceID
}
