package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	RabbitMQ   RabbitMQConfig
	Dispatcher DispatcherConfig
	Provider   ProviderConfig
	Presets    PresetsConfig
	Scheduler  SchedulerConfig
	Env        string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds job store configuration. Driver selects between
// the Postgres store and the SQLite store used for local development.
type DatabaseConfig struct {
	Driver    string // "postgres" or "sqlite"
	Host      string
	Port      string
	User      string
	Password  string
	DBName    string
	SQLiteDSN string
}

// RabbitMQConfig holds the lifecycle event broker configuration
type RabbitMQConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	Queue    string
}

// DispatcherConfig holds process-wide dispatch settings
type DispatcherConfig struct {
	GlobalWorkerCap   int
	ProviderTimeout   time.Duration
	RequeuePoll       time.Duration
	StalenessFactor   int
	StalenessFloor    time.Duration
	FailureSampleSize int
}

// ProviderConfig selects and configures the outbound message provider
type ProviderConfig struct {
	Kind        string // "simulated", "gateway" or "telegram"
	GatewayURL  string
	GatewayKey  string
	BotToken    string
	SuccessRate float64
}

// PresetsConfig points at the optional pacing presets file
type PresetsConfig struct {
	Path  string
	Watch bool
}

// SchedulerConfig controls the scheduled-campaign sweep
type SchedulerConfig struct {
	Enabled bool
	Spec    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Driver:    getEnv("DB_DRIVER", "postgres"),
			Host:      getEnv("POSTGRES_HOST", "localhost"),
			Port:      getEnv("POSTGRES_PORT", "5432"),
			User:      getEnv("POSTGRES_USER", "lealta"),
			Password:  getEnv("POSTGRES_PASSWORD", ""),
			DBName:    getEnv("POSTGRES_DB", "lealta_dispatch"),
			SQLiteDSN: getEnv("SQLITE_DSN", "file:lealta.db?_pragma=busy_timeout(5000)"),
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:  getEnvAsBool("RABBITMQ_ENABLED", false),
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnv("RABBITMQ_PORT", "5672"),
			User:     getEnv("RABBITMQ_DEFAULT_USER", "guest"),
			Password: getEnv("RABBITMQ_DEFAULT_PASS", "guest"),
			Queue:    getEnv("RABBITMQ_EVENTS_QUEUE", "campaign_events"),
		},
		Dispatcher: DispatcherConfig{
			GlobalWorkerCap:   getEnvAsInt("DISPATCH_WORKER_CAP", 4),
			ProviderTimeout:   getEnvAsDuration("PROVIDER_TIMEOUT", 15*time.Second),
			RequeuePoll:       getEnvAsDuration("DISPATCH_REQUEUE_POLL", 500*time.Millisecond),
			StalenessFactor:   getEnvAsInt("DISPATCH_STALENESS_FACTOR", 5),
			StalenessFloor:    getEnvAsDuration("DISPATCH_STALENESS_FLOOR", time.Minute),
			FailureSampleSize: getEnvAsInt("DISPATCH_FAILURE_SAMPLE", 20),
		},
		Provider: ProviderConfig{
			Kind:        getEnv("PROVIDER", "simulated"),
			GatewayURL:  getEnv("PROVIDER_GATEWAY_URL", ""),
			GatewayKey:  getEnv("PROVIDER_GATEWAY_KEY", ""),
			BotToken:    getEnv("PROVIDER_BOT_TOKEN", ""),
			SuccessRate: getEnvAsFloat("PROVIDER_SUCCESS_RATE", 0.95),
		},
		Presets: PresetsConfig{
			Path:  getEnv("PACING_PRESETS_PATH", ""),
			Watch: getEnvAsBool("PACING_PRESETS_WATCH", true),
		},
		Scheduler: SchedulerConfig{
			Enabled: getEnvAsBool("SCHEDULER_ENABLED", true),
			Spec:    getEnv("SCHEDULER_SPEC", "@every 30s"),
		},
		Env: getEnv("ENV", "development"),
	}

	// Validate required fields
	if config.Database.Driver == "postgres" && config.Database.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD is required with DB_DRIVER=postgres")
	}
	if config.Provider.Kind == "gateway" && config.Provider.GatewayURL == "" {
		return nil, fmt.Errorf("PROVIDER_GATEWAY_URL is required with PROVIDER=gateway")
	}
	if config.Provider.Kind == "telegram" && config.Provider.BotToken == "" {
		return nil, fmt.Errorf("PROVIDER_BOT_TOKEN is required with PROVIDER=telegram")
	}

	return config, nil
}

// GetDatabaseDSN returns the PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// GetRabbitMQURL returns the RabbitMQ connection URL
func (c *Config) GetRabbitMQURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		c.RabbitMQ.User,
		c.RabbitMQ.Password,
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
	)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv gets environment variable or returns default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer or returns default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets environment variable as boolean or returns default
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets environment variable as float or returns default
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets environment variable as duration or returns default
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
