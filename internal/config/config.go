package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	LogLevel    string
	Store       StoreConfig
	SMTP        SMTPConfig
	RabbitMQ    RabbitMQConfig
	Ingest      IngestConfig
}

// StoreConfig holds document store connection settings
type StoreConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Enabled reports whether a backing store was configured
func (c StoreConfig) Enabled() bool {
	return c.URI != ""
}

// SMTPConfig holds email delivery settings
type SMTPConfig struct {
	Server     string
	Port       int
	Username   string
	Password   string
	From       string
	UseTLS     bool
	Recipients []string
	Timeout    time.Duration
}

// Enabled reports whether every field needed to send email is present
func (c SMTPConfig) Enabled() bool {
	return c.Server != "" && c.Username != "" && c.Password != "" && c.From != "" && len(c.Recipients) > 0
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL              string
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	AlertExchange    string
	DLQQueue         string
	PrefetchCount    int
}

// Enabled reports whether a broker was configured
func (c RabbitMQConfig) Enabled() bool {
	return c.URL != ""
}

// IngestConfig holds optional HTTP ingest throttling settings
type IngestConfig struct {
	RatePerSecond float64
	Burst         int
}

// Enabled reports whether an operator asked for ingest throttling
func (c IngestConfig) Enabled() bool {
	return c.RatePerSecond > 0
}

// Load loads configuration from environment variables. Missing subsystem
// settings disable the subsystem rather than failing.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "plantbox-api"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Store: StoreConfig{
			URI:      getEnv("STORE_URI", getEnv("MONGO_URI", "")),
			Database: getEnv("STORE_DB", getEnv("MONGO_DB", "plantbox")),
			Timeout:  getEnvAsMillis("STORE_TIMEOUT_MS", 3000),
		},
		SMTP: SMTPConfig{
			Server:     getEnv("SMTP_SERVER", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("SMTP_FROM", ""),
			UseTLS:     getEnvAsBool("SMTP_USE_TLS", true),
			Recipients: getEnvAsList("ALERT_RECIPIENTS"),
			Timeout:    getEnvAsMillis("NOTIFY_TIMEOUT_MS", 10000),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "plantbox.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "plantbox.telemetry.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "telemetry.reading.raw"),
			AlertExchange:    getEnv("RABBITMQ_ALERT_EXCHANGE", "plantbox.alerts.exchange"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "plantbox.telemetry.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Ingest: IngestConfig{
			RatePerSecond: getEnvAsFloat("INGEST_RATE_PER_SEC", 0),
			Burst:         getEnvAsInt("INGEST_BURST", 0),
		},
	}

	if cfg.Ingest.Enabled() && cfg.Ingest.Burst <= 0 {
		cfg.Ingest.Burst = max(1, int(2*cfg.Ingest.RatePerSecond))
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// anything but "false" counts as true, matching the dashboard's .env files
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	return !strings.EqualFold(strings.TrimSpace(valueStr), "false")
}

func getEnvAsMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Millisecond
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
