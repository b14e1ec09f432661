// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN for the profile store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AuthProviderURL is the hosted auth provider's base URL (e.g. https://proj.example.co/auth/v1).
	AuthProviderURL string `mapstructure:"AUTH_PROVIDER_URL"`
	// AuthProviderKey is the provider API key sent with credential operations.
	AuthProviderKey string `mapstructure:"AUTH_PROVIDER_KEY"`

	// RedisAddr is the Redis address for the session artifact vault (e.g. localhost:6379).
	// Empty means the in-memory vault is used and artifacts do not survive the process.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// SessionSealKey is the hex-encoded 32-byte key sealing artifacts at rest. Required.
	SessionSealKey string `mapstructure:"SESSION_SEAL_KEY"`
	// ArtifactKey is the vault key name (default session:artifacts).
	ArtifactKey string `mapstructure:"ARTIFACT_KEY"`

	// SessionPolicy is an optional Rego policy overriding the default session
	// admission rule (only active profiles may hold a session).
	SessionPolicy string `mapstructure:"SESSION_POLICY"`

	// OTLPEndpoint is the OTLP collector endpoint (e.g. http://localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Telemetry (optional). When Kafka brokers are set, the sync daemon emits telemetry to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for telemetry events (default talenthub-session-telemetry).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTH_PROVIDER_URL", "")
	v.SetDefault("AUTH_PROVIDER_KEY", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("SESSION_SEAL_KEY", "")
	v.SetDefault("ARTIFACT_KEY", "session:artifacts")
	v.SetDefault("SESSION_POLICY", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "talenthub-session-telemetry")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "talenthub-telemetry-worker")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.SessionSealKey != "" {
		if _, err := cfg.SealKey(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// SealKey decodes SessionSealKey as hex and validates its length.
func (c *Config) SealKey() ([]byte, error) {
	if c.SessionSealKey == "" {
		return nil, errors.New("config: SESSION_SEAL_KEY must be set")
	}
	key, err := hex.DecodeString(c.SessionSealKey)
	if err != nil {
		return nil, fmt.Errorf("config: SESSION_SEAL_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: SESSION_SEAL_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
