package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	KurrentDB     KurrentDBConfig
	Auth          AuthConfig
	Payment       PaymentConfig
	Notifications NotificationConfig
	LegacyBilling LegacyBillingConfig
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

// PaymentConfig holds configuration for the payment settlement subsystem.
type PaymentConfig struct {
	// DefaultProvider is the provider new charges are routed through
	DefaultProvider string
	// ProviderTimeoutSeconds bounds every provider API call
	ProviderTimeoutSeconds int
	// BookingFee is the flat platform fee added to every charge
	BookingFee float64
	// ProcessingFeeRate is applied to the consultation fee
	ProcessingFeeRate float64
	// Currency for all charges and refunds
	Currency string
}

// NotificationConfig holds configuration for the notification dispatcher.
type NotificationConfig struct {
	Workers       int
	BufferSize    int
	RetryAttempts int
	RetryDelaySec int
}

// LegacyBillingConfig holds configuration for the legacy MSSQL billing mirror.
type LegacyBillingConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "clinic"),
			Password: getEnv("DB_PASSWORD", "clinic"),
			Database: getEnv("DB_NAME", "clinic"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Payment: PaymentConfig{
			DefaultProvider:        getEnv("PAYMENT_PROVIDER", "paymongo"),
			ProviderTimeoutSeconds: getEnvInt("PAYMENT_PROVIDER_TIMEOUT_SECONDS", 10),
			BookingFee:             getEnvFloat("PAYMENT_BOOKING_FEE", 50),
			ProcessingFeeRate:      getEnvFloat("PAYMENT_PROCESSING_FEE_RATE", 0.025),
			Currency:               getEnv("PAYMENT_CURRENCY", "PHP"),
		},
		Notifications: NotificationConfig{
			Workers:       getEnvInt("NOTIFY_WORKERS", 4),
			BufferSize:    getEnvInt("NOTIFY_BUFFER_SIZE", 1000),
			RetryAttempts: getEnvInt("NOTIFY_RETRY_ATTEMPTS", 3),
			RetryDelaySec: getEnvInt("NOTIFY_RETRY_DELAY_SECONDS", 30),
		},
		LegacyBilling: LegacyBillingConfig{
			Enabled:  getEnvBool("LEGACY_BILLING_ENABLED", false),
			Host:     getEnv("LEGACY_BILLING_HOST", "localhost"),
			Port:     getEnvInt("LEGACY_BILLING_PORT", 1433),
			User:     getEnv("LEGACY_BILLING_USER", "sa"),
			Password: getEnv("LEGACY_BILLING_PASSWORD", ""),
			Database: getEnv("LEGACY_BILLING_DB", "MedisysBilling"),
			SSLMode:  getEnv("LEGACY_BILLING_SSLMODE", "disable"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
