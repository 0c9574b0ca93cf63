package models

import "time"

// Config represents the application configuration
type Config struct {
	Log          LogConfig
	Database     DatabaseConfig
	Server       ServerConfig
	Auth         AuthConfig
	Accrual      AccrualConfig
	Requirements RequirementsConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
}

type LogConfig struct {
	Level       string
	Development bool
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	EnableH2C       bool
	GinMode         string
}

type AuthMode string

const (
	AuthModeJWT    AuthMode = "jwt"
	AuthModeHeader AuthMode = "header"
)

// AuthConfig selects how the caller identity is resolved. Tokens are
// issued elsewhere; this service only verifies them.
type AuthConfig struct {
	Mode          AuthMode
	JWTSecret     string
	JWTIssuer     string
	TrustedHeader string
}

// AccrualConfig holds coin-lock reward accrual settings
type AccrualConfig struct {
	Enabled  bool
	Interval time.Duration
}

// RequirementsConfig points at the YAML requirement tables. Empty paths
// fall back to the embedded defaults.
type RequirementsConfig struct {
	ModulesFile string
	LevelsFile  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientId string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}
