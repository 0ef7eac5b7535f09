package config

import (
	"time"

	iconfig "github.com/pulsechat/pulse/shared/config"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Limits   LimitsConfig
	Otel     OtelConfig
}

type ServerConfig struct {
	Host             string
	Port             int
	AllowedOrigins   []string
	AllowEmptyOrigin bool
	ShutdownTimeout  time.Duration
}

type DatabaseConfig struct {
	URL      string
	Timezone string
	MaxConns int
}

// RedisConfig points at the fan-out broker. An empty URL selects the
// in-process bus, which only serves single-instance deployments.
type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type LimitsConfig struct {
	SendQueueSize     int
	MaxFrameBytes     int64
	FrameErrorsPerMin int
	ConnectsPerMin    int
	TypingInterval    time.Duration
}

type OtelConfig struct {
	Endpoint    string
	Environment string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             iconfig.GetEnvWithFallback("PULSE_SERVER_HOST", "HOST", "0.0.0.0"),
			Port:             iconfig.GetEnvIntWithFallback("PULSE_SERVER_PORT", "PORT", 8080),
			AllowedOrigins:   iconfig.GetEnvSliceWithFallback("PULSE_ALLOWED_ORIGINS", "ALLOWED_ORIGINS", []string{"*"}),
			AllowEmptyOrigin: iconfig.GetEnvBoolWithFallback("PULSE_ALLOW_EMPTY_ORIGIN", "ALLOW_EMPTY_ORIGIN", false),
			ShutdownTimeout:  iconfig.GetEnvDuration("PULSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:      iconfig.GetEnvWithFallback("PULSE_POSTGRES_URL", "DATABASE_URL", "postgres://localhost:5432/pulse?sslmode=disable"),
			Timezone: iconfig.GetEnv("PULSE_POSTGRES_TIMEZONE", "UTC"),
			MaxConns: iconfig.GetEnvInt("PULSE_POSTGRES_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			URL: iconfig.GetEnvWithFallback("PULSE_REDIS_URL", "REDIS_URL", ""),
		},
		Auth: AuthConfig{
			Secret:     iconfig.GetEnvWithFallback("PULSE_AUTH_SECRET", "AUTH_SECRET", ""),
			Issuer:     iconfig.GetEnv("PULSE_AUTH_ISSUER", "pulse"),
			AccessTTL:  iconfig.GetEnvDuration("PULSE_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: iconfig.GetEnvDuration("PULSE_REFRESH_TTL", 30*24*time.Hour),
		},
		Limits: LimitsConfig{
			SendQueueSize:     iconfig.GetEnvInt("PULSE_SEND_QUEUE_SIZE", 256),
			MaxFrameBytes:     int64(iconfig.GetEnvInt("PULSE_MAX_FRAME_BYTES", 64*1024)),
			FrameErrorsPerMin: iconfig.GetEnvInt("PULSE_FRAME_ERRORS_PER_MIN", 60),
			ConnectsPerMin:    iconfig.GetEnvInt("PULSE_CONNECTS_PER_MIN", 30),
			TypingInterval:    iconfig.GetEnvDuration("PULSE_TYPING_INTERVAL", 500*time.Millisecond),
		},
		Otel: OtelConfig{
			Endpoint:    iconfig.GetEnvWithFallback("PULSE_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Environment: iconfig.GetEnvWithFallback("PULSE_ENVIRONMENT", "ENVIRONMENT", "development"),
		},
	}
}

func (c *Config) IsRedisConfigured() bool {
	return c.Redis.URL != ""
}

func (c *Config) IsOtelConfigured() bool {
	return c.Otel.Endpoint != ""
}
