package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "Gestiloc"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultAccessTTL       = time.Hour
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultTempCodeTTL     = 15 * time.Minute
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment
// variables.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	DatabaseURL     string
	RedisURL        string
	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	TempCodeTTL     time.Duration
	ShutdownPeriod  time.Duration
}

// Load reads configuration values from the environment and populates a Config
// instance. Postgres, Redis and the signing secrets may be omitted in
// development only; without Postgres the API runs on in-memory stores.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		RefreshSecret:   os.Getenv("REFRESH_SECRET"),
		AccessTokenTTL:  defaultAccessTTL,
		RefreshTokenTTL: defaultRefreshTTL,
		TempCodeTTL:     defaultTempCodeTTL,
		ShutdownPeriod:  defaultShutdownDelay,
	}

	for _, d := range []struct {
		env    string
		target *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL},
		{"TEMP_CODE_TTL", &cfg.TempCodeTTL},
	} {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.env, err)
			}
			*d.target = parsed
		}
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	dev := isDev(cfg.AppEnv)
	if cfg.JWTSecret == "" {
		if !dev {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
		cfg.JWTSecret = "dev-access-secret"
	}
	if cfg.RefreshSecret == "" {
		if !dev {
			return Config{}, fmt.Errorf("REFRESH_SECRET must be set")
		}
		cfg.RefreshSecret = "dev-refresh-secret"
	}
	if !dev {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
