// Copyright 2026 The OpenEnroll Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	PlatformDB    PlatformDBConfig
	TenantStorage TenantStorageConfig
	Auth          AuthConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	PlatformKey  string // bearer key guarding tenant lifecycle endpoints
}

// PlatformDBConfig holds the platform catalog database configuration
type PlatformDBConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// TenantStorageConfig holds per-tenant storage configuration
type TenantStorageConfig struct {
	Root           string        // directory holding one SQLite artifact per tenant
	MaxOpenHandles int           // registry bound M
	BusyTimeout    time.Duration // SQLite busy_timeout per handle
	ReleaseTimeout time.Duration // how long Release waits for in-flight work
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret          string
	TokenTTL           time.Duration
	Argon2Memory       uint32
	Argon2Iterations   uint32
	Argon2Parallelism  uint8
	Argon2SaltLength   uint32
	Argon2KeyLength    uint32
	LockoutMaxAttempts int
	LockoutDuration    time.Duration
}

// RedisConfig holds the revoked-token store configuration. With Enabled false
// revocations are tracked in process memory, which is only safe for a single
// replica.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			PlatformKey:  getEnv("PLATFORM_API_KEY", ""),
		},
		PlatformDB: PlatformDBConfig{
			Host:         getEnv("PLATFORM_DB_HOST", "localhost"),
			Port:         getEnv("PLATFORM_DB_PORT", "5432"),
			User:         getEnv("PLATFORM_DB_USER", "openenroll"),
			Password:     getEnv("PLATFORM_DB_PASSWORD", ""),
			Database:     getEnv("PLATFORM_DB_NAME", "openenroll"),
			SSLMode:      getEnv("PLATFORM_DB_SSLMODE", "disable"),
			MaxOpenConns: parseInt("PLATFORM_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: parseInt("PLATFORM_DB_MAX_IDLE_CONNS", 5),
		},
		TenantStorage: TenantStorageConfig{
			Root:           getEnv("TENANT_STORAGE_ROOT", "./data/tenants"),
			MaxOpenHandles: parseInt("TENANT_MAX_OPEN_HANDLES", 50),
			BusyTimeout:    parseDuration("TENANT_BUSY_TIMEOUT", "5s"),
			ReleaseTimeout: parseDuration("TENANT_RELEASE_TIMEOUT", "30s"),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("AUTH_JWT_SECRET", ""),
			TokenTTL:           parseDuration("AUTH_TOKEN_TTL", "24h"),
			Argon2Memory:       uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:   uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism:  uint8(parseInt("ARGON2_PARALLELISM", 4)),
			Argon2SaltLength:   uint32(parseInt("ARGON2_SALT_LENGTH", 16)),
			Argon2KeyLength:    uint32(parseInt("ARGON2_KEY_LENGTH", 32)),
			LockoutMaxAttempts: parseInt("LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration:    parseDuration("LOCKOUT_DURATION", "15m"),
		},
		Redis: RedisConfig{
			Enabled:  parseBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt("REDIS_DB", 0),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "openenroll"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: parseFloat("RATE_LIMIT_RPS", 20),
			Burst:             parseInt("RATE_LIMIT_BURST", 40),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if cfg.TenantStorage.MaxOpenHandles < 1 {
		return nil, fmt.Errorf("TENANT_MAX_OPEN_HANDLES must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func parseInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func parseFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func parseBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func parseDuration(key, fallback string) time.Duration {
	value := getEnv(key, fallback)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
