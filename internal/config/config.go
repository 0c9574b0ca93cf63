/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"coin-wallet-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	busyTimeout, err := getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	readTimeout, err := getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	accrualInterval, err := getEnvDuration("ACCRUAL_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := getEnvDuration("REDIS_TTL", time.Minute)
	if err != nil {
		return nil, err
	}

	authMode := models.AuthMode(strings.ToLower(getEnvString("AUTH_MODE", string(models.AuthModeJWT))))
	switch authMode {
	case models.AuthModeJWT, models.AuthModeHeader:
	default:
		return nil, fmt.Errorf("invalid AUTH_MODE %q: expected jwt or header", authMode)
	}

	cfg := &models.Config{
		Log: models.LogConfig{
			Level:       getEnvString("LOG_LEVEL", "info"),
			Development: getEnvBool("LOG_DEVELOPMENT", false),
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "wallet.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":8080"),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			EnableH2C:       getEnvBool("SERVER_ENABLE_H2C", false),
			GinMode:         getEnvString("GIN_MODE", "release"),
		},
		Auth: models.AuthConfig{
			Mode:          authMode,
			JWTSecret:     os.Getenv("JWT_SECRET"),
			JWTIssuer:     os.Getenv("JWT_ISSUER"),
			TrustedHeader: getEnvString("AUTH_TRUSTED_HEADER", "X-User-Id"),
		},
		Accrual: models.AccrualConfig{
			Enabled:  getEnvBool("ACCRUAL_ENABLED", true),
			Interval: accrualInterval,
		},
		Requirements: models.RequirementsConfig{
			ModulesFile: os.Getenv("MODULES_FILE"),
			LevelsFile:  os.Getenv("LEVELS_FILE"),
		},
		Redis: models.RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      cacheTTL,
		},
		Kafka: models.KafkaConfig{
			Brokers:  getEnvList("KAFKA_BROKERS", nil),
			Topic:    getEnvString("KAFKA_TOPIC", "wallet.transactions"),
			ClientId: getEnvString("KAFKA_CLIENT_ID", "coin-wallet"),
		},
	}

	if cfg.Auth.Mode == models.AuthModeJWT && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when AUTH_MODE is jwt")
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
