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

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coin-wallet-go/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "coin-wallet:"

// Client is the subset of redis.Cmdable the snapshot cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Snapshots caches derived read views as JSON. A nil *Snapshots, or one
// without a client, misses every read and ignores every write.
type Snapshots struct {
	client Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewSnapshots(client Client, ttl time.Duration, logger *zap.Logger) *Snapshots {
	return &Snapshots{client: client, ttl: ttl, logger: logger}
}

// Connect dials Redis when configured. It returns a disabled cache when
// cfg.Addr is empty.
func Connect(ctx context.Context, cfg models.RedisConfig, logger *zap.Logger) (*Snapshots, func(), error) {
	if !cfg.Enabled() {
		logger.Info("Redis not configured, snapshot cache disabled")
		return NewSnapshots(nil, 0, logger), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("unable to ping redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Snapshot cache connected", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.TTL))
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	return NewSnapshots(client, cfg.TTL, logger), cleanup, nil
}

func (s *Snapshots) enabled() bool {
	return s != nil && s.client != nil
}

func ProgressKey(userId string) string {
	return keyPrefix + "progress:" + userId
}

func VerifyKey(userId string) string {
	return keyPrefix + "verify:" + userId
}

// Get decodes the cached value into dest. Redis failures are logged and
// reported as a miss.
func (s *Snapshots) Get(ctx context.Context, key string, dest any) bool {
	if !s.enabled() {
		return false
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		s.logger.Warn("Snapshot cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.logger.Warn("Discarding undecodable snapshot", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Snapshots) Set(ctx context.Context, key string, value any) {
	if !s.enabled() {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("Failed to encode snapshot", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("Snapshot cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached view of the user.
func (s *Snapshots) Invalidate(ctx context.Context, userId string) {
	if !s.enabled() {
		return
	}
	if err := s.client.Del(ctx, ProgressKey(userId), VerifyKey(userId)).Err(); err != nil {
		s.logger.Warn("Snapshot cache invalidation failed", zap.String("user_id", userId), zap.Error(err))
	}
}

func (s *Snapshots) Ping(ctx context.Context) error {
	if !s.enabled() {
		return nil
	}
	return s.client.Ping(ctx).Err()
}
