// internal/repository/snapshot_cache.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"makino-adapter/internal/config"
	"makino-adapter/internal/model"
)

// snapshotCache implements SnapshotCache on Redis
type snapshotCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", client.Options().Addr))
	return client, nil
}

// NewSnapshotCache creates a snapshot cache over a Redis client
func NewSnapshotCache(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) SnapshotCache {
	return &snapshotCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// SnapshotKey is the key of the last snapshot of a machine
func SnapshotKey(machineID string) string {
	return fmt.Sprintf("makino:%s:snapshot", machineID)
}

// EventChannel is the pub/sub channel carrying the events of a machine
func EventChannel(machineID string) string {
	return fmt.Sprintf("makino:%s:events", machineID)
}

// Put stores the snapshot under the machine key
func (c *snapshotCache) Put(ctx context.Context, machineID string, data *model.ToolLifeData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := c.client.Set(ctx, SnapshotKey(machineID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// Get loads the cached snapshot of a machine
func (c *snapshotCache) Get(ctx context.Context, machineID string) (*model.ToolLifeData, error) {
	payload, err := c.client.Get(ctx, SnapshotKey(machineID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read cached snapshot: %w", err)
	}

	var data model.ToolLifeData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to decode cached snapshot: %w", err)
	}
	return &data, nil
}

// PublishEvent publishes an adapter event on the machine channel
func (c *snapshotCache) PublishEvent(ctx context.Context, event model.AdapterEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := c.client.Publish(ctx, EventChannel(event.MachineID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	c.logger.Debug("Event published",
		zap.String("event_type", string(event.EventType)),
		zap.String("channel", EventChannel(event.MachineID)),
	)
	return nil
}
