package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/koios/lotmap/internal/config"
	"github.com/koios/lotmap/internal/feed"
	"github.com/koios/lotmap/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps the Redis client for the spot store: one hash of JSON spot
// documents per lot plus a change channel per lot
type Client struct {
	client *redis.Client
	config config.RedisConfig
	logger *zap.Logger
}

// NewClient creates a new Redis client and checks the connection
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Test the connection
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("key_prefix", cfg.KeyPrefix))

	return NewClientFromRedis(rdb, cfg, logger), nil
}

// NewClientFromRedis wraps an existing go-redis client
func NewClientFromRedis(rdb *redis.Client, cfg config.RedisConfig, logger *zap.Logger) *Client {
	return &Client{
		client: rdb,
		config: cfg,
		logger: logger,
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// IsHealthy checks if Redis connection is healthy
func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

// SpotsKey is the hash holding a lot's spot documents
func (c *Client) SpotsKey(lotID string) string {
	return fmt.Sprintf("%slot:%s:spots", c.config.KeyPrefix, lotID)
}

// ChangesChannel is the pub/sub channel announcing changes to a lot
func (c *Client) ChangesChannel(lotID string) string {
	return fmt.Sprintf("%slot:%s:changed", c.config.KeyPrefix, lotID)
}

// Snapshot reads every spot document of a lot, ordered by spot id.
// Documents that are not JSON objects are logged and left out.
func (c *Client) Snapshot(ctx context.Context, lotID string) ([]feed.Record, error) {
	key := c.SpotsKey(lotID)

	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read spots hash %s: %w", key, err)
	}

	records, decodeErrs := decodeSnapshot(fields)
	for id, derr := range decodeErrs {
		c.logger.Warn("Failed to decode spot document",
			zap.String("lot_id", lotID),
			zap.String("spot_id", id),
			zap.Error(derr))
	}

	return records, nil
}

// PutSpots writes the spots of a lot and announces the change once
func (c *Client) PutSpots(ctx context.Context, lotID string, spots []models.Spot) error {
	if len(spots) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(spots)*2)
	for _, spot := range spots {
		body, err := json.Marshal(spot.Document())
		if err != nil {
			return fmt.Errorf("failed to marshal spot %s: %w", spot.ID, err)
		}
		values = append(values, spot.ID, body)
	}

	key := c.SpotsKey(lotID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		pipe.Publish(ctx, c.ChangesChannel(lotID), spots[0].ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write spots to %s: %w", key, err)
	}

	c.logger.Debug("Wrote spots",
		zap.String("lot_id", lotID),
		zap.Int("count", len(spots)))
	return nil
}

// SetStatus rewrites the status of one spot document
func (c *Client) SetStatus(ctx context.Context, lotID, spotID string, status models.SpotStatus) error {
	key := c.SpotsKey(lotID)

	raw, err := c.client.HGet(ctx, key, spotID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("spot %s not found in lot %s", spotID, lotID)
		}
		return fmt.Errorf("failed to read spot %s: %w", spotID, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("failed to decode spot %s: %w", spotID, err)
	}
	doc["status"] = string(status)

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal spot %s: %w", spotID, err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, spotID, body)
		pipe.Publish(ctx, c.ChangesChannel(lotID), spotID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update spot %s: %w", spotID, err)
	}

	c.logger.Debug("Updated spot status",
		zap.String("lot_id", lotID),
		zap.String("spot_id", spotID),
		zap.String("status", string(status)))
	return nil
}

// RemoveSpot deletes one spot document
func (c *Client) RemoveSpot(ctx context.Context, lotID, spotID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, c.SpotsKey(lotID), spotID)
		pipe.Publish(ctx, c.ChangesChannel(lotID), spotID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove spot %s: %w", spotID, err)
	}
	return nil
}

// ClearLot deletes every spot document of a lot
func (c *Client) ClearLot(ctx context.Context, lotID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.SpotsKey(lotID))
		pipe.Publish(ctx, c.ChangesChannel(lotID), "")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear lot %s: %w", lotID, err)
	}
	return nil
}

// decodeSnapshot turns hash fields into records sorted by spot id
func decodeSnapshot(fields map[string]string) ([]feed.Record, map[string]error) {
	ids := make([]string, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]feed.Record, 0, len(ids))
	var decodeErrs map[string]error
	for _, id := range ids {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(fields[id]), &data); err != nil || data == nil {
			if decodeErrs == nil {
				decodeErrs = make(map[string]error)
			}
			if err == nil {
				err = fmt.Errorf("document is null")
			}
			decodeErrs[id] = err
			continue
		}
		records = append(records, feed.Record{ID: id, Data: data})
	}
	return records, decodeErrs
}
