// Package rediscache caches finalized reports and queue status snapshots so
// dashboard reads do not hit the primary store. Entries are serialized with
// msgpack and compressed with lz4 by default.
package rediscache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/go-redis/redis/v8"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
)

// Cache wraps a redis client with the configured serialization format and
// compression algorithm.
type Cache struct {
	cfg    config.RedisConfig
	client *redis.Client
	logger *zap.Logger
}

// NewCache connects to redis and verifies the connection.
func NewCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	logger.Info("Redis cache initialized",
		zap.String("addr", cfg.Addr),
		zap.String("format", cfg.Format),
		zap.String("compression", cfg.Compression),
	)
	return &Cache{cfg: cfg, client: client, logger: logger}, nil
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// SetReport caches a finalized report under its id.
func (c *Cache) SetReport(ctx context.Context, report *entity.ReconciliationReport) error {
	return c.set(ctx, "report:"+report.ID, report)
}

// GetReport returns a cached report, or nil on a miss.
func (c *Cache) GetReport(ctx context.Context, id string) (*entity.ReconciliationReport, error) {
	var report entity.ReconciliationReport
	found, err := c.get(ctx, "report:"+id, &report)
	if err != nil || !found {
		return nil, err
	}
	return &report, nil
}

// SetQueueStatus caches the scheduler's queue snapshot.
func (c *Cache) SetQueueStatus(ctx context.Context, status entity.QueueStatus) error {
	return c.set(ctx, "queue:status", status)
}

// GetQueueStatus returns the cached queue snapshot, or nil on a miss.
func (c *Cache) GetQueueStatus(ctx context.Context) (*entity.QueueStatus, error) {
	var status entity.QueueStatus
	found, err := c.get(ctx, "queue:status", &status)
	if err != nil || !found {
		return nil, err
	}
	return &status, nil
}

func (c *Cache) set(ctx context.Context, key string, value interface{}) error {
	data, err := c.serialize(value)
	if err != nil {
		return err
	}
	return errors.Wrapf(c.client.Set(ctx, key, data, c.cfg.TTL).Err(), "failed to cache %s", key)
}

func (c *Cache) get(ctx context.Context, key string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to read cached %s", key)
	}
	if err := c.deserialize(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) serialize(value interface{}) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch c.cfg.Format {
	case "msgpack":
		data, err = msgpack.Marshal(value)
	default:
		data, err = json.Marshal(value)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize cache entry")
	}

	if c.cfg.Compression == "lz4" {
		return compressLZ4(data)
	}
	return data, nil
}

func (c *Cache) deserialize(data []byte, out interface{}) error {
	if c.cfg.Compression == "lz4" {
		decompressed, err := decompressLZ4(data)
		if err != nil {
			return err
		}
		data = decompressed
	}

	switch c.cfg.Format {
	case "msgpack":
		return errors.Wrap(msgpack.Unmarshal(data, out), "failed to deserialize cache entry")
	default:
		return errors.Wrap(json.Unmarshal(data, out), "failed to deserialize cache entry")
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed to compress cache entry")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finish compression")
	}
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress cache entry")
	}
	return out, nil
}
