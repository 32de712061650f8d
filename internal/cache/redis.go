package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/fortuna/nightbox/internal/boxscore"
)

const (
	runLockKey   = "nightbox:run-lock"
	lastBatchKey = "nightbox:last-batch"
	lastPushKey  = "nightbox:last-push"

	defaultLockTTL = 30 * time.Minute
	snapshotTTL    = 7 * 24 * time.Hour
	connectTimeout = 5 * time.Second
)

// ErrRunInProgress is returned by AcquireRunLock when another nightly
// run already holds the lock.
var ErrRunInProgress = errors.New("a report run is already in progress")

// RedisCache holds the run lock and the most recent batch snapshots.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// HealthCheck pings Redis to verify the connection.
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// AcquireRunLock takes the nightly run lock. The lock expires on its
// own so a crashed run cannot wedge the scheduler permanently.
func (rc *RedisCache) AcquireRunLock(ctx context.Context) error {
	ok, err := rc.client.SetNX(ctx, runLockKey, time.Now().UTC().Format(time.RFC3339), defaultLockTTL).Result()
	if err != nil {
		return errors.Wrap(err, "acquire run lock")
	}
	if !ok {
		return ErrRunInProgress
	}
	return nil
}

// ReleaseRunLock releases the nightly run lock.
func (rc *RedisCache) ReleaseRunLock(ctx context.Context) error {
	return rc.client.Del(ctx, runLockKey).Err()
}

// StoreLastBatch keeps the most recent resolved batch for inspection.
func (rc *RedisCache) StoreLastBatch(ctx context.Context, batch boxscore.ReportBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(err, "marshal batch snapshot")
	}
	return rc.client.Set(ctx, lastBatchKey, data, snapshotTTL).Err()
}

// LastBatch returns the most recent stored batch, or redis.Nil when no
// run has completed yet.
func (rc *RedisCache) LastBatch(ctx context.Context) (boxscore.ReportBatch, error) {
	var batch boxscore.ReportBatch
	data, err := rc.client.Get(ctx, lastBatchKey).Bytes()
	if err != nil {
		return batch, err
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return batch, errors.Wrap(err, "unmarshal batch snapshot")
	}
	return batch, nil
}

// StoreLastPush keeps the most recent accepted webhook payload.
func (rc *RedisCache) StoreLastPush(ctx context.Context, payload boxscore.PushPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal push snapshot")
	}
	return rc.client.Set(ctx, lastPushKey, data, snapshotTTL).Err()
}

// LastPush returns the most recent accepted webhook payload.
func (rc *RedisCache) LastPush(ctx context.Context) (boxscore.PushPayload, error) {
	var payload boxscore.PushPayload
	data, err := rc.client.Get(ctx, lastPushKey).Bytes()
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, errors.Wrap(err, "unmarshal push snapshot")
	}
	return payload, nil
}
