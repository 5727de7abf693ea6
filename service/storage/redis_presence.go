package storage

import (
	"context"
	"strconv"
	"time"

	"CityOps/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OpenRedis connects and pings. Callers may run without redis (nil cache);
// presence then relies on the persisted status alone.
func OpenRedis(ctx context.Context, c RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errs.Wrap(err, "redis ping")
	}
	return rdb, nil
}

// presence key: cityops:presence:<user>
// The TTL bounds how long a crashed process can leave a user looking online.
func presenceKey(userID int64) string {
	return "cityops:presence:" + strconv.FormatInt(userID, 10)
}

// PresenceCache mirrors live online state into redis so the REST side (and
// any external reader) can answer "is this user online" without touching the
// gateway. All writes are best-effort.
type PresenceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresenceCache(rdb *redis.Client, ttl time.Duration) *PresenceCache {
	return &PresenceCache{rdb: rdb, ttl: ttl}
}

// Online sets the user online and renews the TTL. A cache built without a
// redis client is a no-op, so the process runs fine without the broker.
func (c *PresenceCache) Online(ctx context.Context, userID int64) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, presenceKey(userID), "1", c.ttl).Err()
}

// Offline deletes the key.
func (c *PresenceCache) Offline(ctx context.Context, userID int64) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, presenceKey(userID)).Err()
}

// Lookup reports whether the user currently holds a presence key. Without
// redis it reports false and the caller falls back to the persisted status.
func (c *PresenceCache) Lookup(ctx context.Context, userID int64) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}
	_, err := c.rdb.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
