package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oggyb/swap-market/internal/config"
	"github.com/oggyb/swap-market/internal/domain"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another request")

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// --- rating summaries ---

func KeyForRating(userID string) string {
	return "rating:avg:" + userID
}

// GetRatingSummaries reads cached summaries for many users in one MGET.
// Users with no cached entry are returned in misses. A cached zero count
// means "known to be unrated" and is a hit.
func (c *RedisCache) GetRatingSummaries(ctx context.Context, userIDs []string) (map[string]domain.RatingSummary, []string, error) {
	hits := make(map[string]domain.RatingSummary, len(userIDs))
	if len(userIDs) == 0 {
		return hits, nil, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = KeyForRating(id)
	}
	vals, err := c.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, userIDs, err
	}

	var misses []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, userIDs[i])
			continue
		}
		s, err := decodeSummary(raw)
		if err != nil {
			misses = append(misses, userIDs[i])
			continue
		}
		hits[userIDs[i]] = s
	}
	return hits, misses, nil
}

// SetRatingSummaries stores summaries with a TTL in one pipeline.
func (c *RedisCache) SetRatingSummaries(ctx context.Context, summaries map[string]domain.RatingSummary, ttl time.Duration) error {
	if len(summaries) == 0 {
		return nil
	}
	pipe := c.Client.Pipeline()
	for id, s := range summaries {
		pipe.Set(ctx, KeyForRating(id), encodeSummary(s), ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateRating drops the cached summary of a user.
func (c *RedisCache) InvalidateRating(ctx context.Context, userID string) error {
	return c.Client.Del(ctx, KeyForRating(userID)).Err()
}

func encodeSummary(s domain.RatingSummary) string {
	return strconv.FormatFloat(s.Average, 'f', -1, 64) + "|" + strconv.FormatInt(s.Count, 10)
}

func decodeSummary(raw string) (domain.RatingSummary, error) {
	avg, count, ok := strings.Cut(raw, "|")
	if !ok {
		return domain.RatingSummary{}, fmt.Errorf("malformed rating entry %q", raw)
	}
	a, err := strconv.ParseFloat(avg, 64)
	if err != nil {
		return domain.RatingSummary{}, err
	}
	n, err := strconv.ParseInt(count, 10, 64)
	if err != nil {
		return domain.RatingSummary{}, err
	}
	return domain.RatingSummary{Average: a, Count: n}, nil
}

// --- geocoding ---

func keyForGeocode(address string) string {
	return "geo:" + address
}

// GetCoordinates returns nil on a cache miss.
func (c *RedisCache) GetCoordinates(ctx context.Context, address string) (*domain.Coordinates, error) {
	raw, err := c.Client.Get(ctx, keyForGeocode(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // cache miss
	} else if err != nil {
		return nil, err
	}
	var coords domain.Coordinates
	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, err
	}
	return &coords, nil
}

func (c *RedisCache) SetCoordinates(ctx context.Context, address string, coords domain.Coordinates, ttl time.Duration) error {
	b, err := json.Marshal(coords)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, keyForGeocode(address), b, ttl).Err()
}

// --- criteria sessions ---

func keyForSession(userID string) string {
	return "criteria:session:" + userID
}

// LoadSession returns the stored criteria blob, or nil when the user has none.
// The TTL is refreshed on access.
func (c *RedisCache) LoadSession(ctx context.Context, userID string, ttl time.Duration) ([]byte, error) {
	key := keyForSession(userID)
	raw, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	_ = c.Client.Expire(ctx, key, ttl).Err()
	return raw, nil
}

func (c *RedisCache) SaveSession(ctx context.Context, userID string, data []byte, ttl time.Duration) error {
	return c.Client.Set(ctx, keyForSession(userID), data, ttl).Err()
}

func (c *RedisCache) DeleteSession(ctx context.Context, userID string) error {
	return c.Client.Del(ctx, keyForSession(userID)).Err()
}

// --- locks ---

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock acquires a short-lived lock on key and returns a release func.
// The release only deletes the key while it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
func (c *RedisCache) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := c.Client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, c.Client, []string{"lock:" + key}, token).Err()
	}, nil
}
