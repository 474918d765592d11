package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const relayKeyPrefix = "nostrmux:relay:"
const relaySetKey = "nostrmux:relays"
const configKeyPrefix = "nostrmux:config:"

// RedisStore is the alternate backend, selected when NOSTRMUX_REDIS_URL is set,
// mirroring the teacher's NewRedisCache connection-pool tuning.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects to redisURL and verifies reachability with a PING.
func OpenRedis(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("store: invalid redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// LoadRelays returns every relay referenced by the relay-url set.
func (s *RedisStore) LoadRelays(ctx context.Context) ([]Relay, error) {
	urls, err := s.client.SMembers(ctx, relaySetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: load relay set: %w", err)
	}

	out := make([]Relay, 0, len(urls))
	for _, url := range urls {
		raw, err := s.client.Get(ctx, relayKeyPrefix+url).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: load relay %s: %w", url, err)
		}
		var r Relay
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("store: decode relay %s: %w", url, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// SaveRelay writes a relay's JSON blob keyed by url and tracks it in the set.
func (s *RedisStore) SaveRelay(ctx context.Context, r Relay) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode relay: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, relayKeyPrefix+r.URL, raw, 0)
	pipe.SAdd(ctx, relaySetKey, r.URL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: save relay: %w", err)
	}
	return nil
}

// DeleteRelay removes a relay's key and set membership.
func (s *RedisStore) DeleteRelay(ctx context.Context, url string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, relayKeyPrefix+url)
	pipe.SRem(ctx, relaySetKey, url)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: delete relay: %w", err)
	}
	return nil
}

// LoadConfig returns the config for ownerID, creating a default if absent.
func (s *RedisStore) LoadConfig(ctx context.Context, ownerID string) (Config, error) {
	raw, err := s.client.Get(ctx, configKeyPrefix+ownerID).Result()
	if errors.Is(err, redis.Nil) {
		cfg := Config{OwnerID: ownerID}
		if saveErr := s.SaveConfig(ctx, cfg); saveErr != nil {
			return Config{}, saveErr
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("store: load config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("store: decode config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config blob keyed by owner id.
func (s *RedisStore) SaveConfig(ctx context.Context, c Config) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: encode config: %w", err)
	}
	if err := s.client.Set(ctx, configKeyPrefix+c.OwnerID, raw, 0).Err(); err != nil {
		return fmt.Errorf("store: save config: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
