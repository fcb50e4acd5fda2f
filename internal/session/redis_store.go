package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig describes the Redis connection for session persistence.
type RedisStoreConfig struct {
	Address  string
	Password string
	DB       int
	Key      string        // hash key holding every session; default "chatbridge:sessions"
	TTL      time.Duration // expiry of the whole hash; 0 = none
}

// RedisStore keeps all sessions in one Redis hash (field = session id).
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address must not be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newRedisStore(client, cfg), nil
}

func newRedisStore(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	key := cfg.Key
	if key == "" {
		key = "chatbridge:sessions"
	}
	return &RedisStore{client: client, key: key, ttl: cfg.TTL}
}

// SaveAll implements Store. The hash is replaced atomically.
func (s *RedisStore) SaveAll(ctx context.Context, sessions []Session) error {
	fields := make(map[string]any, len(sessions))
	for _, sess := range sessions {
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session %s: %w", sess.ID, err)
		}
		fields[sess.ID] = data
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields)
			if s.ttl > 0 {
				pipe.Expire(ctx, s.key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save sessions to redis: %w", err)
	}
	return nil
}

// LoadAll implements Store.
func (s *RedisStore) LoadAll(ctx context.Context) ([]Session, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions from redis: %w", err)
	}

	sessions := make([]Session, 0, len(values))
	for id, raw := range values {
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			continue // Skip invalid entries
		}
		if sess.ID == "" {
			sess.ID = id
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
