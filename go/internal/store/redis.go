package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds configuration for the Redis backend
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key names the hash holding the tree; change notifications go to
	// Key + ":changes".
	Key string
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr: "localhost:6379",
		Key:  "poker:sessions",
	}
}

// Redis keeps the tree in one hash and announces writes on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	key     string
	channel string
}

type redisChange struct {
	Key string `json:"key"`
	Op  Op     `json:"op"`
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().Str("addr", config.Addr).Str("key", config.Key).Msg("connected to Redis")
	return &Redis{
		client:  client,
		key:     config.Key,
		channel: config.Key + ":changes",
	}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.HGet(ctx, r.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (r *Redis) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	out := make(map[string][]byte)
	for key, value := range all {
		if strings.HasPrefix(key, prefix) {
			out[key] = []byte(value)
		}
	}
	return out, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	change, err := json.Marshal(redisChange{Key: key, Op: OpPut})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key, key, value)
		pipe.Publish(ctx, r.channel, change)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.deleteKeys(ctx, []string{key})
}

func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	fields, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}

	var keys []string
	for _, field := range fields {
		if strings.HasPrefix(field, prefix) {
			keys = append(keys, field)
		}
	}
	return r.deleteKeys(ctx, keys)
}

func (r *Redis) deleteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.key, keys...)
		for _, key := range keys {
			change, err := json.Marshal(redisChange{Key: key, Op: OpDelete})
			if err != nil {
				return err
			}
			pipe.Publish(ctx, r.channel, change)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %d keys: %w", len(keys), err)
	}
	return nil
}

func (r *Redis) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan Event, watchBufferSize)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change redisChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("ignoring malformed change")
					continue
				}
				if !strings.HasPrefix(change.Key, prefix) {
					continue
				}
				select {
				case out <- Event{Key: change.Key, Op: change.Op}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
