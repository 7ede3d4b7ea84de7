package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	historyx "github.com/tanpawarit/Chative-Todo-Agent/agent/history"
)

// RedisJournal keeps each session as a Redis list, one JSON entry per element.
type RedisJournal struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisJournal(cfg Config) (*RedisJournal, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(cfg.RedisURL))
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	return NewRedisJournalWithClient(redis.NewClient(opts), cfg.KeyPrefix, cfg.TTL), nil
}

func NewRedisJournalWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisJournal {
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisJournal{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (j *RedisJournal) Append(ctx context.Context, sessionID string, entry historyx.Entry) error {
	key, err := sessionKey(j.keyPrefix, sessionID)
	if err != nil {
		return err
	}
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	_, err = j.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		if j.ttl > 0 {
			pipe.Expire(ctx, key, j.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append session=%s: %w", sessionID, err)
	}
	return nil
}

func (j *RedisJournal) Load(ctx context.Context, sessionID string) ([]historyx.Entry, error) {
	key, err := sessionKey(j.keyPrefix, sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := j.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load session=%s: %w", sessionID, err)
	}
	return decodeEntries(raw)
}

func (j *RedisJournal) Delete(ctx context.Context, sessionID string) error {
	key, err := sessionKey(j.keyPrefix, sessionID)
	if err != nil {
		return err
	}
	if err := j.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete session=%s: %w", sessionID, err)
	}
	return nil
}

func (j *RedisJournal) Close() error {
	return j.client.Close()
}
