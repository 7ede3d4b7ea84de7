package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	historyx "github.com/tanpawarit/Chative-Todo-Agent/agent/history"
)

var (
	ErrInvalidSession = errors.New("session id is empty")
	ErrCorruptEntry   = errors.New("journal entry is corrupt")
)

const (
	BackendNone    = "none"
	BackendRedis   = "redis"
	BackendUpstash = "upstash"

	defaultKeyPrefix = "todo-agent:session:"
	defaultTTL       = 7 * 24 * time.Hour
)

// Journal is a transcript journal that can also drop a session.
type Journal interface {
	contractx.Journal
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// Config selects the journal backend. Loaded with the JOURNAL prefix.
type Config struct {
	Backend      string        `envconfig:"BACKEND" split_words:"true" default:"none"`
	RedisURL     string        `envconfig:"REDIS_URL" split_words:"true" default:"redis://localhost:6379/0"`
	UpstashURL   string        `envconfig:"UPSTASH_URL" split_words:"true"`
	UpstashToken string        `envconfig:"UPSTASH_TOKEN" split_words:"true"`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" split_words:"true" default:"todo-agent:session:"`
	TTL          time.Duration `envconfig:"TTL" split_words:"true" default:"168h"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func (c Config) Validate() error {
	switch strings.TrimSpace(c.Backend) {
	case "", BackendNone:
	case BackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("%w: redis url is required", contractx.ErrValidation)
		}
	case BackendUpstash:
		if strings.TrimSpace(c.UpstashURL) == "" || strings.TrimSpace(c.UpstashToken) == "" {
			return fmt.Errorf("%w: upstash url and token are required", contractx.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unsupported journal backend=%q", contractx.ErrValidation, c.Backend)
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: journal ttl must be >= 0", contractx.ErrValidation)
	}
	return nil
}

// Open returns the configured journal.
func Open(cfg Config) (Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.TrimSpace(cfg.Backend) {
	case BackendRedis:
		return NewRedisJournal(cfg)
	case BackendUpstash:
		return NewUpstashJournal(cfg)
	default:
		return NopJournal{}, nil
	}
}

// NopJournal keeps nothing. Sessions cannot be resumed.
type NopJournal struct{}

func (NopJournal) Append(context.Context, string, historyx.Entry) error { return nil }

func (NopJournal) Load(context.Context, string) ([]historyx.Entry, error) { return nil, nil }

func (NopJournal) Delete(context.Context, string) error { return nil }

func (NopJournal) Close() error { return nil }

func sessionKey(prefix, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return prefix + sessionID, nil
}

func encodeEntry(e historyx.Entry) (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal journal entry: %w", err)
	}
	return string(raw), nil
}

func decodeEntries(raw []string) ([]historyx.Entry, error) {
	out := make([]historyx.Entry, 0, len(raw))
	for i, item := range raw {
		var e historyx.Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("%w: index=%d: %v", ErrCorruptEntry, i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
