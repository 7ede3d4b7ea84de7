package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	historyx "github.com/tanpawarit/Chative-Todo-Agent/agent/history"
)

// loadPageSize bounds how many entries one LRANGE call returns.
const loadPageSize = 128

type upstashResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// UpstashJournal keeps sessions in Upstash Redis through its REST API.
type UpstashJournal struct {
	baseURL   string
	client    *resty.Client
	keyPrefix string
	ttl       time.Duration
}

func NewUpstashJournal(cfg Config) (*UpstashJournal, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.UpstashURL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.UpstashToken)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	keyPrefix := cfg.KeyPrefix
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultKeyPrefix
	}

	client := resty.New().
		SetTimeout(timeout).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json")

	return &UpstashJournal{
		baseURL:   baseURL,
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

func (j *UpstashJournal) Append(ctx context.Context, sessionID string, entry historyx.Entry) error {
	key, err := sessionKey(j.keyPrefix, sessionID)
	if err != nil {
		return err
	}
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	if _, err := j.exec(ctx, []any{"RPUSH", key, payload}); err != nil {
		return fmt.Errorf("upstash append session=%s: %w", sessionID, err)
	}
	if j.ttl > 0 {
		if _, err := j.exec(ctx, []any{"EXPIRE", key, ttlSeconds(j.ttl)}); err != nil {
			return fmt.Errorf("upstash expire session=%s: %w", sessionID, err)
		}
	}
	return nil
}

func (j *UpstashJournal) Load(ctx context.Context, sessionID string) ([]historyx.Entry, error) {
	key, err := sessionKey(j.keyPrefix, sessionID)
	if err != nil {
		return nil, err
	}

	var raw []string
	for start := 0; ; start += loadPageSize {
		resp, err := j.exec(ctx, []any{"LRANGE", key, start, start + loadPageSize - 1})
		if err != nil {
			return nil, fmt.Errorf("upstash load session=%s: %w", sessionID, err)
		}

		var page []string
		if len(resp.Result) > 0 && string(resp.Result) != "null" {
			if err := json.Unmarshal(resp.Result, &page); err != nil {
				return nil, fmt.Errorf("decode lrange result: %w", err)
			}
		}
		raw = append(raw, page...)
		if len(page) < loadPageSize {
			break
		}
	}
	return decodeEntries(raw)
}

func (j *UpstashJournal) Delete(ctx context.Context, sessionID string) error {
	key, err := sessionKey(j.keyPrefix, sessionID)
	if err != nil {
		return err
	}
	_, err = j.exec(ctx, []any{"DEL", key})
	return err
}

func (j *UpstashJournal) Close() error { return nil }

func (j *UpstashJournal) exec(ctx context.Context, command []any) (*upstashResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	resp, err := j.client.R().
		SetContext(ctx).
		SetBody(command).
		Post(j.baseURL)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}

	raw := resp.Body()
	if resp.IsError() {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode(), string(raw))
	}

	var parsed upstashResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}
