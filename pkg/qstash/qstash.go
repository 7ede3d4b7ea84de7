package qstash

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Config struct {
	URL         string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token       string        `split_words:"true"`
	Destination string        `split_words:"true"`
	Retries     int           `split_words:"true" default:"3"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

// Enabled reports whether publishing is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.Destination) != ""
}

type Client struct {
	baseURL     string
	destination string
	retries     int
	http        *resty.Client
}

type publishResponse struct {
	MessageID string `json:"messageId"`
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("qstash token is required")
	}
	destination := strings.TrimSpace(cfg.Destination)
	if destination == "" {
		return nil, errors.New("qstash destination is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		destination: destination,
		retries:     cfg.Retries,
		http: resty.New().
			SetTimeout(timeout).
			SetAuthToken(token).
			SetHeader("Content-Type", "application/json"),
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Publish sends payload as JSON to the configured destination and returns
// the QStash message id. dedupID is optional.
func (c *Client) Publish(ctx context.Context, payload any, dedupID string) (string, error) {
	req := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&publishResponse{})
	if c.retries >= 0 {
		req.SetHeader("Upstash-Retries", strconv.Itoa(c.retries))
	}
	if dedupID != "" {
		req.SetHeader("Upstash-Deduplication-Id", dedupID)
	}

	resp, err := req.Post(c.baseURL + "/v2/publish/" + c.destination)
	if err != nil {
		return "", fmt.Errorf("qstash publish: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("qstash publish status=%d body=%s", resp.StatusCode(), resp.String())
	}

	out, _ := resp.Result().(*publishResponse)
	if out == nil {
		return "", nil
	}
	return out.MessageID, nil
}
