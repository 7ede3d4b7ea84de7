package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Todo-Agent/pkg/openrouter"
)

const (
	BackendOpenAI = "openai"
	BackendEino   = "eino"
)

// Config describes the reasoning oracle. Loaded with the ORACLE prefix.
type Config struct {
	Backend            string        `envconfig:"BACKEND" split_words:"true" default:"openai"`
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"gpt-4o-mini"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1024"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	MaxRetries         int           `envconfig:"MAX_RETRIES" split_words:"true" default:"2"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
}

func (c Config) Validate() error {
	switch strings.TrimSpace(c.Backend) {
	case BackendOpenAI, BackendEino:
	default:
		return fmt.Errorf("%w: unsupported oracle backend=%q", contractx.ErrValidation, c.Backend)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: oracle api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: oracle model is required", contractx.ErrValidation)
	}
	if c.MaxCompletionToken < 0 {
		return fmt.Errorf("%w: max completion token must be >= 0", contractx.ErrValidation)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within [0, 2]", contractx.ErrValidation)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", contractx.ErrValidation)
	}
	return nil
}

// OpenRouter converts the oracle settings into a client config. Replies are
// always requested as JSON objects.
func (c Config) OpenRouter() openrouterx.Config {
	var maxCompletionToken *int
	if c.MaxCompletionToken > 0 {
		v := c.MaxCompletionToken
		maxCompletionToken = &v
	}

	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              strings.TrimSpace(c.Model),
		MaxCompletionToken: maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		MaxRetries:         c.MaxRetries,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
		JSONMode:           true,
	}
}
