package orchestrator

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	historyx "github.com/tanpawarit/Chative-Todo-Agent/agent/history"
)

const DefaultMaxSteps = 25

// Config is the loop policy, loaded with the AGENT prefix.
type Config struct {
	// MaxSteps bounds oracle queries per user turn. 0 disables the bound.
	MaxSteps int `envconfig:"MAX_STEPS" split_words:"true" default:"25"`
	// HistoryWindow caps the entries sent to the oracle. 0 sends everything.
	HistoryWindow     int    `envconfig:"HISTORY_WINDOW" split_words:"true" default:"0"`
	StrictStoreErrors bool   `envconfig:"STRICT_STORE_ERRORS" split_words:"true" default:"false"`
	SessionID         string `envconfig:"SESSION_ID" split_words:"true"`
}

func (c Config) Validate() error {
	if c.MaxSteps < 0 {
		return fmt.Errorf("%w: max steps must be >= 0", contractx.ErrValidation)
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("%w: history window must be >= 0", contractx.ErrValidation)
	}
	return nil
}

// Options translates the policy into orchestrator options.
func (c Config) Options() []Option {
	opts := []Option{
		WithMaxSteps(c.MaxSteps),
		WithStrictStoreErrors(c.StrictStoreErrors),
	}
	if c.HistoryWindow > 0 {
		opts = append(opts, WithWindow(historyx.KeepRecent{Max: c.HistoryWindow}))
	}
	if id := strings.TrimSpace(c.SessionID); id != "" {
		opts = append(opts, WithSessionID(id))
	}
	return opts
}
