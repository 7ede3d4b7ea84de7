package store

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Driver      string        `envconfig:"DRIVER" split_words:"true" default:"sqlite"`
	DSN         string        `envconfig:"DSN" split_words:"true"`
	SQLitePath  string        `envconfig:"SQLITE_PATH" split_words:"true" default:"todos.db"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	AutoMigrate bool          `envconfig:"AUTO_MIGRATE" split_words:"true" default:"true"`
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case DriverPostgres:
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("%w: postgres dsn is required", contractx.ErrValidation)
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%w: sqlite path is required", contractx.ErrValidation)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unsupported store driver=%q", contractx.ErrValidation, c.Driver)
	}
	return nil
}
