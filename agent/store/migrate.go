package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	"github.com/uptrace/bun"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded migrations for the db's dialect.
func Migrate(ctx context.Context, db *bun.DB) error {
	gooseDialect := goose.DialectSQLite3
	dir := "migrations/sqlite"
	if db.Dialect().Name() == dialectPG {
		gooseDialect = goose.DialectPostgres
		dir = "migrations/postgres"
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("%w: migrations dir %s: %v", contractx.ErrStore, dir, err)
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("%w: create migration provider: %v", contractx.ErrStore, err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: apply migrations: %v", contractx.ErrStore, err)
	}
	for _, r := range results {
		log.Debug().
			Str("migration", r.Source.Path).
			Dur("duration", r.Duration).
			Msg("migration applied")
	}
	return nil
}
