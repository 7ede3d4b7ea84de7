package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
)

const dialectPG = dialect.PG

// foldFunc is a sqlite scalar that lower-cases with Unicode rules; the
// built-in LIKE only folds ASCII.
const foldFunc = "todo_fold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, foldScalar)
}

func foldScalar(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Store is a TodoStore that owns a connection.
type Store interface {
	contractx.TodoStore
	Close() error
}

var (
	_ Store = (*BunStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open builds the store selected by cfg.Driver and applies migrations when
// cfg.AutoMigrate is set.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithDSN(strings.TrimSpace(cfg.DSN)),
			pgdriver.WithTimeout(cfg.Timeout),
		))
		return openBun(ctx, bun.NewDB(sqldb, pgdialect.New()), cfg)
	default:
		sqldb, err := sql.Open("sqlite", sqliteDSN(cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("%w: open sqlite: %v", contractx.ErrStore, err)
		}
		// one writer keeps sqlite from returning SQLITE_BUSY
		sqldb.SetMaxOpenConns(1)
		return openBun(ctx, bun.NewDB(sqldb, sqlitedialect.New()), cfg)
	}
}

func openBun(ctx context.Context, db *bun.DB, cfg Config) (*BunStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", contractx.ErrStore, cfg.Driver, err)
	}
	if cfg.AutoMigrate {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return NewBunStore(db), nil
}

func sqliteDSN(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
}

// TodoModel is the bun mapping of the todos table.
type TodoModel struct {
	bun.BaseModel `bun:"table:todos,alias:t"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Todo      string    `bun:"todo,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (m TodoModel) toContract() contractx.Todo {
	return contractx.Todo{
		ID:        m.ID,
		Todo:      m.Todo,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

// BunStore implements TodoStore over bun for Postgres and SQLite.
type BunStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db, now: time.Now}
}

func (s *BunStore) DB() *bun.DB {
	return s.db
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) List(ctx context.Context) ([]contractx.Todo, error) {
	var rows []TodoModel
	if err := s.db.NewSelect().Model(&rows).Order("t.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list todos: %v", contractx.ErrStore, err)
	}
	return toContractList(rows), nil
}

func (s *BunStore) Create(ctx context.Context, text string) (int64, error) {
	now := s.now().UTC()
	row := &TodoModel{
		Todo:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: create todo: %v", contractx.ErrStore, err)
	}
	return row.ID, nil
}

// Search returns todos whose text contains search, ignoring case. The
// pattern is escaped so search is matched literally.
func (s *BunStore) Search(ctx context.Context, search string) ([]contractx.Todo, error) {
	pattern := "%" + escapeLike(search) + "%"

	var rows []TodoModel
	q := s.db.NewSelect().Model(&rows).Order("t.id ASC")
	if s.db.Dialect().Name() == dialectPG {
		q = q.Where("t.todo ILIKE ?", pattern)
	} else {
		q = q.Where(foldFunc+"(t.todo) LIKE "+foldFunc+"(?) ESCAPE '\\'", pattern)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: search todos: %v", contractx.ErrStore, err)
	}
	return toContractList(rows), nil
}

func (s *BunStore) DeleteByID(ctx context.Context, id int64) error {
	if _, err := s.db.NewDelete().Model((*TodoModel)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("%w: delete todo id=%d: %v", contractx.ErrStore, id, err)
	}
	return nil
}

func toContractList(rows []TodoModel) []contractx.Todo {
	out := make([]contractx.Todo, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toContract())
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
