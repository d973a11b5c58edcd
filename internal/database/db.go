package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"task-tracker/pkg/logger"
)

// Supported values of DB_DRIVER.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// DB wraps the connection pool together with its SQL dialect.
type DB struct {
	*sql.DB
	Driver string
}

// Open opens a pool for the given driver and checks connectivity.
func Open(ctx context.Context, driver, dsn string, poolSize int) (*DB, error) {
	if driver != Postgres && driver != SQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == SQLite && strings.Contains(dsn, ":memory:") {
		// every connection to :memory: is a separate database
		poolSize = 1
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(max(poolSize/2, 1))
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info(ctx, "Database pool initialized", "driver", driver, "max_open", poolSize)
	return &DB{DB: db, Driver: driver}, nil
}

// Rebind rewrites ? placeholders into the driver's positional form.
func (d *DB) Rebind(query string) string {
	if d.Driver != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// MigrateOrCreateSchema creates the tasks table and its index when missing.
func MigrateOrCreateSchema(ctx context.Context, d *DB) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	intType := "INTEGER"
	if d.Driver == Postgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
		intType = "BIGINT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			` + idColumn + `,
			user_id ` + intType + ` NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			date_of_creation TEXT NOT NULL,
			deadline TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			category_id ` + intType + `,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks (user_id, created_at)`,
	}
	for _, s := range stmts {
		if _, err := d.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	logger.Info(ctx, "Schema ready", "driver", d.Driver)
	return nil
}
