// Package store persists users and a log of relayed messages in SQLite via
// bun. The relay core never blocks on this package: the message log is fed
// by an ordinary broadcaster subscription.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Open connects to the SQLite database at dsn and ensures the schema
// exists. The parent directory is created for file-backed DSNs.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*bun.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := sqldb.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		log.Warn("store: enable sqlite foreign keys", "error", err)
	}

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func ensureSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*User)(nil),
		(*Message)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("store: create table for %T: %w", model, err)
		}
	}
	return nil
}
