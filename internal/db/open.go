package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// pragmas applied on every connection: FK enforcement, WAL, NORMAL sync and
// a busy timeout so short lock waits don't surface as SQLITE_BUSY.
const pragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

type Config struct {
	Path string // e.g. "./data/tagtracer.db"
}

// DSN builds the modernc.org/sqlite connection string for a file path.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?%s", path, pragmas)
}

// MemoryDSN names a private in-memory database that survives connection
// recycling for as long as the pool stays open.
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", name, pragmas)
}

// Open opens the database at cfg.Path, creating its directory, and applies
// pending migrations.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/tagtracer.db"
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	return OpenDSN(ctx, DSN(cfg.Path))
}

// OpenDSN opens dsn with a single connection, pings it and migrates.
func OpenDSN(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// One connection: SQLite has a single writer anyway and this keeps
	// in-memory databases alive.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
