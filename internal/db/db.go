// Package db opens the embedded SQLite database that backs the sqlite record
// store and the activity log.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Options struct {
	Path          string
	EnableWAL     bool
	BusyTimeoutMS int
	MaxOpenConns  int
	MaxIdleConns  int
}

func DefaultOptions(path string) Options {
	return Options{
		Path:          path,
		EnableWAL:     true,
		BusyTimeoutMS: 5000,
		MaxOpenConns:  5,
		MaxIdleConns:  5,
	}
}

// Pragmas is what the connection actually ended up with, as reported by
// SQLite.
type Pragmas struct {
	JournalMode   string
	ForeignKeys   bool
	BusyTimeoutMS int
	Synchronous   int
}

func (o Options) withDefaults() Options {
	if o.BusyTimeoutMS <= 0 {
		o.BusyTimeoutMS = 5000
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 5
	}
	if o.MaxIdleConns < 0 {
		o.MaxIdleConns = 0
	}
	return o
}

// dsn builds a modernc connection string. Every pooled connection runs the
// same pragmas, so they go in the DSN rather than through Exec.
func (o Options) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.BusyTimeoutMS))
	if o.EnableWAL {
		q.Add("_pragma", "journal_mode(WAL)")
		// NORMAL is durable across application crashes in WAL mode.
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	q.Set("_txlock", "immediate")
	return "file:" + filepath.ToSlash(filepath.Clean(o.Path)) + "?" + q.Encode()
}

func Open(opts Options) (*sql.DB, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	opts = opts.withDefaults()
	cleanPath := filepath.Clean(opts.Path)

	db, err := sql.Open("sqlite", opts.dsn())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxIdleTime(30 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", cleanPath, err)
	}
	return db, nil
}

// ReadPragmas queries the settings of one pooled connection.
func ReadPragmas(ctx context.Context, db *sql.DB) (Pragmas, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return Pragmas{}, fmt.Errorf("acquire sqlite connection: %w", err)
	}
	defer conn.Close()

	var (
		p  Pragmas
		fk int
	)
	if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&p.JournalMode); err != nil {
		return Pragmas{}, fmt.Errorf("query journal_mode pragma: %w", err)
	}
	if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys;").Scan(&fk); err != nil {
		return Pragmas{}, fmt.Errorf("query foreign_keys pragma: %w", err)
	}
	if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout;").Scan(&p.BusyTimeoutMS); err != nil {
		return Pragmas{}, fmt.Errorf("query busy_timeout pragma: %w", err)
	}
	if err := conn.QueryRowContext(ctx, "PRAGMA synchronous;").Scan(&p.Synchronous); err != nil {
		return Pragmas{}, fmt.Errorf("query synchronous pragma: %w", err)
	}
	p.JournalMode = strings.ToLower(p.JournalMode)
	p.ForeignKeys = fk == 1
	return p, nil
}
