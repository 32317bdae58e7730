package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" //nolint:revive // driver registration only
)

func init() {
	sqlitevec.Auto()
}

// openSQLite opens the database file, applies pragmas, and wraps the handle
// with the sql adapter. Connection guardrails mirror the retry-with-backoff
// shape used for remote databases even though sqlite is local: a file lock
// held by another process (e.g. a concurrent backfill run) looks identical
// to a slow dial from the caller's point of view.
func openSQLite(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite: empty path")
	}

	busyMS := cfg.BusyTimeoutMS
	if busyMS <= 0 {
		busyMS = 5000
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL", cfg.Path, busyMS)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// sqlite only tolerates one writer; keep the pool serialized so Tx
	// doesn't hand two goroutines separate connections mid-transaction
	db.SetMaxOpenConns(1)

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 6
	}
	pingTO := cfg.PingTimeout
	if pingTO <= 0 {
		pingTO = 3 * time.Second
	}

	backoff := 100 * time.Millisecond
	const backoffCeiling = 2 * time.Second

	var lastErr error
	for range retries {
		toCtx, cancel := context.WithTimeout(ctx, pingTO)
		lastErr = db.PingContext(toCtx)
		cancel()

		if lastErr == nil {
			a := newSQLiteAdapter(db, cfg, s)
			return a, nil
		}
		if ctx.Err() != nil {
			_ = db.Close()
			return nil, ctx.Err()
		}
		time.Sleep(backoff)
		if backoff < backoffCeiling {
			backoff *= 2
			if backoff > backoffCeiling {
				backoff = backoffCeiling
			}
		}
	}

	_ = db.Close()
	return nil, fmt.Errorf("sqlite ping failed after %d attempts: %w", retries, lastErr)
}
