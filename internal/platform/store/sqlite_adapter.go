package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

// sqliteAdapter wraps *sql.DB and implements RowQuerier + TxRunner
// it emits debug-level query trace events when cfg.LogSQL is set
type sqliteAdapter struct {
	db  *sql.DB
	cfg Config
	s   *Store
}

func newSQLiteAdapter(db *sql.DB, cfg Config, s *Store) *sqliteAdapter {
	return &sqliteAdapter{db: db, cfg: cfg, s: s}
}

func (a *sqliteAdapter) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

func (a *sqliteAdapter) Close() error { return a.db.Close() }

func (a *sqliteAdapter) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	start := time.Now()
	res, err := a.db.ExecContext(ctx, query, args...)
	a.emit(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return sqliteTag{res}, nil
}

func (a *sqliteAdapter) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := a.db.QueryContext(ctx, query, args...)
	a.emit(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return sqliteRows{rs}, nil
}

func (a *sqliteAdapter) QueryRow(ctx context.Context, query string, args ...any) Row {
	start := time.Now()
	r := a.db.QueryRowContext(ctx, query, args...)
	return sqliteRow{
		r: r,
		after: func(scanErr error) {
			a.emit(ctx, query, args, start, scanErr)
		},
	}
}

func (a *sqliteAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	q := sqliteTxQuerier{tx: tx, a: a}
	if err := fn(q); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// emit logs a query event when tracing is enabled
func (a *sqliteAdapter) emit(ctx context.Context, query string, args []any, start time.Time, err error) {
	if a == nil || !a.cfg.LogSQL || a.s == nil {
		return
	}
	elapsedUS := time.Since(start).Microseconds()
	slow := a.cfg.SlowQueryMs >= 0 && elapsedUS >= int64(a.cfg.SlowQueryMs)*1000
	ev := a.s.Log.Debug().Str("sql", query).Int64("elapsed_us", elapsedUS).Bool("slow", slow)
	if err != nil {
		ev = a.s.Log.Error().Err(err).Str("sql", query).Int64("elapsed_us", elapsedUS)
	}
	ev.Msg("query")
}

// adapters for database/sql to our tiny Row/Rows/CommandTag

type sqliteRow struct {
	r     *sql.Row
	after func(error)
}

func (x sqliteRow) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type sqliteRows struct{ r *sql.Rows }

func (x sqliteRows) Next() bool            { return x.r.Next() }
func (x sqliteRows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x sqliteRows) Err() error            { return x.r.Err() }
func (x sqliteRows) Close()                { _ = x.r.Close() }
func (x sqliteRows) Columns() []string {
	cols, err := x.r.Columns()
	if err != nil {
		return nil
	}
	return cols
}

type sqliteTag struct{ res sql.Result }

func (t sqliteTag) String() string {
	n, _ := t.res.RowsAffected()
	return strconv.FormatInt(n, 10)
}

func (t sqliteTag) RowsAffected() int64 {
	n, _ := t.res.RowsAffected()
	return n
}

// sqliteTxQuerier uses *sql.Tx to satisfy RowQuerier inside a Tx
type sqliteTxQuerier struct {
	tx *sql.Tx
	a  *sqliteAdapter
}

func (t sqliteTxQuerier) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, query, args...)
	t.a.emit(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return sqliteTag{res}, nil
}

func (t sqliteTxQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := t.tx.QueryContext(ctx, query, args...)
	t.a.emit(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return sqliteRows{rs}, nil
}

func (t sqliteTxQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	start := time.Now()
	r := t.tx.QueryRowContext(ctx, query, args...)
	return sqliteRow{
		r: r,
		after: func(scanErr error) {
			t.a.emit(ctx, query, args, start, scanErr)
		},
	}
}
