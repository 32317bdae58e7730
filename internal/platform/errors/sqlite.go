package errors

// SQLite-specific helpers for mapping mattn/go-sqlite3 errors to project
// ErrorCode, extracting fields, and retry semantics. Mirrors the shape of a
// Postgres error-mapping layer one driver down: same sentinel-code classification,
// same Retryable() contract, different vocabulary (SQLite has no SQLSTATE,
// just a small set of primary result codes plus an "extended code").

import (
	"context"
	stderrs "errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// ExtractSQLiteError returns (sqlite3.Error, true) if the root cause is a sqlite3.Error
func ExtractSQLiteError(err error) (sqlite3.Error, bool) {
	var sErr sqlite3.Error
	if stderrs.As(Root(err), &sErr) {
		return sErr, true
	}
	return sqlite3.Error{}, false
}

// IsBusy reports whether the error is SQLITE_BUSY (another connection holds the write lock)
func IsBusy(err error) bool {
	sErr, ok := ExtractSQLiteError(err)
	return ok && sErr.Code == sqlite3.ErrBusy
}

// IsLocked reports whether the error is SQLITE_LOCKED (a conflicting lock within the same connection)
func IsLocked(err error) bool {
	sErr, ok := ExtractSQLiteError(err)
	return ok && sErr.Code == sqlite3.ErrLocked
}

// IsUniqueConstraint reports whether the error is a unique constraint violation
func IsUniqueConstraint(err error) bool {
	sErr, ok := ExtractSQLiteError(err)
	return ok && sErr.Code == sqlite3.ErrConstraint && sErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// IsCheckConstraint reports whether the error is a check constraint violation
func IsCheckConstraint(err error) bool {
	sErr, ok := ExtractSQLiteError(err)
	return ok && sErr.Code == sqlite3.ErrConstraint && sErr.ExtendedCode == sqlite3.ErrConstraintCheck
}

// DBErrorCode maps a sqlite3 error to an ErrorCode with an ok flag
// !ok means err wasn't a sqlite3.Error; caller may fall back to generic handling
func DBErrorCode(err error) (ErrorCode, bool) {
	sErr, ok := ExtractSQLiteError(err)
	if !ok {
		return ErrorCodeUnknown, false
	}

	switch {
	case sErr.Code == sqlite3.ErrConstraint && sErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		return ErrorCodeDuplicateKey, true
	case sErr.Code == sqlite3.ErrConstraint:
		return ErrorCodeValidation, true
	case sErr.Code == sqlite3.ErrBusy, sErr.Code == sqlite3.ErrLocked:
		// transient contention, worth retrying
		return ErrorCodeUnavailable, true
	}

	return ErrorCodeDB, true
}

// FromSQLite wraps a sqlite error with a mapped ErrorCode and message
// If err is nil, returns nil
func FromSQLite(err error, msg string) error {
	if err == nil {
		return nil
	}
	if code, ok := DBErrorCode(err); ok {
		return Wrap(err, code, msg)
	}
	return Wrap(err, ErrorCodeDB, msg)
}

// AttachFieldFromSQLite tries to enrich an error with a field name derived
// from the sqlite3 constraint message (e.g. "UNIQUE constraint failed: post.uri" -> "uri")
func AttachFieldFromSQLite(err error) error {
	sErr, ok := ExtractSQLiteError(err)
	if !ok {
		return err
	}
	msg := sErr.Error()
	const marker = "constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return err
	}
	col := msg[i+len(marker):]
	if j := strings.LastIndex(col, "."); j >= 0 && j+1 < len(col) {
		col = col[j+1:]
	}
	col = strings.TrimSpace(col)
	if col == "" {
		return err
	}
	return WithField(err, col)
}

// FromSQLiteWithField wraps the error (like FromSQLite) and then attempts to
// attach a field name if discoverable from the constraint message
func FromSQLiteWithField(err error, msg string) error {
	return AttachFieldFromSQLite(FromSQLite(err, msg))
}

// IsRetryable reports whether the error represents a transient sqlite
// condition worth retrying at the caller's level: the busy-timeout pragma
// already retries internally, so what surfaces here is lock contention that
// outlasted it
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}

	if sErr, ok := ExtractSQLiteError(err); ok {
		switch sErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		default:
			return false
		}
	}

	s := strings.ToLower(Root(err).Error())
	switch {
	case strings.Contains(s, "database is locked"),
		strings.Contains(s, "database table is locked"):
		return true
	default:
		return false
	}
}
