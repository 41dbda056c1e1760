// Package shared holds helpers used by more than one storage component.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteCode returns the primary result code of a modernc sqlite error, or
// 0 when err is not one.
func SQLiteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() & 0xff
	}
	return 0
}

// IsSQLiteConflictError reports whether err is a SQLITE_BUSY or
// SQLITE_LOCKED failure that is worth retrying. Errors that lost their type
// through fmt wrapping with %v are matched on their text.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	switch SQLiteCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	case 0:
		msg := err.Error()
		return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
	default:
		return false
	}
}
