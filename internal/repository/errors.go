// Package repository holds the SQL persistence for slots, holds and
// bookings.  This file defines error values that are reused across the
// repositories.  The sentinels allow higher layers such as services and
// handlers to tell a missing row from a uniqueness conflict from an
// unavailable store.
package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a unique constraint, such
// as a booking reference or a slot start time that is already taken.
var ErrConflict = errors.New("conflict")

// ErrPersistenceUnavailable is returned when the store could not complete an
// operation within its timeout or after the bounded number of retries.
// Handlers translate this into an HTTP 503 response.
var ErrPersistenceUnavailable = errors.New("persistence unavailable")

// MySQL server error numbers.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// IsTransient reports whether err is worth retrying: a deadlock or lock
// wait timeout on MySQL, a busy or locked database on SQLite or a broken
// connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		primary := se.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	return false
}

// IsDuplicateKey reports whether err is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// unavailable wraps an infrastructure failure so that callers can match it
// with errors.Is(err, ErrPersistenceUnavailable).
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
}

// isTimeout reports whether err came from an expired operation deadline.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
