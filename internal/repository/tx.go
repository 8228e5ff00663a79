package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store wraps the database handle with the per-operation timeout and the
// bounded retry loop every slot store call runs under.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	retries int
	backoff time.Duration
}

// NewStore returns a Store.  timeout bounds one attempt; retries is the
// total number of attempts for transient failures (at least one).
func NewStore(db *sqlx.DB, timeout time.Duration, retries int) *Store {
	if retries < 1 {
		retries = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, timeout: timeout, retries: retries, backoff: 20 * time.Millisecond}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB { return s.db }

// commitThen carries a result that must be returned to the caller after the
// transaction commits.
type commitThen struct{ err error }

func (c commitThen) Error() string { return c.err.Error() }
func (c commitThen) Unwrap() error { return c.err }

// CommitAnd tells InTx to commit the work done so far and then return err.
// It is used when a failed operation still has a side effect to persist,
// e.g. releasing an expired hold before reporting it as expired.
func CommitAnd(err error) error { return commitThen{err: err} }

// InTx runs fn inside a transaction.  Returning a non-nil error rolls back,
// except for errors built with CommitAnd.  Transient failures are retried
// with the whole of fn; fn must therefore not have side effects outside
// the transaction.  A panic in fn rolls back and is re-raised.  Timeouts
// and exhausted retries surface as ErrPersistenceUnavailable.  Business
// errors from fn are returned as is.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return s.retry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()
		if err := fn(ctx, tx); err != nil {
			var ct commitThen
			if errors.As(err, &ct) {
				if cerr := tx.Commit(); cerr != nil {
					return cerr
				}
				return ct.err
			}
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// Do runs a read (or any non-transactional statement) under the same
// timeout and retry policy as InTx.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.retry(ctx, fn)
}

func (s *Store) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := fn(opCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// The caller gave up; report that rather than a store fault.
			return ctx.Err()
		}
		if isTimeout(err) {
			return unavailable(err)
		}
		if !IsTransient(err) {
			return err
		}
		last = err
	}
	return unavailable(last)
}

// ForUpdate returns the row-locking clause for the connected dialect.
// SQLite has a single writer and no FOR UPDATE syntax.
func ForUpdate(q sqlx.QueryerContext) string {
	if b, ok := q.(interface{ DriverName() string }); ok && b.DriverName() == "mysql" {
		return " FOR UPDATE"
	}
	return ""
}
