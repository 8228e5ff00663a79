package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slot-booking/internal/model"
)

// holdRecord mirrors the holds table.  Slot ids are stored as a comma
// separated list; the authoritative slot to hold mapping is
// time_slots.hold_token, the list only records what the hold was asked for.
type holdRecord struct {
	Token     string    `db:"token"`
	SlotIDs   string    `db:"slot_ids"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (h holdRecord) toModel() model.Hold {
	var ids []string
	if h.SlotIDs != "" {
		ids = strings.Split(h.SlotIDs, ",")
	}
	return model.Hold{Token: h.Token, SlotIDs: ids, CreatedAt: h.CreatedAt.UTC(), ExpiresAt: h.ExpiresAt.UTC()}
}

// HoldRepo provides data access to the holds table.  A hold row is the
// single-writer gate for its token: release, sweep and promotion each
// delete (or lock) the row first and only touch slots when that succeeded,
// so at most one of them acts on a given hold.
type HoldRepo struct {
	db *sqlx.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sqlx.DB) *HoldRepo { return &HoldRepo{db: db} }

// CreateTx inserts a hold.
func (r *HoldRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, h model.Hold) error {
	const q = `INSERT INTO holds (token, slot_ids, created_at, expires_at) VALUES (?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, tx.Rebind(q), h.Token, strings.Join(h.SlotIDs, ","), utc(h.CreatedAt), utc(h.ExpiresAt))
	if IsDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// Get returns the hold with the given token or ErrNotFound.
func (r *HoldRepo) Get(ctx context.Context, token string) (model.Hold, error) {
	return r.get(ctx, r.db, token, "")
}

// GetForUpdateTx loads the hold and locks its row until the transaction
// ends.
func (r *HoldRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, token string) (model.Hold, error) {
	return r.get(ctx, tx, token, ForUpdate(tx))
}

func (r *HoldRepo) get(ctx context.Context, q sqlx.ExtContext, token, lock string) (model.Hold, error) {
	var rec holdRecord
	query := q.Rebind(`SELECT token, slot_ids, created_at, expires_at FROM holds WHERE token = ?` + lock)
	if err := sqlx.GetContext(ctx, q, &rec, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Hold{}, ErrNotFound
		}
		return model.Hold{}, err
	}
	return rec.toModel(), nil
}

// DeleteTx removes the hold and reports whether this call removed it.
func (r *HoldRepo) DeleteTx(ctx context.Context, tx *sqlx.Tx, token string) (bool, error) {
	n, err := affected(tx.ExecContext(ctx, tx.Rebind(`DELETE FROM holds WHERE token = ?`), token))
	return n == 1, err
}

// DeleteExpiredTx removes the hold only if it has expired at now.  A hold
// that was extended or promoted in the meantime is left alone and false is
// returned.
func (r *HoldRepo) DeleteExpiredTx(ctx context.Context, tx *sqlx.Tx, token string, now time.Time) (bool, error) {
	const q = `DELETE FROM holds WHERE token = ? AND expires_at <= ?`
	n, err := affected(tx.ExecContext(ctx, tx.Rebind(q), token, utc(now)))
	return n == 1, err
}

// ExtendTx moves the expiry of a still active hold.  It returns false when
// the hold is gone or already expired at now.
func (r *HoldRepo) ExtendTx(ctx context.Context, tx *sqlx.Tx, token string, expiresAt, now time.Time) (bool, error) {
	const q = `UPDATE holds SET expires_at = ? WHERE token = ? AND expires_at > ?`
	n, err := affected(tx.ExecContext(ctx, tx.Rebind(q), utc(expiresAt), token, utc(now)))
	return n == 1, err
}

// ExpiredTokens lists up to limit tokens of holds that expired at or before
// now, oldest first.
func (r *HoldRepo) ExpiredTokens(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const q = `SELECT token FROM holds WHERE expires_at <= ? ORDER BY expires_at LIMIT ?`
	var tokens []string
	if err := r.db.SelectContext(ctx, &tokens, r.db.Rebind(q), utc(now), limit); err != nil {
		return nil, err
	}
	return tokens, nil
}

// ExpiredTokensForSlotsTx returns the tokens of expired holds that still
// reserve any of the given slots.  Acquire reclaims them before its
// check-and-set so that an unswept hold never blocks a new customer.
func (r *HoldRepo) ExpiredTokensForSlotsTx(ctx context.Context, tx *sqlx.Tx, slotIDs []string, now time.Time) ([]string, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT DISTINCT h.token FROM holds h
JOIN time_slots s ON s.hold_token = h.token
WHERE s.id IN (?) AND h.expires_at <= ?`, slotIDs, utc(now))
	if err != nil {
		return nil, err
	}
	var tokens []string
	if err := sqlx.SelectContext(ctx, tx, &tokens, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Count returns the number of hold rows.  Used by health reporting and
// tests.
func (r *HoldRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM holds`)
	return n, err
}
