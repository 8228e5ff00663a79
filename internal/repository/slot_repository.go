package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slot-booking/internal/model"
)

// SlotRepo provides data access to the time_slots table.  It is the only
// code that changes a slot's status, and every transition is a single
// conditional UPDATE whose WHERE clause states the expected current state.
// Callers compare the affected row count with the number of slots they
// meant to change; a shortfall means another writer got there first.
//
// All timestamps are written in UTC.  Methods with a Tx suffix run inside
// a transaction owned by the caller, who must commit or roll back.
type SlotRepo struct {
	db *sqlx.DB
}

// NewSlotRepo returns a new SlotRepo bound to the provided database.
func NewSlotRepo(db *sqlx.DB) *SlotRepo { return &SlotRepo{db: db} }

const slotColumns = `id, start_time, end_time, price_cents, status, booking_reference, hold_token, created_at, updated_at`

// ListRange returns the slots starting in [from, to) ordered by start time.
func (r *SlotRepo) ListRange(ctx context.Context, from, to time.Time) ([]model.TimeSlot, error) {
	return r.listRange(ctx, r.db, from, to)
}

// ListOverlappingTx returns the slots intersecting [from, to), ordered by
// start time.  The slot generator uses it to see everything that already
// occupies a day, including slots of a previous grid that started before
// the day's window.
func (r *SlotRepo) ListOverlappingTx(ctx context.Context, tx *sqlx.Tx, from, to time.Time) ([]model.TimeSlot, error) {
	q := `SELECT ` + slotColumns + ` FROM time_slots WHERE start_time < ? AND end_time > ? ORDER BY start_time` + ForUpdate(tx)
	var slots []model.TimeSlot
	if err := sqlx.SelectContext(ctx, tx, &slots, tx.Rebind(q), utc(to), utc(from)); err != nil {
		return nil, err
	}
	return normaliseSlots(slots), nil
}

func (r *SlotRepo) listRange(ctx context.Context, q sqlx.ExtContext, from, to time.Time) ([]model.TimeSlot, error) {
	query := q.Rebind(`SELECT ` + slotColumns + ` FROM time_slots WHERE start_time >= ? AND start_time < ? ORDER BY start_time`)
	var slots []model.TimeSlot
	if err := sqlx.SelectContext(ctx, q, &slots, query, utc(from), utc(to)); err != nil {
		return nil, err
	}
	return normaliseSlots(slots), nil
}

// ListByIDsTx loads the given slots, locking them on dialects that support
// row locks.  Unknown ids are simply absent from the result.
func (r *SlotRepo) ListByIDsTx(ctx context.Context, tx *sqlx.Tx, ids []string) ([]model.TimeSlot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+slotColumns+` FROM time_slots WHERE id IN (?) ORDER BY start_time`+ForUpdate(tx), ids)
	if err != nil {
		return nil, err
	}
	var slots []model.TimeSlot
	if err := sqlx.SelectContext(ctx, tx, &slots, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	return normaliseSlots(slots), nil
}

// ListByHoldTokenTx returns the slots currently reserved under token.
func (r *SlotRepo) ListByHoldTokenTx(ctx context.Context, tx *sqlx.Tx, token string) ([]model.TimeSlot, error) {
	q := `SELECT ` + slotColumns + ` FROM time_slots WHERE hold_token = ? AND status = ? ORDER BY start_time` + ForUpdate(tx)
	var slots []model.TimeSlot
	if err := sqlx.SelectContext(ctx, tx, &slots, tx.Rebind(q), token, model.SlotReserved); err != nil {
		return nil, err
	}
	return normaliseSlots(slots), nil
}

// MarkReservedTx is the check-and-set at the heart of the engine: it flips
// every slot in ids from available to reserved under token in a single
// statement.  The returned count equals len(ids) only when every slot was
// available; any other value means the caller must roll back.
func (r *SlotRepo) MarkReservedTx(ctx context.Context, tx *sqlx.Tx, ids []string, token string, now time.Time) (int64, error) {
	query, args, err := sqlx.In(
		`UPDATE time_slots SET status = ?, hold_token = ?, updated_at = ? WHERE id IN (?) AND status = ?`,
		model.SlotReserved, token, utc(now), ids, model.SlotAvailable,
	)
	if err != nil {
		return 0, err
	}
	return affected(tx.ExecContext(ctx, tx.Rebind(query), args...))
}

// ReleaseByTokenTx returns the slots reserved under token to available.
func (r *SlotRepo) ReleaseByTokenTx(ctx context.Context, tx *sqlx.Tx, token string, now time.Time) (int64, error) {
	const q = `UPDATE time_slots SET status = ?, hold_token = NULL, updated_at = ? WHERE hold_token = ? AND status = ?`
	return affected(tx.ExecContext(ctx, tx.Rebind(q), model.SlotAvailable, utc(now), token, model.SlotReserved))
}

// MarkBookedByTokenTx promotes the slots reserved under token to booked
// with the given booking reference.
func (r *SlotRepo) MarkBookedByTokenTx(ctx context.Context, tx *sqlx.Tx, token, reference string, now time.Time) (int64, error) {
	const q = `UPDATE time_slots SET status = ?, booking_reference = ?, hold_token = NULL, updated_at = ? WHERE hold_token = ? AND status = ?`
	return affected(tx.ExecContext(ctx, tx.Rebind(q), model.SlotBooked, reference, utc(now), token, model.SlotReserved))
}

// MarkBookedFromAvailableTx books available slots directly, skipping the
// hold step.  Used by administrative bookings.
func (r *SlotRepo) MarkBookedFromAvailableTx(ctx context.Context, tx *sqlx.Tx, ids []string, reference string, now time.Time) (int64, error) {
	query, args, err := sqlx.In(
		`UPDATE time_slots SET status = ?, booking_reference = ?, updated_at = ? WHERE id IN (?) AND status = ?`,
		model.SlotBooked, reference, utc(now), ids, model.SlotAvailable,
	)
	if err != nil {
		return 0, err
	}
	return affected(tx.ExecContext(ctx, tx.Rebind(query), args...))
}

// ReleaseByReferenceTx returns the slots booked under reference to
// available.
func (r *SlotRepo) ReleaseByReferenceTx(ctx context.Context, tx *sqlx.Tx, reference string, now time.Time) (int64, error) {
	const q = `UPDATE time_slots SET status = ?, booking_reference = NULL, updated_at = ? WHERE booking_reference = ? AND status = ?`
	return affected(tx.ExecContext(ctx, tx.Rebind(q), model.SlotAvailable, utc(now), reference, model.SlotBooked))
}

// InsertTx bulk inserts newly generated slots.  A slot whose start time is
// already taken fails the whole statement with ErrConflict.
func (r *SlotRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, slots []model.TimeSlot) error {
	if len(slots) == 0 {
		return nil
	}
	rows := make([]model.TimeSlot, len(slots))
	for i, s := range slots {
		s.StartTime, s.EndTime = utc(s.StartTime), utc(s.EndTime)
		s.CreatedAt, s.UpdatedAt = utc(s.CreatedAt), utc(s.UpdatedAt)
		rows[i] = s
	}
	const q = `INSERT INTO time_slots (` + slotColumns + `)
VALUES (:id, :start_time, :end_time, :price_cents, :status, :booking_reference, :hold_token, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, q, rows); err != nil {
		if IsDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// UpdateFreeTx rewrites the status and price of a slot that is still free
// (available or unallocated).  Reserved and booked slots are left alone and
// report zero affected rows.
func (r *SlotRepo) UpdateFreeTx(ctx context.Context, tx *sqlx.Tx, id string, status model.SlotStatus, priceCents int64, now time.Time) (int64, error) {
	const q = `UPDATE time_slots SET status = ?, price_cents = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`
	return affected(tx.ExecContext(ctx, tx.Rebind(q), status, priceCents, utc(now), id, model.SlotAvailable, model.SlotUnallocated))
}

// DeleteFreeTx removes free slots.  Booked and reserved slots in ids are
// kept.
func (r *SlotRepo) DeleteFreeTx(ctx context.Context, tx *sqlx.Tx, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		`DELETE FROM time_slots WHERE id IN (?) AND status IN (?, ?)`,
		ids, model.SlotAvailable, model.SlotUnallocated,
	)
	if err != nil {
		return 0, err
	}
	return affected(tx.ExecContext(ctx, tx.Rebind(query), args...))
}

// affected unwraps the row count of an Exec result.
func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// normaliseSlots converts scanned timestamps to UTC; drivers may return
// them with a fixed zero-offset zone instead.
func normaliseSlots(slots []model.TimeSlot) []model.TimeSlot {
	for i := range slots {
		s := &slots[i]
		s.StartTime, s.EndTime = s.StartTime.UTC(), s.EndTime.UTC()
		s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	}
	return slots
}

// utc normalises a timestamp for storage: UTC, whole seconds.
func utc(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }
