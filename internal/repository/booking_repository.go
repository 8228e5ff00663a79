package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slot-booking/internal/model"
)

// BookingRepo provides access to the booking ledger: the bookings table and
// the booking_time_slots join rows recording which slots a booking covers
// and what each cost at the time.  Bookings are never deleted; cancellation
// stamps cancelled_at and the join rows stay for audit.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookedSlot is one booking_time_slots row.
type BookedSlot struct {
	BookingID  string `db:"booking_id"`
	TimeSlotID string `db:"time_slot_id"`
	PriceCents int64  `db:"price_cents"`
}

const bookingColumns = `id, reference, customer_name, phone, email, notes, equipment_rental, total_price_cents, origin, created_by, created_at, cancelled_at`

// ReferenceExistsTx reports whether a booking already uses reference.
func (r *BookingRepo) ReferenceExistsTx(ctx context.Context, tx *sqlx.Tx, reference string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, tx, &n, tx.Rebind(`SELECT COUNT(*) FROM bookings WHERE reference = ?`), reference)
	return n > 0, err
}

// InsertTx writes the booking and one join row per slot.  A reference that
// is already taken yields ErrConflict so the caller can pick another one.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, b model.Booking, slots []BookedSlot) error {
	b.CreatedAt = utc(b.CreatedAt)
	const q = `INSERT INTO bookings (` + bookingColumns + `)
VALUES (:id, :reference, :customer_name, :phone, :email, :notes, :equipment_rental, :total_price_cents, :origin, :created_by, :created_at, :cancelled_at)`
	if _, err := tx.NamedExecContext(ctx, q, b); err != nil {
		if IsDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	if len(slots) == 0 {
		return nil
	}
	const qs = `INSERT INTO booking_time_slots (booking_id, time_slot_id, price_cents) VALUES (:booking_id, :time_slot_id, :price_cents)`
	_, err := tx.NamedExecContext(ctx, qs, slots)
	return err
}

// GetByReference returns the booking with its slot ids or ErrNotFound.
func (r *BookingRepo) GetByReference(ctx context.Context, reference string) (model.Booking, error) {
	return r.getByReference(ctx, r.db, reference, "")
}

// GetByReferenceForUpdateTx loads the booking and locks its row.
func (r *BookingRepo) GetByReferenceForUpdateTx(ctx context.Context, tx *sqlx.Tx, reference string) (model.Booking, error) {
	return r.getByReference(ctx, tx, reference, ForUpdate(tx))
}

func (r *BookingRepo) getByReference(ctx context.Context, q sqlx.ExtContext, reference, lock string) (model.Booking, error) {
	var b model.Booking
	query := q.Rebind(`SELECT ` + bookingColumns + ` FROM bookings WHERE reference = ?` + lock)
	if err := sqlx.GetContext(ctx, q, &b, query, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, err
	}
	ids := []string{}
	const qs = `SELECT bts.time_slot_id FROM booking_time_slots bts
LEFT JOIN time_slots s ON s.id = bts.time_slot_id
WHERE bts.booking_id = ? ORDER BY s.start_time, bts.time_slot_id`
	if err := sqlx.SelectContext(ctx, q, &ids, q.Rebind(qs), b.ID); err != nil {
		return model.Booking{}, err
	}
	b.SlotIDs = ids
	normaliseBookingTimes(&b)
	return b, nil
}

// CancelTx stamps cancelled_at on a booking that is not cancelled yet and
// reports whether it did.
func (r *BookingRepo) CancelTx(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error) {
	const q = `UPDATE bookings SET cancelled_at = ? WHERE id = ? AND cancelled_at IS NULL`
	n, err := affected(tx.ExecContext(ctx, tx.Rebind(q), utc(at), id))
	return n == 1, err
}

// ActiveInRange returns the non-cancelled bookings that cover at least one
// slot starting in [from, to), without slot ids, ordered by creation.
func (r *BookingRepo) ActiveInRange(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.cancelled_at IS NULL AND EXISTS (
SELECT 1 FROM booking_time_slots bts JOIN time_slots s ON s.id = bts.time_slot_id
WHERE bts.booking_id = b.id AND s.start_time >= ? AND s.start_time < ?)
ORDER BY b.created_at`
	var out []model.Booking
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), utc(from), utc(to)); err != nil {
		return nil, err
	}
	for i := range out {
		normaliseBookingTimes(&out[i])
	}
	return out, nil
}

func normaliseBookingTimes(b *model.Booking) {
	b.CreatedAt = b.CreatedAt.UTC()
	if b.CancelledAt != nil {
		t := b.CancelledAt.UTC()
		b.CancelledAt = &t
	}
}
