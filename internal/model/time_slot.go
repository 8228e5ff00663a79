package model

import (
	"database/sql/driver"
	"time"
)

// SlotStatus is the lifecycle state of a time slot.
type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotReserved    SlotStatus = "reserved"
	SlotBooked      SlotStatus = "booked"
	SlotUnallocated SlotStatus = "unallocated"
)

// Bookable reports whether a slot in this state may ever be held or booked.
// Unallocated slots lie outside operating hours and only change through
// regeneration.
func (s SlotStatus) Bookable() bool { return s != SlotUnallocated }

// Value implements driver.Valuer.
func (s SlotStatus) Value() (driver.Value, error) { return string(s), nil }

// TimeSlot is a fixed-duration bookable interval [StartTime, EndTime).
// There is exactly one row per slot start in the time_slots table; the
// row is the single source of truth for the slot's state.
//
// Fields:
//
//	ID               – time_slots.id (UUID).
//	StartTime        – inclusive start, stored in UTC.
//	EndTime          – exclusive end, stored in UTC.
//	PriceCents       – price fixed when the slot was generated.
//	Status           – available, reserved, booked or unallocated.
//	BookingReference – set only while Status is booked.
//	HoldToken        – set only while Status is reserved.
type TimeSlot struct {
	ID               string     `db:"id" json:"id"`
	StartTime        time.Time  `db:"start_time" json:"start_time"`
	EndTime          time.Time  `db:"end_time" json:"end_time"`
	PriceCents       int64      `db:"price_cents" json:"price_cents"`
	Status           SlotStatus `db:"status" json:"status"`
	BookingReference *string    `db:"booking_reference" json:"booking_reference,omitempty"`
	HoldToken        *string    `db:"hold_token" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"-"`
	UpdatedAt        time.Time  `db:"updated_at" json:"-"`
}

// Overlaps reports whether the slot intersects [start, end).
func (s TimeSlot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}
