package model

import (
	"database/sql/driver"
	"time"
)

// BookingOrigin records which flow created a booking.
type BookingOrigin string

const (
	OriginCustomer BookingOrigin = "customer" // promoted from a hold
	OriginAdmin    BookingOrigin = "admin"    // booked directly by a privileged caller
)

// Value implements driver.Valuer.
func (o BookingOrigin) Value() (driver.Value, error) { return string(o), nil }

// CustomerDetails is what the customer (or the operator on their behalf)
// submits when confirming a booking.
type CustomerDetails struct {
	Name            string  `json:"customer_name" validate:"required,max=120"`
	Phone           string  `json:"phone_number" validate:"required,max=40"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
	EquipmentRental bool    `json:"equipment_rental"`
}

// Booking is a confirmed, priced reservation covering one or more slots.
// Bookings are immutable once written; administrative cancellation only
// stamps CancelledAt and frees the slots, the row is kept for audit and
// statistics.
//
// Fields:
//
//	ID              – bookings.id (UUID).
//	Reference       – human readable unique code, e.g. WB-2607-0412.
//	TotalPriceCents – slot prices plus surcharge, computed once at creation.
//	Origin          – customer or admin.
//	CreatedBy       – id of the privileged caller for admin bookings.
//	CancelledAt     – soft-delete marker.
//	SlotIDs         – loaded from booking_time_slots.
type Booking struct {
	ID              string        `db:"id" json:"id"`
	Reference       string        `db:"reference" json:"reference"`
	CustomerName    string        `db:"customer_name" json:"customer_name"`
	Phone           string        `db:"phone" json:"phone_number"`
	Email           *string       `db:"email" json:"email,omitempty"`
	Notes           *string       `db:"notes" json:"notes,omitempty"`
	EquipmentRental bool          `db:"equipment_rental" json:"equipment_rental"`
	TotalPriceCents int64         `db:"total_price_cents" json:"total_price_cents"`
	Origin          BookingOrigin `db:"origin" json:"origin"`
	CreatedBy       *string       `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	CancelledAt     *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	SlotIDs         []string      `db:"-" json:"slot_ids"`
}

// Cancelled reports whether the booking was cancelled by an operator.
func (b Booking) Cancelled() bool { return b.CancelledAt != nil }

// Customer returns the details the booking was created with.
func (b Booking) Customer() CustomerDetails {
	return CustomerDetails{
		Name:            b.CustomerName,
		Phone:           b.Phone,
		Email:           b.Email,
		Notes:           b.Notes,
		EquipmentRental: b.EquipmentRental,
	}
}
