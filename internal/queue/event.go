// Package queue carries booking events over RabbitMQ: the payload, the
// publisher used by the reservation service and the consumer that records
// confirmed bookings.
package queue

import (
	"time"

	"github.com/iliyamo/slot-booking/internal/model"
)

// BookingConfirmedQueue is the durable queue confirmed bookings are sent to.
const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is published after a booking is committed, by the
// customer flow or by a privileged caller.  It contains enough information
// for downstream consumers to notify the customer without querying the
// primary database.
type BookingConfirmedEvent struct {
	Reference       string      `json:"reference"`
	Origin          string      `json:"origin"`
	CustomerName    string      `json:"customer_name"`
	Phone           string      `json:"phone_number"`
	Email           string      `json:"email,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	EquipmentRental bool        `json:"equipment_rental"`
	Slots           []EventSlot `json:"slots"`
	TotalPriceCents int64       `json:"total_price_cents"`
	CreatedBy       string      `json:"created_by,omitempty"`
	ConfirmedAt     string      `json:"confirmed_at"` // RFC 3339, UTC
}

// EventSlot is one booked slot of the event.
type EventSlot struct {
	ID         string `json:"id"`
	StartsAt   string `json:"starts_at"`
	EndsAt     string `json:"ends_at"`
	PriceCents int64  `json:"price_cents"`
}

// NewBookingConfirmedEvent builds the event for a committed booking.
func NewBookingConfirmedEvent(b model.Booking, slots []model.TimeSlot) BookingConfirmedEvent {
	ev := BookingConfirmedEvent{
		Reference:       b.Reference,
		Origin:          string(b.Origin),
		CustomerName:    b.CustomerName,
		Phone:           b.Phone,
		EquipmentRental: b.EquipmentRental,
		Slots:           make([]EventSlot, 0, len(slots)),
		TotalPriceCents: b.TotalPriceCents,
		ConfirmedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.Email != nil {
		ev.Email = *b.Email
	}
	if b.Notes != nil {
		ev.Notes = *b.Notes
	}
	if b.CreatedBy != nil {
		ev.CreatedBy = *b.CreatedBy
	}
	for _, s := range slots {
		ev.Slots = append(ev.Slots, EventSlot{
			ID:         s.ID,
			StartsAt:   s.StartTime.UTC().Format(time.RFC3339),
			EndsAt:     s.EndTime.UTC().Format(time.RFC3339),
			PriceCents: s.PriceCents,
		})
	}
	return ev
}
