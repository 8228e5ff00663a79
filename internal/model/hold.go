package model

import "time"

// Hold is a time-limited exclusive claim on one or more slots while the
// customer fills in the booking form.  While the hold is active every slot
// in SlotIDs carries Token in time_slots.hold_token and has status
// reserved.  A hold disappears when it is released, swept after expiry or
// promoted to a booking.
type Hold struct {
	Token     string    `json:"token"`      // holds.token
	SlotIDs   []string  `json:"slot_ids"`   // holds.slot_ids (comma separated in storage)
	CreatedAt time.Time `json:"created_at"` // holds.created_at
	ExpiresAt time.Time `json:"expires_at"` // holds.expires_at
}

// Expired reports whether the hold is no longer valid at now.  A hold whose
// expiry equals now is already expired.
func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
