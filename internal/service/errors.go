package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/slot-booking/internal/repository"
)

// Business outcomes.  Their messages are shown to end users as they are.
var (
	ErrSlotUnavailable           = errors.New("one or more of the selected slots are no longer available")
	ErrHoldExpired               = errors.New("your reservation has expired, please select your slots again")
	ErrCrossDateBooking          = errors.New("a booking can only cover slots on a single day")
	ErrReferenceGenerationFailed = errors.New("could not generate a unique booking reference")
	ErrUnauthorized              = errors.New("this operation requires an administrator, operator or manager")
	ErrInvalidRequest            = errors.New("invalid request")
	ErrBookingNotFound           = errors.New("booking not found")
)

// ErrPersistenceUnavailable is returned when the store timed out or kept
// failing after the bounded retries.
var ErrPersistenceUnavailable = repository.ErrPersistenceUnavailable

// SlotUnavailableError names the slots that could not be claimed.  It
// matches ErrSlotUnavailable with errors.Is.
type SlotUnavailableError struct {
	SlotIDs []string
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSlotUnavailable.Error(), strings.Join(e.SlotIDs, ", "))
}

// Is reports whether target is ErrSlotUnavailable.
func (e *SlotUnavailableError) Is(target error) bool { return target == ErrSlotUnavailable }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// normaliseIDs trims, de-duplicates and validates a slot id selection,
// keeping the caller's order.
func normaliseIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, invalidf("at least one slot is required")
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, invalidf("slot ids must not be empty")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
