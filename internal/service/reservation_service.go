package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/slot-booking/internal/config"
	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/repository"
	"github.com/iliyamo/slot-booking/internal/validate"
)

// Notifier receives confirmed bookings after they are committed.  Its
// failures are logged and never undo the booking.
type Notifier interface {
	Notify(ctx context.Context, booking model.Booking, slots []model.TimeSlot) error
}

const notifyTimeout = 5 * time.Second

// ReservationService drives the slot state machine for the customer flow
// (reserve, confirm) and the privileged flows (direct booking and
// cancellation).
type ReservationService struct {
	store    *repository.Store
	slots    *repository.SlotRepo
	holds    *repository.HoldRepo
	bookings *repository.BookingRepo
	holdMgr  *HoldManager
	hours    model.OperatingHoursConfig
	cfg      config.BookingConfig
	notifier Notifier
	log      logrus.FieldLogger

	now          func() time.Time
	newReference ReferenceGenerator
}

// NewReservationService wires the service.  notifier may be nil.
func NewReservationService(store *repository.Store, holdMgr *HoldManager, hours model.OperatingHoursConfig, cfg config.BookingConfig, notifier Notifier, log logrus.FieldLogger) *ReservationService {
	prefix := cfg.ReferencePrefix
	if prefix == "" {
		prefix = "WB"
	}
	return &ReservationService{
		store:        store,
		slots:        repository.NewSlotRepo(store.DB()),
		holds:        repository.NewHoldRepo(store.DB()),
		bookings:     repository.NewBookingRepo(store.DB()),
		holdMgr:      holdMgr,
		hours:        hours,
		cfg:          cfg,
		notifier:     notifier,
		log:          log,
		now:          time.Now,
		newReference: NewReferenceGenerator(prefix, hours.Location()),
	}
}

// WithClock replaces the time source.
func (s *ReservationService) WithClock(now func() time.Time) *ReservationService {
	s.now = now
	return s
}

// WithReferenceGenerator replaces the booking reference generator.
func (s *ReservationService) WithReferenceGenerator(g ReferenceGenerator) *ReservationService {
	s.newReference = g
	return s
}

func (s *ReservationService) clock() time.Time { return s.now().UTC().Truncate(time.Second) }

// Reserve places a hold on all of slotIDs.  Every call is a fresh attempt.
func (s *ReservationService) Reserve(ctx context.Context, slotIDs []string, ttl time.Duration) (model.Hold, error) {
	return s.holdMgr.Acquire(ctx, slotIDs, ttl)
}

// Release gives up a hold.  It always succeeds for unknown or already
// consumed tokens.
func (s *ReservationService) Release(ctx context.Context, token string) error {
	return s.holdMgr.Release(ctx, token)
}

// Extend keeps a hold alive while the customer is still filling the form.
func (s *ReservationService) Extend(ctx context.Context, token string, ttl time.Duration) (model.Hold, error) {
	return s.holdMgr.Extend(ctx, token, ttl)
}

// ConfirmBooking turns the hold into a booking.  The hold row is locked
// first, so a concurrent sweep or release of the same token either
// finishes before (and the confirmation fails with ErrHoldExpired) or
// waits until the booking is committed and then finds nothing to do.
func (s *ReservationService) ConfirmBooking(ctx context.Context, token string, details model.CustomerDetails) (model.Booking, error) {
	details = trimDetails(details)
	if err := validate.Struct(details); err != nil {
		return model.Booking{}, invalidf("%s", err)
	}
	if token == "" {
		return model.Booking{}, ErrHoldExpired
	}

	now := s.clock()
	var (
		booking model.Booking
		booked  []model.TimeSlot
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		hold, err := s.holds.GetForUpdateTx(ctx, tx, token)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrHoldExpired
		}
		if err != nil {
			return err
		}
		if hold.Expired(now) {
			released, err := s.holdMgr.releaseExpiredTx(ctx, tx, token, now)
			if err != nil {
				return err
			}
			if released {
				return repository.CommitAnd(ErrHoldExpired)
			}
			return ErrHoldExpired
		}

		held, err := s.slots.ListByHoldTokenTx(ctx, tx, token)
		if err != nil {
			return err
		}
		if missing := missingIDs(hold.SlotIDs, held); len(missing) > 0 {
			return &SlotUnavailableError{SlotIDs: missing}
		}
		if !sameDay(held, s.hours.Location()) {
			return ErrCrossDateBooking
		}

		booking = s.newBooking(details, held, model.OriginCustomer, nil, now)
		if err := s.insertBookingTx(ctx, tx, &booking, held, now); err != nil {
			return err
		}
		n, err := s.slots.MarkBookedByTokenTx(ctx, tx, token, booking.Reference, now)
		if err != nil {
			return err
		}
		if n != int64(len(held)) {
			return fmt.Errorf("promote hold %s: booked %d of %d slots", token, n, len(held))
		}
		deleted, err := s.holds.DeleteTx(ctx, tx, token)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("promote hold %s: hold row vanished", token)
		}
		booked = markBooked(held, booking.Reference)
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	s.log.WithFields(logrus.Fields{
		"reference":  booking.Reference,
		"hold_token": token,
		"slot_ids":   booking.SlotIDs,
		"total":      booking.TotalPriceCents,
	}).Info("booking confirmed")
	s.notify(ctx, booking, booked)
	return booking, nil
}

// AdminBook books available slots directly for a privileged caller.  With
// override set and the override policy enabled, slots reserved by a
// customer's hold are taken over: that hold is released in full and the
// takeover is logged at warning level.  Booked, unallocated and unknown
// slots always fail.  Admin bookings are not limited to one day.
func (s *ReservationService) AdminBook(ctx context.Context, caller model.Caller, slotIDs []string, details model.CustomerDetails, override bool) (model.Booking, error) {
	if !caller.Privileged() {
		return model.Booking{}, ErrUnauthorized
	}
	ids, err := normaliseIDs(slotIDs)
	if err != nil {
		return model.Booking{}, err
	}
	details = trimDetails(details)
	if err := validate.Struct(details); err != nil {
		return model.Booking{}, invalidf("%s", err)
	}
	allowOverride := override && s.cfg.AdminOverrideEnabled

	now := s.clock()
	var (
		booking    model.Booking
		booked     []model.TimeSlot
		overridden map[string][]string
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		overridden = map[string][]string{}
		if _, err := reclaimExpiredTx(ctx, tx, s.holds, s.slots, ids, now); err != nil {
			return err
		}
		current, err := s.slots.ListByIDsTx(ctx, tx, ids)
		if err != nil {
			return err
		}
		byID := make(map[string]model.TimeSlot, len(current))
		for _, sl := range current {
			byID[sl.ID] = sl
		}
		var conflicting []string
		for _, id := range ids {
			sl, ok := byID[id]
			switch {
			case !ok:
				conflicting = append(conflicting, id)
			case sl.Status == model.SlotAvailable:
			case sl.Status == model.SlotReserved && allowOverride && sl.HoldToken != nil:
				overridden[*sl.HoldToken] = append(overridden[*sl.HoldToken], id)
			default:
				conflicting = append(conflicting, id)
			}
		}
		if len(conflicting) > 0 {
			return &SlotUnavailableError{SlotIDs: conflicting}
		}

		for token := range overridden {
			if _, err := s.holds.DeleteTx(ctx, tx, token); err != nil {
				return err
			}
			if _, err := s.slots.ReleaseByTokenTx(ctx, tx, token, now); err != nil {
				return err
			}
		}

		targets := make([]model.TimeSlot, 0, len(ids))
		for _, id := range ids {
			targets = append(targets, byID[id])
		}
		createdBy := caller.ID
		booking = s.newBooking(details, targets, model.OriginAdmin, &createdBy, now)
		if err := s.insertBookingTx(ctx, tx, &booking, targets, now); err != nil {
			return err
		}
		n, err := s.slots.MarkBookedFromAvailableTx(ctx, tx, ids, booking.Reference, now)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return &SlotUnavailableError{SlotIDs: ids}
		}
		booked = markBooked(targets, booking.Reference)
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	for token, taken := range overridden {
		s.log.WithFields(logrus.Fields{
			"hold_token": token,
			"slot_ids":   taken,
			"reference":  booking.Reference,
			"caller":     caller.ID,
			"role":       caller.Role,
		}).Warn("admin booking overrode an active hold")
	}
	s.log.WithFields(logrus.Fields{
		"reference": booking.Reference,
		"slot_ids":  booking.SlotIDs,
		"caller":    caller.ID,
	}).Info("admin booking created")
	s.notify(ctx, booking, booked)
	return booking, nil
}

// CancelBooking marks the booking cancelled and returns its slots to
// available.  Cancelling a cancelled booking returns it unchanged.
func (s *ReservationService) CancelBooking(ctx context.Context, caller model.Caller, reference string) (model.Booking, error) {
	if !caller.Privileged() {
		return model.Booking{}, ErrUnauthorized
	}
	reference = strings.TrimSpace(reference)
	now := s.clock()
	var (
		booking model.Booking
		freed   int64
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		freed = 0
		booking, err = s.bookings.GetByReferenceForUpdateTx(ctx, tx, reference)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil || booking.Cancelled() {
			return err
		}
		if _, err := s.bookings.CancelTx(ctx, tx, booking.ID, now); err != nil {
			return err
		}
		freed, err = s.slots.ReleaseByReferenceTx(ctx, tx, reference, now)
		if err != nil {
			return err
		}
		booking.CancelledAt = &now
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	if freed > 0 {
		s.log.WithFields(logrus.Fields{"reference": reference, "slots": freed, "caller": caller.ID}).Info("booking cancelled")
	}
	return booking, nil
}

// insertBookingTx assigns a fresh reference and writes the booking.  A
// candidate already present in the ledger, or rejected by the unique index
// when a concurrent booking took it first, is replaced by a new one up to
// BOOKING_REFERENCE_ATTEMPTS times.
func (s *ReservationService) insertBookingTx(ctx context.Context, tx *sqlx.Tx, b *model.Booking, slots []model.TimeSlot, now time.Time) error {
	rows := make([]repository.BookedSlot, 0, len(slots))
	for _, sl := range slots {
		rows = append(rows, repository.BookedSlot{BookingID: b.ID, TimeSlotID: sl.ID, PriceCents: sl.PriceCents})
	}
	attempts := s.cfg.ReferenceAttempts
	if attempts <= 0 {
		attempts = 5
	}
	for i := 0; i < attempts; i++ {
		ref, err := s.newReference(now)
		if err != nil {
			return err
		}
		exists, err := s.bookings.ReferenceExistsTx(ctx, tx, ref)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		b.Reference = ref
		err = s.bookings.InsertTx(ctx, tx, *b, rows)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		return err
	}
	s.log.WithField("attempts", attempts).Error("booking reference space exhausted")
	return ErrReferenceGenerationFailed
}

func (s *ReservationService) newBooking(d model.CustomerDetails, slots []model.TimeSlot, origin model.BookingOrigin, createdBy *string, now time.Time) model.Booking {
	var total int64
	ids := make([]string, 0, len(slots))
	for _, sl := range slots {
		total += sl.PriceCents
		ids = append(ids, sl.ID)
	}
	if d.EquipmentRental {
		total += s.cfg.EquipmentSurchargeCents
	}
	return model.Booking{
		ID:              uuid.NewString(),
		CustomerName:    d.Name,
		Phone:           d.Phone,
		Email:           d.Email,
		Notes:           d.Notes,
		EquipmentRental: d.EquipmentRental,
		TotalPriceCents: total,
		Origin:          origin,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		SlotIDs:         ids,
	}
}

// notify hands the booking to the notifier without the request's
// cancellation, bounded by its own timeout.  No transaction is open here.
func (s *ReservationService) notify(ctx context.Context, b model.Booking, slots []model.TimeSlot) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, b, slots); err != nil {
		s.log.WithError(err).WithField("reference", b.Reference).Error("publish booking confirmed failed")
	}
}

// sameDay reports whether all slots start on the same calendar day in loc.
func sameDay(slots []model.TimeSlot, loc *time.Location) bool {
	if len(slots) == 0 {
		return true
	}
	y, m, d := slots[0].StartTime.In(loc).Date()
	for _, sl := range slots[1:] {
		y2, m2, d2 := sl.StartTime.In(loc).Date()
		if y2 != y || m2 != m || d2 != d {
			return false
		}
	}
	return true
}

// missingIDs lists the ids of want that are not among slots.
func missingIDs(want []string, slots []model.TimeSlot) []string {
	have := make(map[string]bool, len(slots))
	for _, sl := range slots {
		have[sl.ID] = true
	}
	var out []string
	for _, id := range want {
		if !have[id] {
			out = append(out, id)
		}
	}
	return out
}

func markBooked(slots []model.TimeSlot, reference string) []model.TimeSlot {
	out := make([]model.TimeSlot, len(slots))
	for i, sl := range slots {
		ref := reference
		sl.Status = model.SlotBooked
		sl.BookingReference = &ref
		sl.HoldToken = nil
		out[i] = sl
	}
	return out
}

func trimDetails(d model.CustomerDetails) model.CustomerDetails {
	d.Name = strings.TrimSpace(d.Name)
	d.Phone = strings.TrimSpace(d.Phone)
	if d.Email != nil {
		e := strings.TrimSpace(*d.Email)
		if e == "" {
			d.Email = nil
		} else {
			d.Email = &e
		}
	}
	if d.Notes != nil && strings.TrimSpace(*d.Notes) == "" {
		d.Notes = nil
	}
	return d
}
