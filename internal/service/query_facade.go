package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/repository"
)

// QueryFacade serves the read-only views.  It never writes and reads
// without locks, so results are a snapshot that may lag in-flight
// reservations.
type QueryFacade struct {
	store    *repository.Store
	slots    *repository.SlotRepo
	bookings *repository.BookingRepo
	hours    model.OperatingHoursConfig
}

// NewQueryFacade returns a QueryFacade.
func NewQueryFacade(store *repository.Store, hours model.OperatingHoursConfig) *QueryFacade {
	return &QueryFacade{
		store:    store,
		slots:    repository.NewSlotRepo(store.DB()),
		bookings: repository.NewBookingRepo(store.DB()),
		hours:    hours,
	}
}

// DaySlots is one calendar day of slots, sorted by start time.
type DaySlots struct {
	Date    string           `json:"date"` // YYYY-MM-DD in the park's time zone
	Weekday string           `json:"weekday"`
	Slots   []model.TimeSlot `json:"slots"`
}

// DayStats aggregates one calendar day of a statistics period.
type DayStats struct {
	Date        string `json:"date"`
	Bookings    int    `json:"bookings"`
	BookedSlots int    `json:"booked_slots"`
	IncomeCents int64  `json:"income_cents"`
}

// HourCount is one bar of the popular time slot histogram.
type HourCount struct {
	Hour        int `json:"hour"` // 0-23, park-local
	BookedSlots int `json:"booked_slots"`
}

// Statistics summarises a period.
type Statistics struct {
	From                  string      `json:"from"`
	To                    string      `json:"to"`
	BookingRate           float64     `json:"booking_rate"` // booked / bookable slots
	TotalBookings         int         `json:"total_bookings"`
	ForecastedIncomeCents int64       `json:"forecasted_income_cents"`
	BookableSlots         int         `json:"bookable_slots"`
	BookedSlots           int         `json:"booked_slots"`
	BookingsByDay         []DayStats  `json:"bookings_by_day"`
	PopularTimeSlots      []HourCount `json:"popular_time_slots"`
}

// ListSlots returns the slots starting in [from, to).
func (q *QueryFacade) ListSlots(ctx context.Context, from, to time.Time) ([]model.TimeSlot, error) {
	if !to.After(from) {
		return nil, invalidf("to must be after from")
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return nil, invalidf("range must not exceed %d days", maxRangeDays)
	}
	return q.listRange(ctx, from, to)
}

func (q *QueryFacade) listRange(ctx context.Context, from, to time.Time) ([]model.TimeSlot, error) {
	var slots []model.TimeSlot
	err := q.store.Do(ctx, func(ctx context.Context) error {
		var err error
		slots, err = q.slots.ListRange(ctx, from, to)
		return err
	})
	if slots == nil {
		slots = []model.TimeSlot{}
	}
	return slots, err
}

// Week returns seven days of slots starting at the calendar date of start.
func (q *QueryFacade) Week(ctx context.Context, start time.Time) ([]DaySlots, error) {
	return q.days(ctx, start, 7)
}

// Day returns every slot of one calendar day with its status.
func (q *QueryFacade) Day(ctx context.Context, date time.Time) (DaySlots, error) {
	days, err := q.days(ctx, date, 1)
	if err != nil {
		return DaySlots{}, err
	}
	return days[0], nil
}

func (q *QueryFacade) days(ctx context.Context, start time.Time, n int) ([]DaySlots, error) {
	loc := q.hours.Location()
	first := dateIn(start, loc)
	slots, err := q.listRange(ctx, first, first.AddDate(0, 0, n))
	if err != nil {
		return nil, err
	}
	out := make([]DaySlots, n)
	index := make(map[string]int, n)
	for i := range out {
		d := first.AddDate(0, 0, i)
		key := d.Format(time.DateOnly)
		out[i] = DaySlots{Date: key, Weekday: strings.ToLower(d.Weekday().String()), Slots: []model.TimeSlot{}}
		index[key] = i
	}
	for _, s := range slots {
		if i, ok := index[s.StartTime.In(loc).Format(time.DateOnly)]; ok {
			out[i].Slots = append(out[i].Slots, s)
		}
	}
	return out, nil
}

// GetBooking looks a booking up by reference.
func (q *QueryFacade) GetBooking(ctx context.Context, reference string) (model.Booking, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return model.Booking{}, ErrBookingNotFound
	}
	var b model.Booking
	err := q.store.Do(ctx, func(ctx context.Context) error {
		var err error
		b, err = q.bookings.GetByReference(ctx, reference)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}

// Statistics computes the period report for the calendar dates from..to
// (inclusive, park-local).  Booking rate counts only bookable slots;
// unallocated slots outside opening hours are ignored.
func (q *QueryFacade) Statistics(ctx context.Context, from, to time.Time) (Statistics, error) {
	loc := q.hours.Location()
	days, err := dateRange(from, to, loc)
	if err != nil {
		return Statistics{}, err
	}
	start, end := days[0], days[len(days)-1].AddDate(0, 0, 1)

	slots, err := q.listRange(ctx, start, end)
	if err != nil {
		return Statistics{}, err
	}
	var active []model.Booking
	err = q.store.Do(ctx, func(ctx context.Context) error {
		var err error
		active, err = q.bookings.ActiveInRange(ctx, start, end)
		return err
	})
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{
		From:          days[0].Format(time.DateOnly),
		To:            days[len(days)-1].Format(time.DateOnly),
		TotalBookings: len(active),
	}
	byDay := make(map[string]*DayStats, len(days))
	stats.BookingsByDay = make([]DayStats, len(days))
	for i, d := range days {
		stats.BookingsByDay[i] = DayStats{Date: d.Format(time.DateOnly)}
		byDay[stats.BookingsByDay[i].Date] = &stats.BookingsByDay[i]
	}
	refsByDay := map[string]map[string]bool{}
	hours := map[int]int{}

	for _, s := range slots {
		if s.Status == model.SlotUnallocated {
			continue
		}
		stats.BookableSlots++
		if s.Status != model.SlotBooked {
			continue
		}
		stats.BookedSlots++
		stats.ForecastedIncomeCents += s.PriceCents

		local := s.StartTime.In(loc)
		hours[local.Hour()]++
		key := local.Format(time.DateOnly)
		ds, ok := byDay[key]
		if !ok {
			continue
		}
		ds.BookedSlots++
		ds.IncomeCents += s.PriceCents
		if s.BookingReference != nil {
			if refsByDay[key] == nil {
				refsByDay[key] = map[string]bool{}
			}
			refsByDay[key][*s.BookingReference] = true
		}
	}
	for key, refs := range refsByDay {
		byDay[key].Bookings = len(refs)
	}
	if stats.BookableSlots > 0 {
		stats.BookingRate = float64(stats.BookedSlots) / float64(stats.BookableSlots)
	}

	stats.PopularTimeSlots = make([]HourCount, 0, len(hours))
	for h, n := range hours {
		stats.PopularTimeSlots = append(stats.PopularTimeSlots, HourCount{Hour: h, BookedSlots: n})
	}
	sort.Slice(stats.PopularTimeSlots, func(i, j int) bool {
		return stats.PopularTimeSlots[i].Hour < stats.PopularTimeSlots[j].Hour
	})
	return stats, nil
}
