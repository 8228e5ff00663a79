package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/repository"
)

// maxRangeDays bounds the date ranges accepted by generation and statistics.
const maxRangeDays = 366

// GenerateResult counts what a regeneration did.
type GenerateResult struct {
	Days      int `json:"days"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"` // desired slots blocked by a booked or reserved slot
}

func (r *GenerateResult) add(o GenerateResult) {
	r.Days += o.Days
	r.Created += o.Created
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.Deleted += o.Deleted
	r.Skipped += o.Skipped
}

// SlotGenerator (re)builds the slot grid from the operating hours.
type SlotGenerator struct {
	store *repository.Store
	slots *repository.SlotRepo
	holds *repository.HoldRepo
	hours model.OperatingHoursConfig
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewSlotGenerator returns a generator for the given operating hours, which
// must have been validated.
func NewSlotGenerator(store *repository.Store, hours model.OperatingHoursConfig, log logrus.FieldLogger) *SlotGenerator {
	return &SlotGenerator{
		store: store,
		slots: repository.NewSlotRepo(store.DB()),
		holds: repository.NewHoldRepo(store.DB()),
		hours: hours,
		log:   log,
		now:   time.Now,
	}
}

// WithClock replaces the time source used for row timestamps.
func (g *SlotGenerator) WithClock(now func() time.Time) *SlotGenerator {
	g.now = now
	return g
}

type desiredSlot struct {
	start, end time.Time
	status     model.SlotStatus
	price      int64
}

// Regenerate brings every park-local day from the calendar date of from to
// the calendar date of to (both inclusive) in line with the operating
// hours.  Each day is one transaction.  Booked and reserved slots are never
// modified; desired slots overlapping them are skipped.  Free slots at the
// right times are updated in place, so running it twice changes nothing
// the second time.  Free slots that no longer fit the grid are deleted.
func (g *SlotGenerator) Regenerate(ctx context.Context, from, to time.Time) (GenerateResult, error) {
	days, err := dateRange(from, to, g.hours.Location())
	if err != nil {
		return GenerateResult{}, err
	}
	var total GenerateResult
	for _, day := range days {
		res, err := g.regenerateDay(ctx, day)
		if err != nil {
			return total, err
		}
		total.add(res)
	}
	g.log.WithFields(logrus.Fields{
		"from":    days[0].Format(time.DateOnly),
		"to":      days[len(days)-1].Format(time.DateOnly),
		"created": total.Created,
		"updated": total.Updated,
		"deleted": total.Deleted,
		"skipped": total.Skipped,
	}).Info("slots regenerated")
	return total, nil
}

func (g *SlotGenerator) regenerateDay(ctx context.Context, day time.Time) (GenerateResult, error) {
	desired := g.desired(day)
	next := day.AddDate(0, 0, 1)
	now := g.now().UTC().Truncate(time.Second)

	var res GenerateResult
	err := g.store.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res = GenerateResult{Days: 1}
		existing, err := g.slots.ListOverlappingTx(ctx, tx, day, next)
		if err != nil {
			return err
		}
		var reserved []string
		for _, e := range existing {
			if e.Status == model.SlotReserved {
				reserved = append(reserved, e.ID)
			}
		}
		released, err := reclaimExpiredTx(ctx, tx, g.holds, g.slots, reserved, now)
		if err != nil {
			return err
		}
		if released > 0 {
			if existing, err = g.slots.ListOverlappingTx(ctx, tx, day, next); err != nil {
				return err
			}
		}
		byStart := make(map[int64]model.TimeSlot, len(existing))
		for _, e := range existing {
			byStart[e.StartTime.Unix()] = e
		}
		kept := make(map[string]bool, len(existing))

		var inserts []model.TimeSlot
		for _, d := range desired {
			if e, ok := byStart[d.start.Unix()]; ok && e.EndTime.Equal(d.end) {
				kept[e.ID] = true
				if !isFree(e.Status) {
					res.Skipped++
					continue
				}
				if e.Status == d.status && e.PriceCents == d.price {
					res.Unchanged++
					continue
				}
				if _, err := g.slots.UpdateFreeTx(ctx, tx, e.ID, d.status, d.price, now); err != nil {
					return err
				}
				res.Updated++
				continue
			}
			if blockedBy(existing, d) {
				res.Skipped++
				continue
			}
			inserts = append(inserts, model.TimeSlot{
				ID:         uuid.NewString(),
				StartTime:  d.start,
				EndTime:    d.end,
				PriceCents: d.price,
				Status:     d.status,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}

		var stale []string
		for _, e := range existing {
			if !kept[e.ID] && isFree(e.Status) {
				stale = append(stale, e.ID)
			}
		}
		n, err := g.slots.DeleteFreeTx(ctx, tx, stale)
		if err != nil {
			return err
		}
		res.Deleted = int(n)

		if err := g.slots.InsertTx(ctx, tx, inserts); err != nil {
			return err
		}
		res.Created = len(inserts)
		return nil
	})
	return res, err
}

// desired lays out the day's grid: from the earliest opening to the latest
// closing time of the week, available within this weekday's hours and
// unallocated elsewhere.  A week with no open day yields no slots.
func (g *SlotGenerator) desired(day time.Time) []desiredSlot {
	gridStart, gridEnd, ok := g.hours.Grid()
	if !ok {
		return nil
	}
	dur := g.hours.SlotDuration()
	open, closeAt, isOpen := g.hours.HoursFor(day.Weekday())
	price := g.hours.PriceFor(day)

	var out []desiredSlot
	for off := gridStart; off+dur <= gridEnd; off += dur {
		status := model.SlotUnallocated
		if isOpen && off >= open && off+dur <= closeAt {
			status = model.SlotAvailable
		}
		start, end := wallClock(day, off), wallClock(day, off+dur)
		// Wall times inside a spring-forward gap do not exist and are
		// normalised past it; such slots are left out.
		if !onWallClock(day, off, start) || !onWallClock(day, off+dur, end) || !end.After(start) {
			continue
		}
		out = append(out, desiredSlot{
			start:  start.UTC(),
			end:    end.UTC(),
			status: status,
			price:  price,
		})
	}
	return out
}

// blockedBy reports whether a booked or reserved slot overlaps d.
func blockedBy(existing []model.TimeSlot, d desiredSlot) bool {
	for _, e := range existing {
		if !isFree(e.Status) && e.Overlaps(d.start, d.end) {
			return true
		}
	}
	return false
}

func isFree(s model.SlotStatus) bool {
	return s == model.SlotAvailable || s == model.SlotUnallocated
}

// wallClock returns the instant at offset past local midnight of day,
// counted on the wall clock so that DST changes do not shift the grid.
func wallClock(day time.Time, offset time.Duration) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, int(offset/time.Minute), 0, 0, day.Location())
}

// onWallClock reports whether t reads as offset past local midnight of day.
func onWallClock(day time.Time, offset time.Duration, t time.Time) bool {
	y, m, d := day.Date()
	want := time.Date(y, m, d, 0, int(offset/time.Minute), 0, 0, time.UTC)
	got := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	return got.Equal(want)
}

// dateRange returns local midnights for every calendar date from the date
// of from to the date of to, inclusive.
func dateRange(from, to time.Time, loc *time.Location) ([]time.Time, error) {
	start := dateIn(from, loc)
	end := dateIn(to, loc)
	if end.Before(start) {
		return nil, invalidf("range end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
		if len(days) > maxRangeDays {
			return nil, invalidf("range must not exceed %d days", maxRangeDays)
		}
	}
	return days, nil
}

// dateIn returns local midnight in loc of t's calendar date as written,
// ignoring t's own location.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
