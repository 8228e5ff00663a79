package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayHours is the opening window of one weekday, "HH:MM" in park-local time.
// Close may be "24:00".
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Season overrides prices between Start and End ("MM-DD", inclusive).  A
// season whose End is before its Start wraps over the new year.
type Season struct {
	Name              string           `json:"name"`
	Start             string           `json:"start"`
	End               string           `json:"end"`
	DefaultPriceCents int64            `json:"default_price_cents"`
	WeekdayPriceCents map[string]int64 `json:"weekday_price_cents,omitempty"`
}

// OperatingHoursConfig drives slot generation: which intervals of each day
// are bookable and what each slot costs.  Weekday keys are lower-case
// English names ("monday" … "sunday"); a weekday without an entry is closed.
type OperatingHoursConfig struct {
	TimeZone          string              `json:"time_zone"`
	SlotMinutes       int                 `json:"slot_minutes"`
	Hours             map[string]DayHours `json:"hours"`
	DefaultPriceCents int64               `json:"default_price_cents"`
	Seasons           []Season            `json:"seasons,omitempty"`

	loc *time.Location
}

// DefaultOperatingHours is used when no configuration file is supplied.
func DefaultOperatingHours() OperatingHoursConfig {
	weekday := DayHours{Open: "10:00", Close: "20:00"}
	weekend := DayHours{Open: "09:00", Close: "21:00"}
	return OperatingHoursConfig{
		TimeZone:    "UTC",
		SlotMinutes: 30,
		Hours: map[string]DayHours{
			"monday": weekday, "tuesday": weekday, "wednesday": weekday,
			"thursday": weekday, "friday": weekday,
			"saturday": weekend, "sunday": weekend,
		},
		DefaultPriceCents: 2500,
		Seasons: []Season{{
			Name:              "summer",
			Start:             "06-01",
			End:               "08-31",
			DefaultPriceCents: 3000,
			WeekdayPriceCents: map[string]int64{"saturday": 3500, "sunday": 3500},
		}},
	}
}

// Validate checks the configuration and resolves the time zone.  It must be
// called before the config is used.
func (c *OperatingHoursConfig) Validate() error {
	tz := c.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("operating hours: time zone %q: %w", c.TimeZone, err)
	}
	c.loc = loc
	if c.SlotMinutes <= 0 || c.SlotMinutes > 24*60 {
		return fmt.Errorf("operating hours: slot_minutes must be between 1 and 1440, got %d", c.SlotMinutes)
	}
	if c.DefaultPriceCents < 0 {
		return fmt.Errorf("operating hours: default_price_cents must not be negative")
	}
	for day, h := range c.Hours {
		if _, ok := weekdayByName[day]; !ok {
			return fmt.Errorf("operating hours: unknown weekday %q", day)
		}
		open, err := parseClock(h.Open)
		if err != nil {
			return fmt.Errorf("operating hours: %s open: %w", day, err)
		}
		closeAt, err := parseClock(h.Close)
		if err != nil {
			return fmt.Errorf("operating hours: %s close: %w", day, err)
		}
		if closeAt <= open {
			return fmt.Errorf("operating hours: %s closes before it opens", day)
		}
	}
	for _, s := range c.Seasons {
		if _, err := parseMonthDay(s.Start); err != nil {
			return fmt.Errorf("operating hours: season %q start: %w", s.Name, err)
		}
		if _, err := parseMonthDay(s.End); err != nil {
			return fmt.Errorf("operating hours: season %q end: %w", s.Name, err)
		}
		for day := range s.WeekdayPriceCents {
			if _, ok := weekdayByName[day]; !ok {
				return fmt.Errorf("operating hours: season %q: unknown weekday %q", s.Name, day)
			}
		}
	}
	return nil
}

// Location is the park's time zone.  Calendar days, the one-day booking
// rule and hour-of-day statistics are all evaluated in it.
func (c OperatingHoursConfig) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// SlotDuration is the fixed length of every slot.
func (c OperatingHoursConfig) SlotDuration() time.Duration {
	return time.Duration(c.SlotMinutes) * time.Minute
}

// HoursFor returns the opening window of a weekday as offsets from local
// midnight.  ok is false when the park is closed that day.
func (c OperatingHoursConfig) HoursFor(wd time.Weekday) (open, closeAt time.Duration, ok bool) {
	h, found := c.Hours[weekdayKey(wd)]
	if !found {
		return 0, 0, false
	}
	o, err1 := parseClock(h.Open)
	cl, err2 := parseClock(h.Close)
	if err1 != nil || err2 != nil || cl <= o {
		return 0, 0, false
	}
	return o, cl, true
}

// Grid returns the window covered by generated slots on every day: from the
// earliest opening to the latest closing time of the week.  Parts of the
// grid outside a given day's hours become unallocated slots.
func (c OperatingHoursConfig) Grid() (start, end time.Duration, ok bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		o, cl, open := c.HoursFor(wd)
		if !open {
			continue
		}
		if !ok || o < start {
			start = o
		}
		if !ok || cl > end {
			end = cl
		}
		ok = true
	}
	return start, end, ok
}

// PriceFor returns the slot price for a park-local day.
func (c OperatingHoursConfig) PriceFor(day time.Time) int64 {
	md := int(day.Month())*100 + day.Day()
	key := weekdayKey(day.Weekday())
	for _, s := range c.Seasons {
		start, _ := parseMonthDay(s.Start)
		end, _ := parseMonthDay(s.End)
		in := start <= md && md <= end
		if end < start {
			in = md >= start || md <= end
		}
		if !in {
			continue
		}
		if p, ok := s.WeekdayPriceCents[key]; ok {
			return p
		}
		return s.DefaultPriceCents
	}
	return c.DefaultPriceCents
}

var weekdayByName = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

func weekdayKey(wd time.Weekday) string { return strings.ToLower(wd.String()) }

// parseClock turns "HH:MM" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// parseMonthDay turns "MM-DD" into MM*100+DD.
func parseMonthDay(s string) (int, error) {
	mm, dd, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		return 0, fmt.Errorf("invalid month-day %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 1 || m > 12 {
		return 0, fmt.Errorf("invalid month-day %q", s)
	}
	d, err := strconv.Atoi(dd)
	if err != nil || d < 1 || d > 31 {
		return 0, fmt.Errorf("invalid month-day %q", s)
	}
	return m*100 + d, nil
}
