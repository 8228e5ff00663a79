package model

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole(" Admin "))
	assert.Equal(t, RoleManager, ParseRole("manager"))
	assert.Equal(t, RoleCustomer, ParseRole("root"))
	assert.Equal(t, RoleCustomer, ParseRole(""))

	assert.True(t, Caller{Role: RoleOperator}.Privileged())
	assert.False(t, Caller{Role: RoleCustomer}.Privileged())
}

func TestHoldExpiredAtBoundary(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	h := Hold{ExpiresAt: now}
	assert.True(t, h.Expired(now))
	assert.False(t, h.Expired(now.Add(-time.Second)))
}

func TestTimeSlotOverlaps(t *testing.T) {
	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)
	s := TimeSlot{StartTime: start, EndTime: start.Add(30 * time.Minute)}
	assert.True(t, s.Overlaps(start.Add(15*time.Minute), start.Add(time.Hour)))
	assert.False(t, s.Overlaps(start.Add(30*time.Minute), start.Add(time.Hour)))
	assert.False(t, s.Overlaps(start.Add(-time.Hour), start))
}

func TestDefaultOperatingHours(t *testing.T) {
	c := DefaultOperatingHours()
	require.NoError(t, c.Validate())

	start, end, ok := c.Grid()
	require.True(t, ok)
	assert.Equal(t, 9*time.Hour, start)
	assert.Equal(t, 21*time.Hour, end)

	open, closeAt, ok := c.HoursFor(time.Monday)
	require.True(t, ok)
	assert.Equal(t, 10*time.Hour, open)
	assert.Equal(t, 20*time.Hour, closeAt)
}

func TestPriceForSeasons(t *testing.T) {
	c := DefaultOperatingHours()
	c.Seasons = append(c.Seasons, Season{Name: "winter", Start: "12-15", End: "01-15", DefaultPriceCents: 2000})
	require.NoError(t, c.Validate())

	assert.EqualValues(t, 2500, c.PriceFor(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.EqualValues(t, 3000, c.PriceFor(time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)))  // summer monday
	assert.EqualValues(t, 3500, c.PriceFor(time.Date(2026, 7, 11, 0, 0, 0, 0, time.UTC))) // summer saturday
	assert.EqualValues(t, 2000, c.PriceFor(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)))
	assert.EqualValues(t, 2000, c.PriceFor(time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC)))
}

func TestOperatingHoursValidate(t *testing.T) {
	c := DefaultOperatingHours()
	c.TimeZone = "Europe/Berlin"
	require.NoError(t, c.Validate())
	assert.Equal(t, "Europe/Berlin", c.Location().String())

	bad := []func(*OperatingHoursConfig){
		func(c *OperatingHoursConfig) { c.TimeZone = "Mars/Olympus" },
		func(c *OperatingHoursConfig) { c.SlotMinutes = 0 },
		func(c *OperatingHoursConfig) { c.DefaultPriceCents = -1 },
		func(c *OperatingHoursConfig) { c.Hours["funday"] = DayHours{Open: "10:00", Close: "11:00"} },
		func(c *OperatingHoursConfig) { c.Hours["monday"] = DayHours{Open: "10:00", Close: "24:30"} },
		func(c *OperatingHoursConfig) { c.Seasons[0].Start = "13-01" },
	}
	for i, mutate := range bad {
		c := DefaultOperatingHours()
		mutate(&c)
		assert.Error(t, c.Validate(), "case %d", i)
	}
}
