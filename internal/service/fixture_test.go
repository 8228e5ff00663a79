package service

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slot-booking/internal/config"
	"github.com/iliyamo/slot-booking/internal/database"
	"github.com/iliyamo/slot-booking/internal/logging"
	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/repository"
)

var (
	monday  = time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	tuesday = time.Date(2026, 7, 7, 0, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, b model.Booking, slots []model.TimeSlot) error {
	args := m.Called(ctx, b, slots)
	return args.Error(0)
}

type fixture struct {
	store    *repository.Store
	clock    *fakeClock
	hours    model.OperatingHoursConfig
	holds    *HoldManager
	svc      *ReservationService
	gen      *SlotGenerator
	query    *QueryFacade
	notifier *mockNotifier
}

var (
	testHoldConfig = config.HoldConfig{
		DefaultTTL:    10 * time.Minute,
		MaxTTL:        30 * time.Minute,
		SweepInterval: time.Minute,
		SweepTimeout:  10 * time.Second,
		SweepBatch:    100,
	}
	testBookingConfig = config.BookingConfig{
		EquipmentSurchargeCents: 1500,
		ReferencePrefix:         "WB",
		ReferenceAttempts:       5,
	}
)

func newFixture(t *testing.T, bookingCfg config.BookingConfig) *fixture {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	hours := model.DefaultOperatingHours()
	require.NoError(t, hours.Validate())

	log := logging.Discard()
	store := repository.NewStore(db, 5*time.Second, 3)
	clock := &fakeClock{now: time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)}
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	holds := NewHoldManager(store, testHoldConfig, log).WithClock(clock.Now)
	return &fixture{
		store:    store,
		clock:    clock,
		hours:    hours,
		holds:    holds,
		svc:      NewReservationService(store, holds, hours, bookingCfg, notifier, log).WithClock(clock.Now),
		gen:      NewSlotGenerator(store, hours, log).WithClock(clock.Now),
		query:    NewQueryFacade(store, hours),
		notifier: notifier,
	}
}

// availableOn generates the day's slots and returns the bookable ones in
// start order.
func (f *fixture) availableOn(t *testing.T, day time.Time) []model.TimeSlot {
	t.Helper()
	_, err := f.gen.Regenerate(context.Background(), day, day)
	require.NoError(t, err)
	d, err := f.query.Day(context.Background(), day)
	require.NoError(t, err)
	var out []model.TimeSlot
	for _, s := range d.Slots {
		if s.Status == model.SlotAvailable {
			out = append(out, s)
		}
	}
	require.NotEmpty(t, out)
	return out
}

func (f *fixture) slot(t *testing.T, id string) model.TimeSlot {
	t.Helper()
	var s model.TimeSlot
	require.NoError(t, f.store.DB().Get(&s, `SELECT id, start_time, end_time, price_cents, status, booking_reference, hold_token, created_at, updated_at FROM time_slots WHERE id = ?`, id))
	return s
}

func (f *fixture) holdCount(t *testing.T) int {
	t.Helper()
	n, err := repository.NewHoldRepo(f.store.DB()).Count(context.Background())
	require.NoError(t, err)
	return n
}

func ids(slots ...model.TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.ID
	}
	return out
}

var (
	admin    = model.Caller{ID: "u-admin", Role: model.RoleAdmin}
	customer = model.Caller{ID: "u-cust", Role: model.RoleCustomer}
	details  = model.CustomerDetails{Name: "Ana Silva", Phone: "+351 900 000 000"}
)
