package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slot-booking/internal/model"
)

func TestSweepReleasesExpiredHoldsOnly(t *testing.T) {
	f := newFixture(t, testBookingConfig)
	ctx := context.Background()
	av := f.availableOn(t, monday)

	short, err := f.holds.Acquire(ctx, ids(av[0], av[1]), 5*time.Minute)
	require.NoError(t, err)
	long, err := f.holds.Acquire(ctx, ids(av[2]), 20*time.Minute)
	require.NoError(t, err)

	n, err := f.holds.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(5 * time.Minute)
	n, err = f.holds.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.SlotAvailable, f.slot(t, av[0].ID).Status)
	assert.Equal(t, model.SlotAvailable, f.slot(t, av[1].ID).Status)
	assert.Equal(t, long.Token, *f.slot(t, av[2].ID).HoldToken)

	n, err = f.holds.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a second sweep finds nothing")

	// Releasing a swept hold is a no-op.
	require.NoError(t, f.holds.Release(ctx, short.Token))
	assert.Equal(t, 1, f.holdCount(t))
}

func TestAcquireCapsTTL(t *testing.T) {
	f := newFixture(t, testBookingConfig)
	hold, err := f.holds.Acquire(context.Background(), ids(f.availableOn(t, monday)[0]), 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, hold.ExpiresAt.Sub(hold.CreatedAt))
}

func TestAcquireReclaimsUnsweptExpiredHold(t *testing.T) {
	f := newFixture(t, testBookingConfig)
	ctx := context.Background()
	av := f.availableOn(t, monday)

	stale, err := f.holds.Acquire(ctx, ids(av[0], av[1]), 0)
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)

	fresh, err := f.holds.Acquire(ctx, ids(av[1]), 0)
	require.NoError(t, err)
	assert.Equal(t, fresh.Token, *f.slot(t, av[1].ID).HoldToken)
	// The stale hold is released in full, not only the contested slot.
	assert.Equal(t, model.SlotAvailable, f.slot(t, av[0].ID).Status)
	assert.Equal(t, 1, f.holdCount(t))

	_, err = f.svc.ConfirmBooking(ctx, stale.Token, details)
	assert.ErrorIs(t, err, ErrHoldExpired)
}

func TestExtend(t *testing.T) {
	f := newFixture(t, testBookingConfig)
	ctx := context.Background()
	av := f.availableOn(t, monday)

	hold, err := f.holds.Acquire(ctx, ids(av[0]), 0)
	require.NoError(t, err)

	f.clock.Advance(8 * time.Minute)
	extended, err := f.holds.Extend(ctx, hold.Token, 0)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), extended.ExpiresAt)
	assert.Equal(t, hold.SlotIDs, extended.SlotIDs)

	// Past the original expiry the extended hold is still confirmable.
	f.clock.Advance(5 * time.Minute)
	n, err := f.holds.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = f.svc.ConfirmBooking(ctx, hold.Token, details)
	require.NoError(t, err)
}

func TestExtendExpiredHold(t *testing.T) {
	f := newFixture(t, testBookingConfig)
	ctx := context.Background()
	av := f.availableOn(t, monday)

	hold, err := f.holds.Acquire(ctx, ids(av[0]), 0)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)

	_, err = f.holds.Extend(ctx, hold.Token, 0)
	assert.ErrorIs(t, err, ErrHoldExpired)
	assert.Equal(t, model.SlotAvailable, f.slot(t, av[0].ID).Status, "released on the way")
	assert.Zero(t, f.holdCount(t))

	_, err = f.holds.Extend(ctx, "unknown", 0)
	assert.ErrorIs(t, err, ErrHoldExpired)
}

type stubLease struct {
	granted bool
	err     error
	keys    []string
}

func (l *stubLease) TryAcquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.granted, l.err
}

func TestTickHonoursLease(t *testing.T) {
	f := newFixture(t, testBookingConfig)
	ctx := context.Background()
	av := f.availableOn(t, monday)
	_, err := f.holds.Acquire(ctx, ids(av[0]), 0)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	lease := &stubLease{granted: false}
	f.holds.WithLease(lease).tick(ctx, time.Minute)
	assert.Equal(t, []string{sweepLeaseKey}, lease.keys)
	assert.Equal(t, model.SlotReserved, f.slot(t, av[0].ID).Status, "another instance holds the lease")

	lease.err = errors.New("redis down")
	f.holds.tick(ctx, time.Minute)
	assert.Equal(t, model.SlotAvailable, f.slot(t, av[0].ID).Status, "lease errors fall back to sweeping")
}

func TestRunStopsWithContext(t *testing.T) {
	f := newFixture(t, testBookingConfig)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.holds.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
