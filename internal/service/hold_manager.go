package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/slot-booking/internal/config"
	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/repository"
)

// Lease grants one process the right to do a periodic job for ttl.  It is
// an optimisation: correctness never depends on holding it.
type Lease interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const sweepLeaseKey = "slot-booking:sweep"

// HoldManager owns the lifecycle of holds: it is the only component that
// creates, extends or releases them.  Every operation is one transaction
// against the slot store; the store's conditional updates, not any
// in-process lock, guarantee that a slot has at most one holder.
type HoldManager struct {
	store *repository.Store
	slots *repository.SlotRepo
	holds *repository.HoldRepo
	cfg   config.HoldConfig
	log   logrus.FieldLogger
	now   func() time.Time
	lease Lease
}

// NewHoldManager returns a HoldManager using the wall clock and no lease.
func NewHoldManager(store *repository.Store, cfg config.HoldConfig, log logrus.FieldLogger) *HoldManager {
	return &HoldManager{
		store: store,
		slots: repository.NewSlotRepo(store.DB()),
		holds: repository.NewHoldRepo(store.DB()),
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// WithClock replaces the time source.
func (m *HoldManager) WithClock(now func() time.Time) *HoldManager {
	m.now = now
	return m
}

// WithLease makes Run sweep only on ticks where the lease was obtained.
func (m *HoldManager) WithLease(l Lease) *HoldManager {
	m.lease = l
	return m
}

func (m *HoldManager) clock() time.Time { return m.now().UTC().Truncate(time.Second) }

// ttl applies the default and the upper bound to a requested hold TTL.
func (m *HoldManager) ttl(requested time.Duration) time.Duration {
	if requested <= 0 {
		requested = m.cfg.DefaultTTL
	}
	if m.cfg.MaxTTL > 0 && requested > m.cfg.MaxTTL {
		requested = m.cfg.MaxTTL
	}
	if requested < time.Second {
		requested = time.Second
	}
	return requested
}

// Acquire claims every slot in slotIDs or none of them.  Expired holds that
// still sit on any requested slot are reclaimed first in the same
// transaction.  When a slot is not available (or does not exist) the
// transaction rolls back and a *SlotUnavailableError lists the offenders.
func (m *HoldManager) Acquire(ctx context.Context, slotIDs []string, ttl time.Duration) (model.Hold, error) {
	ids, err := normaliseIDs(slotIDs)
	if err != nil {
		return model.Hold{}, err
	}
	now := m.clock()
	hold := model.Hold{
		Token:     uuid.NewString(),
		SlotIDs:   ids,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl(ttl)),
	}

	err = m.store.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := reclaimExpiredTx(ctx, tx, m.holds, m.slots, ids, now); err != nil {
			return err
		}

		n, err := m.slots.MarkReservedTx(ctx, tx, ids, hold.Token, now)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return m.unavailable(ctx, tx, ids, hold.Token)
		}
		return m.holds.CreateTx(ctx, tx, hold)
	})
	if err != nil {
		return model.Hold{}, err
	}
	m.log.WithFields(logrus.Fields{"hold_token": hold.Token, "slot_ids": ids}).Debug("hold acquired")
	return hold, nil
}

// unavailable builds the rejection for a short check-and-set: every
// requested slot that is missing or not reserved under token.
func (m *HoldManager) unavailable(ctx context.Context, tx *sqlx.Tx, ids []string, token string) error {
	current, err := m.slots.ListByIDsTx(ctx, tx, ids)
	if err != nil {
		return err
	}
	mine := make(map[string]bool, len(current))
	for _, s := range current {
		mine[s.ID] = s.Status == model.SlotReserved && s.HoldToken != nil && *s.HoldToken == token
	}
	var conflicting []string
	for _, id := range ids {
		if !mine[id] {
			conflicting = append(conflicting, id)
		}
	}
	return &SlotUnavailableError{SlotIDs: conflicting}
}

// Release drops the hold and returns its slots to available.  Releasing a
// hold that has expired, been swept or been promoted is a no-op.
func (m *HoldManager) Release(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	var freed int64
	err := m.store.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		freed = 0
		deleted, err := m.holds.DeleteTx(ctx, tx, token)
		if err != nil || !deleted {
			return err
		}
		freed, err = m.slots.ReleaseByTokenTx(ctx, tx, token, m.clock())
		return err
	})
	if err != nil {
		return err
	}
	if freed > 0 {
		m.log.WithFields(logrus.Fields{"hold_token": token, "slots": freed}).Debug("hold released")
	}
	return nil
}

// Extend pushes the expiry of an active hold to now+ttl.  A hold that is
// gone or already expired yields ErrHoldExpired; an expired one is
// released on the way.
func (m *HoldManager) Extend(ctx context.Context, token string, ttl time.Duration) (model.Hold, error) {
	now := m.clock()
	expires := now.Add(m.ttl(ttl))
	var hold model.Hold
	err := m.store.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		ok, err := m.holds.ExtendTx(ctx, tx, token, expires, now)
		if err != nil {
			return err
		}
		if !ok {
			released, err := m.releaseExpiredTx(ctx, tx, token, now)
			if err != nil {
				return err
			}
			if released {
				return repository.CommitAnd(ErrHoldExpired)
			}
			return ErrHoldExpired
		}
		hold, err = m.holds.GetForUpdateTx(ctx, tx, token)
		return err
	})
	return hold, err
}

// releaseExpiredTx deletes the hold only if it has expired at now and, if
// that delete won, frees the slots still reserved under it.  A concurrent
// extension or promotion makes the delete match nothing and the hold is
// left alone.
func (m *HoldManager) releaseExpiredTx(ctx context.Context, tx *sqlx.Tx, token string, now time.Time) (bool, error) {
	return releaseExpiredTx(ctx, tx, m.holds, m.slots, token, now)
}

func releaseExpiredTx(ctx context.Context, tx *sqlx.Tx, holds *repository.HoldRepo, slots *repository.SlotRepo, token string, now time.Time) (bool, error) {
	deleted, err := holds.DeleteExpiredTx(ctx, tx, token, now)
	if err != nil || !deleted {
		return false, err
	}
	if _, err := slots.ReleaseByTokenTx(ctx, tx, token, now); err != nil {
		return false, err
	}
	return true, nil
}

// reclaimExpiredTx releases every hold that has expired at now and still
// reserves one of slotIDs, so that callers about to claim those slots do
// not wait for the sweeper.  It returns how many holds it released.
func reclaimExpiredTx(ctx context.Context, tx *sqlx.Tx, holds *repository.HoldRepo, slots *repository.SlotRepo, slotIDs []string, now time.Time) (int, error) {
	if len(slotIDs) == 0 {
		return 0, nil
	}
	stale, err := holds.ExpiredTokensForSlotsTx(ctx, tx, slotIDs, now)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, token := range stale {
		ok, err := releaseExpiredTx(ctx, tx, holds, slots, token, now)
		if err != nil {
			return released, err
		}
		if ok {
			released++
		}
	}
	return released, nil
}

// Sweep releases up to HOLD_SWEEP_BATCH expired holds, each in its own
// transaction, and returns how many it released.  Failures on one hold do
// not stop the others.
func (m *HoldManager) Sweep(ctx context.Context) (int, error) {
	now := m.clock()
	var tokens []string
	err := m.store.Do(ctx, func(ctx context.Context) error {
		var err error
		tokens, err = m.holds.ExpiredTokens(ctx, now, m.batch())
		return err
	})
	if err != nil {
		return 0, err
	}

	var errs []error
	swept := 0
	for _, token := range tokens {
		var released bool
		err := m.store.InTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
			var err error
			released, err = m.releaseExpiredTx(ctx, tx, token, now)
			return err
		})
		if err != nil {
			m.log.WithError(err).WithField("hold_token", token).Warn("sweep: release failed")
			errs = append(errs, err)
			continue
		}
		if released {
			swept++
			m.log.WithField("hold_token", token).Info("expired hold released")
		}
	}
	return swept, errors.Join(errs...)
}

func (m *HoldManager) batch() int {
	if m.cfg.SweepBatch <= 0 {
		return 100
	}
	return m.cfg.SweepBatch
}

// Run sweeps on every tick of HOLD_SWEEP_INTERVAL until ctx is done.  Each
// pass is bounded by HOLD_SWEEP_TIMEOUT.
func (m *HoldManager) Run(ctx context.Context) error {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	// kick immediately
	m.tick(ctx, interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			m.tick(ctx, interval)
		}
	}
}

func (m *HoldManager) tick(ctx context.Context, interval time.Duration) {
	if m.lease != nil {
		ok, err := m.lease.TryAcquire(ctx, sweepLeaseKey, interval/2)
		if err != nil {
			// Sweep anyway; the guarded deletes keep concurrent sweepers safe.
			m.log.WithError(err).Warn("sweep lease unavailable")
		} else if !ok {
			return
		}
	}

	timeout := m.cfg.SweepTimeout
	if timeout <= 0 {
		timeout = interval
	}
	passCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := m.Sweep(passCtx); err != nil && ctx.Err() == nil {
		m.log.WithError(err).Error("sweep pass failed")
	}
}
