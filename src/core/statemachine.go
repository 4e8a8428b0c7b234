package core

import (
	"context"
	"errors"
	"log"
	"time"

	"gbs/src/models"
	"gbs/src/types"

	"gorm.io/gorm"
)

// Approve moves a drop out of the approval queue. Only valid from
// pending_approval.
func (e *Engine) Approve(ctx context.Context, dropID uint, initiator string) error {
	return e.transition(ctx, dropID, initiator, types.DROP_PENDING_APPROVAL, types.DROP_APPROVED, nil)
}

// Activate opens an approved drop for bookings, setting start_time if the
// approval flow left it unset. Called by the scheduler at start_time or
// lazily on first access after it.
func (e *Engine) Activate(ctx context.Context, dropID uint, initiator string) error {
	now := time.Now().UTC()
	return e.transition(ctx, dropID, initiator, types.DROP_APPROVED, types.DROP_ACTIVE, func(drop *models.Drop, updates map[string]interface{}) {
		if drop.StartTime == nil {
			updates["start_time"] = now
		}
	})
}

// Cancel aborts a drop from any non-terminal state and releases every
// outstanding authorization.
func (e *Engine) Cancel(ctx context.Context, dropID uint, initiator string) error {
	mu := e.lock(dropID)
	mu.Lock()
	drop, err := loadDrop(e.db, dropID)
	if err != nil {
		mu.Unlock()
		return err
	}
	if drop.Status.Terminal() {
		mu.Unlock()
		return &types.InvalidTransitionError{From: drop.Status, To: types.DROP_CANCELED}
	}
	mu.Unlock()

	_, err = e.settle(ctx, dropID, types.DROP_CANCELED, types.SETTLE_RELEASED, initiator)
	return err
}

// transition performs a single guarded status update. A zero-row update means
// the drop was not in the expected source state; the caller gets the actual
// state back in the error and moves on.
func (e *Engine) transition(ctx context.Context, dropID uint, initiator string, from, to types.DropStatus, mutate func(*models.Drop, map[string]interface{})) error {
	mu := e.lock(dropID)
	mu.Lock()
	defer mu.Unlock()

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var drop models.Drop
		if err := tx.First(&drop, dropID).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{
			"status":  to,
			"version": drop.Version + 1,
		}
		if mutate != nil {
			mutate(&drop, updates)
		}
		res := tx.Model(&models.Drop{}).
			Where("id = ? AND status = ? AND version = ?", dropID, from, drop.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &types.InvalidTransitionError{From: drop.Status, To: to}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.audit.RecordTransition(dropID, from, to, initiator)
	return nil
}

// SweepDue is the periodic evaluation pass: activates approved drops whose
// start time has arrived and closes active drops whose deadline has passed.
// Idempotent and safe to run from several scheduler instances at once; a drop
// that lost the race simply reports an invalid transition and is skipped.
func (e *Engine) SweepDue(ctx context.Context) {
	now := time.Now().UTC()

	var toActivate []models.Drop
	if err := e.db.
		Where("status = ? AND start_time IS NOT NULL AND start_time <= ?", types.DROP_APPROVED, now).
		Find(&toActivate).Error; err != nil {
		log.Printf("Sweep: could not list approved drops: %s\n", err.Error())
	}
	for _, drop := range toActivate {
		if err := e.Activate(ctx, drop.ID, "scheduler"); err != nil {
			if errors.Is(err, types.ErrInvalidTransition) {
				continue
			}
			log.Printf("Sweep: failed to activate drop %d: %s\n", drop.ID, err.Error())
		}
	}

	var due []models.Drop
	if err := e.db.
		Where("status = ? AND end_time <= ?", types.DROP_ACTIVE, now).
		Find(&due).Error; err != nil {
		log.Printf("Sweep: could not list due drops: %s\n", err.Error())
		return
	}
	for _, drop := range due {
		if err := e.EvaluateDeadline(ctx, drop.ID); err != nil {
			if errors.Is(err, types.ErrInvalidTransition) || errors.Is(err, types.ErrDropNotActive) {
				continue
			}
			log.Printf("Sweep: failed to close drop %d: %s\n", drop.ID, err.Error())
		}
	}
}

// EvaluateDeadline closes one active drop whose end time has passed:
// completed (capture) when the reservation value reached the target or the
// list's minimum, expired when nobody booked at all, underfunded (release)
// otherwise.
func (e *Engine) EvaluateDeadline(ctx context.Context, dropID uint) error {
	drop, err := loadDrop(e.db, dropID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if drop.Status != types.DROP_ACTIVE || !drop.Due(now) {
		return types.ErrDropNotActive
	}

	bookings, err := e.ListAuthorizedBookings(dropID)
	if err != nil {
		return err
	}
	list := drop.SupplierList

	var terminal types.DropStatus
	var outcome types.SettlementOutcome
	switch {
	case drop.CurrentValue.GreaterThanOrEqual(drop.TargetValue) ||
		(list.MinReservationValue.IsPositive() && drop.CurrentValue.GreaterThanOrEqual(list.MinReservationValue)):
		terminal, outcome = types.DROP_COMPLETED, types.SETTLE_CAPTURED
	case len(bookings) == 0:
		terminal, outcome = types.DROP_EXPIRED, types.SETTLE_RELEASED
	default:
		terminal, outcome = types.DROP_UNDERFUNDED, types.SETTLE_RELEASED
	}

	_, err = e.settle(ctx, dropID, terminal, outcome, "scheduler")
	return err
}
